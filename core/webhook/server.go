// Package webhook exposes the HTTP surface: the provider verification
// handshake, inbound event intake, health, and the admin read endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/innovaedu/wabot/core/config"
	"github.com/innovaedu/wabot/core/logger"
	"github.com/innovaedu/wabot/core/recorder"
	"github.com/innovaedu/wabot/core/session"
	"github.com/innovaedu/wabot/core/whatsapp"
)

const maxBodyBytes = 1 << 20

// EventHandler consumes normalized inbound events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev whatsapp.Event)
}

// Server serves the webhook endpoints.
type Server struct {
	cfg     config.WebhookConfig
	handler EventHandler
	store   session.Store
	records recorder.Recorder
}

// NewServer constructs the HTTP surface.
func NewServer(cfg config.WebhookConfig, handler EventHandler, store session.Store, records recorder.Recorder) *Server {
	return &Server{cfg: cfg, handler: handler, store: store, records: records}
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleBanner)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /webhook", s.handleVerify)
	mux.HandleFunc("POST /webhook", s.handleNotification)
	mux.HandleFunc("GET /admin/applications", s.handleApplications)
	return s.recovered(mux)
}

// ListenAndServe runs the server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Listen, s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	logger.Info(ctx, "hook", "listen",
		slog.String("status", "ok"),
		slog.String("listen", s.cfg.Listen),
		slog.Int("port", s.cfg.Port),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook shutdown: %w", err)
		}
		return nil
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("webhook listen: %w", err)
		}
		return nil
	}
}

func (s *Server) recovered(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(r.Context(), "hook", "panic",
					slog.String("status", "fail"),
					slog.String("operation", r.URL.Path),
					slog.Any("cause", rec),
				)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "INNOVA WhatsApp bot\n")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total := 0
	if counter, ok := s.records.(recorder.Counter); ok {
		if n, err := counter.Count(r.Context()); err == nil {
			total = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"activeSessions":    s.store.Len(),
		"totalApplications": total,
	})
}

// handleVerify answers the provider's subscription handshake: echo
// hub.challenge when the verify token matches.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "" && token == s.cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
		return
	}
	logger.Warn(r.Context(), "hook", "verify.reject",
		slog.String("status", "fail"),
		slog.String("mode", mode),
	)
	w.WriteHeader(http.StatusForbidden)
}

// handleNotification acknowledges the provider immediately and hands
// decoded events to the processor off the request goroutine. The
// provider retries on non-2xx, so decode problems are logged, not
// surfaced.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithRID(r.Context(), logger.NewRID())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn(ctx, "hook", "body.read.fail",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !whatsapp.VerifySignature(s.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		logger.Warn(ctx, "hook", "signature.reject",
			slog.String("status", "fail"),
		)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")

	events, err := whatsapp.DecodeEvents(body)
	if err != nil {
		logger.Warn(ctx, "hook", "decode.fail",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	if len(events) == 0 {
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "hook", "decode.empty",
				slog.String("status", "ok"),
			)
		}
		return
	}

	// The ack above already closed the exchange; processing continues on
	// a context that survives the request.
	bg := logger.WithRID(context.WithoutCancel(r.Context()), logger.RIDFrom(ctx))
	go func() {
		for _, ev := range events {
			s.handler.HandleEvent(bg, ev)
		}
	}()
}

type recordPayload struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Fields      map[string]string `json:"fields"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	kind := recorder.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case "", recorder.KindStudyAbroad, recorder.KindEnrollment, recorder.KindConsultation:
	default:
		http.Error(w, "unknown kind", http.StatusBadRequest)
		return
	}

	records, err := s.records.List(r.Context(), kind)
	if err != nil {
		logger.Error(r.Context(), "hook", "admin.list.fail",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	payload := make([]recordPayload, len(records))
	for i, rec := range records {
		payload[i] = recordPayload{
			ID:          rec.ID,
			Kind:        string(rec.Kind),
			Fields:      rec.Fields,
			SubmittedAt: rec.SubmittedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":        len(payload),
		"applications": payload,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
