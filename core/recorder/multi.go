package recorder

import (
	"context"

	"log/slog"

	"github.com/innovaedu/wabot/core/logger"
)

// Fanout writes every record to the primary store and mirrors it to
// secondary sinks. Mirror failures are logged and never propagated;
// only the primary outcome is reported to the caller, and even that is
// best-effort from the conversational perspective.
type Fanout struct {
	primary Recorder
	mirrors []Sink
}

// NewFanout wraps the primary recorder with optional mirrors.
func NewFanout(primary Recorder, mirrors ...Sink) *Fanout {
	return &Fanout{primary: primary, mirrors: mirrors}
}

func (f *Fanout) Record(ctx context.Context, rec Record) error {
	err := f.primary.Record(ctx, rec)
	for _, m := range f.mirrors {
		if mErr := m.Record(ctx, rec); mErr != nil {
			logger.Warn(ctx, "recorder", "record.mirror.fail",
				slog.String("status", "fail"),
				slog.String("record_id", rec.ID),
				slog.String("record_kind", string(rec.Kind)),
				slog.String("err", mErr.Error()),
			)
		}
	}
	return err
}

func (f *Fanout) List(ctx context.Context, kind Kind) ([]Record, error) {
	return f.primary.List(ctx, kind)
}

func (f *Fanout) Count(ctx context.Context) (int, error) {
	if c, ok := f.primary.(Counter); ok {
		return c.Count(ctx)
	}
	records, err := f.primary.List(ctx, "")
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
