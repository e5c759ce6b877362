package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/innovaedu/wabot/core/config"
)

// Sheets mirrors records into a Google spreadsheet, one tab per record
// kind. It implements Record only; the admin read interface is served
// from the primary store.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	tabs          map[Kind]string

	mu      sync.Mutex
	ensured map[string]bool
}

// NewSheets builds a Sheets mirror from service-account credentials.
func NewSheets(ctx context.Context, cfg config.SheetsConfig) (*Sheets, error) {
	jwtCfg := &jwt.Config{
		Email: cfg.ServiceAccountEmail,
		// Private keys arriving through env vars carry escaped newlines.
		PrivateKey: []byte(strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   "https://oauth2.googleapis.com/token",
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Sheets{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		tabs: map[Kind]string{
			KindStudyAbroad:  cfg.StudyTab,
			KindEnrollment:   cfg.EnrollTab,
			KindConsultation: cfg.ConsultTab,
		},
		ensured: make(map[string]bool),
	}, nil
}

func (s *Sheets) Record(ctx context.Context, rec Record) error {
	tab, ok := s.tabs[rec.Kind]
	if !ok || tab == "" {
		return fmt.Errorf("no sheet tab for record kind %q", rec.Kind)
	}
	if err := s.ensureTab(ctx, tab); err != nil {
		return err
	}

	row := rowValues(rec)
	rng := quoteTabName(tab) + "!A:Z"
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row to %s: %w", tab, err)
	}
	return nil
}

func (s *Sheets) ensureTab(ctx context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[title] {
		return nil
	}

	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			s.ensured[title] = true
			return nil
		}
	}

	_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	s.ensured[title] = true
	return nil
}

// rowValues fixes the column order per kind so the sheet stays stable
// across appends.
func rowValues(rec Record) []interface{} {
	f := rec.Fields
	ts := rec.SubmittedAt.UTC().Format(time.RFC3339)
	switch rec.Kind {
	case KindStudyAbroad:
		return []interface{}{
			rec.ID, f["name"], f["whatsapp"], f["qualification"], f["completionYear"],
			f["grade"], f["university"], f["englishTest"], f["currentCity"],
			f["preferredCity"], f["budget"], f["country"], ts,
		}
	case KindEnrollment:
		return []interface{}{
			rec.ID, f["firstName"], f["lastName"], f["email"], f["phone"],
			f["startDate"], f["courseName"], f["packageType"], f["cost"], ts,
		}
	case KindConsultation:
		return []interface{}{
			rec.ID, f["firstName"], f["lastName"], f["degree"], f["gpa"],
			f["budget"], f["preferredCountry"], f["email"], f["phone"],
			f["notes"], ts,
		}
	default:
		return []interface{}{rec.ID, string(rec.Kind), ts}
	}
}

// quoteTabName escapes a tab title so A1 ranges work with spaces or quotes.
func quoteTabName(title string) string {
	if title == "" {
		title = "Sheet1"
	}
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
