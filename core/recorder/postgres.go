package recorder

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// Postgres stores records in three tables matching the record kinds.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type studyRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	WhatsApp       string    `db:"whatsapp"`
	Qualification  string    `db:"qualification"`
	CompletionYear string    `db:"completion_year"`
	Grade          string    `db:"grade"`
	University     string    `db:"university"`
	EnglishTest    string    `db:"english_test"`
	CurrentCity    string    `db:"current_city"`
	PreferredCity  string    `db:"preferred_city"`
	Budget         string    `db:"budget"`
	Country        string    `db:"country"`
	CreatedAt      time.Time `db:"created_at"`
}

type enrollmentRow struct {
	ID          string    `db:"id"`
	FirstName   string    `db:"first_name"`
	LastName    string    `db:"last_name"`
	Email       string    `db:"email"`
	Phone       string    `db:"phone"`
	StartDate   string    `db:"start_date"`
	CourseName  string    `db:"course_name"`
	PackageType string    `db:"package_type"`
	Cost        int64     `db:"cost"`
	CreatedAt   time.Time `db:"created_at"`
}

type consultationRow struct {
	ID               string    `db:"id"`
	FirstName        string    `db:"first_name"`
	LastName         string    `db:"last_name"`
	Degree           string    `db:"degree"`
	GPA              string    `db:"gpa"`
	Budget           string    `db:"budget"`
	PreferredCountry string    `db:"preferred_country"`
	Email            string    `db:"email"`
	Phone            string    `db:"phone"`
	Notes            string    `db:"notes"`
	CreatedAt        time.Time `db:"created_at"`
}

func (p *Postgres) Record(ctx context.Context, rec Record) error {
	f := rec.Fields
	switch rec.Kind {
	case KindStudyAbroad:
		row := studyRow{
			ID:             rec.ID,
			Name:           f["name"],
			WhatsApp:       f["whatsapp"],
			Qualification:  f["qualification"],
			CompletionYear: f["completionYear"],
			Grade:          f["grade"],
			University:     f["university"],
			EnglishTest:    f["englishTest"],
			CurrentCity:    f["currentCity"],
			PreferredCity:  f["preferredCity"],
			Budget:         f["budget"],
			Country:        f["country"],
			CreatedAt:      rec.SubmittedAt,
		}
		_, err := p.db.NamedExecContext(ctx, `INSERT INTO study_applications (
			id, name, whatsapp, qualification, completion_year, grade, university,
			english_test, current_city, preferred_city, budget, country, created_at
		) VALUES (
			:id, :name, :whatsapp, :qualification, :completion_year, :grade, :university,
			:english_test, :current_city, :preferred_city, :budget, :country, :created_at
		)`, row)
		if err != nil {
			return fmt.Errorf("insert study application: %w", err)
		}
		return nil
	case KindEnrollment:
		cost, _ := strconv.ParseInt(f["cost"], 10, 64)
		row := enrollmentRow{
			ID:          rec.ID,
			FirstName:   f["firstName"],
			LastName:    f["lastName"],
			Email:       f["email"],
			Phone:       f["phone"],
			StartDate:   f["startDate"],
			CourseName:  f["courseName"],
			PackageType: f["packageType"],
			Cost:        cost,
			CreatedAt:   rec.SubmittedAt,
		}
		_, err := p.db.NamedExecContext(ctx, `INSERT INTO enrollments (
			id, first_name, last_name, email, phone, start_date,
			course_name, package_type, cost, created_at
		) VALUES (
			:id, :first_name, :last_name, :email, :phone, :start_date,
			:course_name, :package_type, :cost, :created_at
		)`, row)
		if err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
		return nil
	case KindConsultation:
		row := consultationRow{
			ID:               rec.ID,
			FirstName:        f["firstName"],
			LastName:         f["lastName"],
			Degree:           f["degree"],
			GPA:              f["gpa"],
			Budget:           f["budget"],
			PreferredCountry: f["preferredCountry"],
			Email:            f["email"],
			Phone:            f["phone"],
			Notes:            f["notes"],
			CreatedAt:        rec.SubmittedAt,
		}
		_, err := p.db.NamedExecContext(ctx, `INSERT INTO consultations (
			id, first_name, last_name, degree, gpa, budget,
			preferred_country, email, phone, notes, created_at
		) VALUES (
			:id, :first_name, :last_name, :degree, :gpa, :budget,
			:preferred_country, :email, :phone, :notes, :created_at
		)`, row)
		if err != nil {
			return fmt.Errorf("insert consultation: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

func (p *Postgres) List(ctx context.Context, kind Kind) ([]Record, error) {
	var out []Record

	if kind == "" || kind == KindStudyAbroad {
		var rows []studyRow
		if err := p.db.SelectContext(ctx, &rows,
			`SELECT * FROM study_applications ORDER BY created_at DESC`); err != nil {
			return nil, fmt.Errorf("list study applications: %w", err)
		}
		for _, r := range rows {
			out = append(out, Record{
				ID:   r.ID,
				Kind: KindStudyAbroad,
				Fields: map[string]string{
					"name":           r.Name,
					"whatsapp":       r.WhatsApp,
					"qualification":  r.Qualification,
					"completionYear": r.CompletionYear,
					"grade":          r.Grade,
					"university":     r.University,
					"englishTest":    r.EnglishTest,
					"currentCity":    r.CurrentCity,
					"preferredCity":  r.PreferredCity,
					"budget":         r.Budget,
					"country":        r.Country,
				},
				SubmittedAt: r.CreatedAt,
			})
		}
	}

	if kind == "" || kind == KindEnrollment {
		var rows []enrollmentRow
		if err := p.db.SelectContext(ctx, &rows,
			`SELECT * FROM enrollments ORDER BY created_at DESC`); err != nil {
			return nil, fmt.Errorf("list enrollments: %w", err)
		}
		for _, r := range rows {
			out = append(out, Record{
				ID:   r.ID,
				Kind: KindEnrollment,
				Fields: map[string]string{
					"firstName":   r.FirstName,
					"lastName":    r.LastName,
					"email":       r.Email,
					"phone":       r.Phone,
					"startDate":   r.StartDate,
					"courseName":  r.CourseName,
					"packageType": r.PackageType,
					"cost":        strconv.FormatInt(r.Cost, 10),
				},
				SubmittedAt: r.CreatedAt,
			})
		}
	}

	if kind == "" || kind == KindConsultation {
		var rows []consultationRow
		if err := p.db.SelectContext(ctx, &rows,
			`SELECT * FROM consultations ORDER BY created_at DESC`); err != nil {
			return nil, fmt.Errorf("list consultations: %w", err)
		}
		for _, r := range rows {
			out = append(out, Record{
				ID:   r.ID,
				Kind: KindConsultation,
				Fields: map[string]string{
					"firstName":        r.FirstName,
					"lastName":         r.LastName,
					"degree":           r.Degree,
					"gpa":              r.GPA,
					"budget":           r.Budget,
					"preferredCountry": r.PreferredCountry,
					"email":            r.Email,
					"phone":            r.Phone,
					"notes":            r.Notes,
				},
				SubmittedAt: r.CreatedAt,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var total int
	err := p.db.GetContext(ctx, &total, `SELECT
		(SELECT COUNT(*) FROM study_applications) +
		(SELECT COUNT(*) FROM enrollments) +
		(SELECT COUNT(*) FROM consultations)`)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return total, nil
}
