package repository

import (
	"context"
	"errors"
	"fmt"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/platform/apperr"
	"leadsync_backend/platform/clock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadNotFoundMsg = "lead not found"

const leadColumns = `email, name, contact, COALESCE(crm_id, ''), status, meeting_booked, meeting_time, meeting_link,
	calendar_event_id, reminder_24h_sent, reminder_1h_sent, no_book_reminder_stage, no_book_reminder_time,
	no_show_reminder_stage, no_show_time, created_at, updated_at`

// Repository is the PostgreSQL-backed Lead Store.
type Repository struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// New creates a Repository. A nil clock uses the system clock.
func New(pool *pgxpool.Pool, clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Repository{pool: pool, clock: clk}
}

// Ping checks database connectivity for readiness probes.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		l      domain.Lead
		status string
	)
	m := &l.Meeting
	err := row.Scan(
		&l.Email, &l.Name, &l.Contact, &l.CRMID, &status, &m.MeetingBooked, &m.MeetingTime, &m.MeetingLink,
		&m.CalendarEventID, &m.Reminder24hSent, &m.Reminder1hSent, &m.NoBookReminderStage, &m.NoBookReminderTime,
		&m.NoShowReminderStage, &m.NoShowTime, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("lead %s: %w", l.Email, err)
	}
	m.Status = parsed
	return l, nil
}

// Get loads a lead by email.
func (r *Repository) Get(ctx context.Context, email string) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE email = $1`,
		domain.NormalizeEmail(email),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, apperr.NotFound(leadNotFoundMsg)
	}
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// Find returns every lead matching filter, oldest first.
func (r *Repository) Find(ctx context.Context, filter Filter) ([]domain.Lead, error) {
	args := &sqlArgs{}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE ` + filter.where(args) + ` ORDER BY created_at ASC, email ASC`

	rows, err := r.pool.Query(ctx, query, args.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

// UpdateOne applies patch if the lead identified by filter.Email still matches filter.
func (r *Repository) UpdateOne(ctx context.Context, filter Filter, patch Patch) (bool, error) {
	if filter.Email == "" {
		return false, apperr.Validation("conditional update requires an email")
	}
	if patch.Empty() {
		return false, nil
	}

	args := &sqlArgs{}
	set := patch.assignments(args, r.clock.Now())
	query := `UPDATE leads SET ` + set + ` WHERE ` + filter.where(args)

	result, err := r.pool.Exec(ctx, query, args.values...)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// Insert stores a new lead. A duplicate email is a conflict.
func (r *Repository) Insert(ctx context.Context, lead domain.Lead) error {
	if lead.Email == "" {
		return apperr.Validation("lead email is required")
	}
	if !lead.Meeting.Status.Valid() {
		return apperr.Validation("lead status is required")
	}
	now := r.clock.Now()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	m := lead.Meeting

	var crmID *string
	if lead.CRMID != "" {
		crmID = &lead.CRMID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO leads (
			email, name, contact, crm_id, status, meeting_booked, meeting_time, meeting_link, calendar_event_id,
			reminder_24h_sent, reminder_1h_sent, no_book_reminder_stage, no_book_reminder_time,
			no_show_reminder_stage, no_show_time, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		domain.NormalizeEmail(lead.Email), lead.Name, lead.Contact, crmID, m.Status.String(), m.MeetingBooked,
		m.MeetingTime, m.MeetingLink, m.CalendarEventID, m.Reminder24hSent, m.Reminder1hSent,
		m.NoBookReminderStage, m.NoBookReminderTime, m.NoShowReminderStage, m.NoShowTime,
		lead.CreatedAt.UTC(), now,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("lead already exists")
	}
	return err
}

// DeleteByEmail removes a lead.
func (r *Repository) DeleteByEmail(ctx context.Context, email string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE email = $1`, domain.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(leadNotFoundMsg)
	}
	return nil
}

// RecordTransition appends one status change to the audit table.
func (r *Repository) RecordTransition(ctx context.Context, t Transition) error {
	at := t.OccurredAt
	if at.IsZero() {
		at = r.clock.Now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_transitions (id, email, from_status, to_status, source, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), domain.NormalizeEmail(t.Email), t.From.String(), t.To.String(), t.Source, at.UTC(),
	)
	return err
}

// ListTransitions returns the newest transitions for email first.
func (r *Repository) ListTransitions(ctx context.Context, email string, limit int) ([]Transition, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT email, from_status, to_status, source, occurred_at
		FROM lead_transitions
		WHERE email = $1
		ORDER BY occurred_at DESC
		LIMIT $2`,
		domain.NormalizeEmail(email), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Transition
	for rows.Next() {
		var (
			t        Transition
			from, to string
		)
		if err := rows.Scan(&t.Email, &from, &to, &t.Source, &t.OccurredAt); err != nil {
			return nil, err
		}
		// Unknown legacy values decode to StatusUnknown rather than failing the listing.
		t.From, _ = domain.ParseStatus(from)
		t.To, _ = domain.ParseStatus(to)
		items = append(items, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

var (
	_ Store         = (*Repository)(nil)
	_ TransitionLog = (*Repository)(nil)
)

