// Package sqlite provides a SQLite-backed repository.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/pkg/metrics"
)

// ErrPathRequired is returned by Open for an empty path.
var ErrPathRequired = errors.New("storage path is required")

const dsnParams = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"

// Store persists claims, outcomes and forecasters in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", filepath.Clean(path)+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateClaim(ctx context.Context, c model.Claim) (model.Claim, error) {
	defer repository.ObserveLatency("create_claim", time.Now())

	if c.ID == "" {
		return model.Claim{}, fmt.Errorf("%w: missing id", repository.ErrInvalidClaim)
	}
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Status == "" {
		c.Status = model.StatusPending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Claim{}, fmt.Errorf("begin create claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if c.ForecasterID != "" {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM forecasters WHERE id = ?`, c.ForecasterID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Claim{}, fmt.Errorf("%w: forecaster %s", repository.ErrNotFound, c.ForecasterID)
		}
		if err != nil {
			return model.Claim{}, fmt.Errorf("lookup forecaster: %w", err)
		}
	}

	p := model.Flatten(c.Prediction)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO claims (
		   id, forecaster_id, text, domain, subtype, claim_type,
		   predicted_value, predicted_category, predicted_probability,
		   status, deadline, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, nullString(c.ForecasterID), c.Text, string(c.Domain), c.Subtype, string(c.Type),
		p.Number, p.Category, p.Probability,
		string(c.Status), nullMillis(c.Deadline), toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Claim{}, fmt.Errorf("%w: claim %s exists", repository.ErrConflict, c.ID)
		}
		return model.Claim{}, fmt.Errorf("insert claim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Claim{}, fmt.Errorf("commit create claim: %w", err)
	}
	return c, nil
}

const claimColumns = `c.id, c.forecaster_id, c.text, c.domain, c.subtype, c.claim_type,
	c.predicted_value, c.predicted_category, c.predicted_probability,
	c.status, c.deadline, c.created_at, c.updated_at`

const outcomeColumns = `o.id, o.actual_value, o.actual_category, o.actual_probability,
	o.perimeter_score, o.data_source, o.verified_at, o.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(row scanner, extra ...any) (model.Claim, error) {
	var (
		c                   model.Claim
		forecaster          sql.NullString
		domain, typ, status string
		p                   model.Flat
		deadline            sql.NullInt64
		created, updated    int64
	)
	dest := []any{
		&c.ID, &forecaster, &c.Text, &domain, &c.Subtype, &typ,
		&p.Number, &p.Category, &p.Probability,
		&status, &deadline, &created, &updated,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Claim{}, err
	}

	pred, err := p.Unflatten()
	if err != nil {
		return model.Claim{}, fmt.Errorf("claim %s prediction: %w", c.ID, err)
	}
	c.ForecasterID = forecaster.String
	c.Domain = model.Domain(domain)
	c.Type = model.ClaimType(typ)
	c.Status = model.Status(status)
	c.Prediction = pred
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	if deadline.Valid {
		d := fromMillis(deadline.Int64)
		c.Deadline = &d
	}
	return c, nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (model.Claim, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims c WHERE c.id = ?`, id)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Claim{}, fmt.Errorf("%w: claim %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return model.Claim{}, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

func (s *Store) ListClaims(ctx context.Context, f repository.ClaimFilter) ([]model.Claim, error) {
	defer repository.ObserveLatency("list_claims", time.Now())

	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.Domain != "" {
		where = append(where, "c.domain = ?")
		args = append(args, string(f.Domain))
	}
	if f.Status != "" {
		where = append(where, "c.status = ?")
		args = append(args, string(f.Status))
	}
	if f.ForecasterID != "" {
		where = append(where, "c.forecaster_id = ?")
		args = append(args, f.ForecasterID)
	}

	q := `SELECT ` + claimColumns + ` FROM claims c` + whereClause(where) +
		` ORDER BY c.created_at DESC, c.id ASC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	out := make([]model.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Records(ctx context.Context, f repository.RecordFilter) ([]model.Record, error) {
	defer repository.ObserveLatency("records", time.Now())

	var (
		where []string
		args  []any
	)
	if f.Domain != "" {
		where = append(where, "c.domain = ?")
		args = append(args, string(f.Domain))
	}
	if !f.Since.IsZero() {
		where = append(where, "c.created_at >= ?")
		args = append(args, toMillis(f.Since))
	}

	q := `SELECT ` + claimColumns + `, ` + outcomeColumns + `
	      FROM claims c LEFT JOIN outcomes o ON o.claim_id = c.id` +
		whereClause(where) + ` ORDER BY c.id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make([]model.Record, 0)
	for rows.Next() {
		var (
			oid                sql.NullString
			a                  model.Flat
			score              sql.NullFloat64
			source             sql.NullString
			verified, oCreated sql.NullInt64
		)
		c, err := scanClaim(rows, &oid, &a.Number, &a.Category, &a.Probability, &score, &source, &verified, &oCreated)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r := model.Record{Claim: c}
		if oid.Valid {
			actual, err := a.Unflatten()
			if err != nil {
				return nil, fmt.Errorf("outcome %s actual: %w", oid.String, err)
			}
			r.Outcome = &model.Outcome{
				ID:             oid.String,
				ClaimID:        c.ID,
				Actual:         actual,
				PerimeterScore: score.Float64,
				DataSource:     source.String,
				VerifiedAt:     fromMillis(verified.Int64),
				CreatedAt:      fromMillis(oCreated.Int64),
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertOutcome(ctx context.Context, o model.Outcome) (model.Outcome, error) {
	defer repository.ObserveLatency("insert_outcome", time.Now())

	now := s.now().UTC()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.VerifiedAt.IsZero() {
		o.VerifiedAt = o.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Outcome{}, fmt.Errorf("begin insert outcome: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM claims WHERE id = ?`, o.ClaimID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Outcome{}, fmt.Errorf("%w: claim %s", repository.ErrNotFound, o.ClaimID)
	}
	if err != nil {
		return model.Outcome{}, fmt.Errorf("lookup claim: %w", err)
	}
	if model.Status(status) == model.StatusResolved {
		return model.Outcome{}, fmt.Errorf("%w: claim %s already resolved", repository.ErrConflict, o.ClaimID)
	}

	a := model.Flatten(o.Actual)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO outcomes (
		   id, claim_id, actual_value, actual_category, actual_probability,
		   perimeter_score, data_source, verified_at, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ClaimID, a.Number, a.Category, a.Probability,
		o.PerimeterScore, o.DataSource, toMillis(o.VerifiedAt), toMillis(o.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Outcome{}, fmt.Errorf("%w: claim %s already resolved", repository.ErrConflict, o.ClaimID)
		}
		return model.Outcome{}, fmt.Errorf("insert outcome: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE claims SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusResolved), toMillis(o.CreatedAt), o.ClaimID,
	); err != nil {
		return model.Outcome{}, fmt.Errorf("mark claim resolved: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Outcome{}, fmt.Errorf("commit insert outcome: %w", err)
	}
	return o, nil
}

func (s *Store) GetOutcome(ctx context.Context, claimID string) (model.Outcome, error) {
	var (
		o                 = model.Outcome{ClaimID: claimID}
		a                 model.Flat
		verified, created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes o WHERE o.claim_id = ?`, claimID,
	).Scan(&o.ID, &a.Number, &a.Category, &a.Probability, &o.PerimeterScore, &o.DataSource, &verified, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Outcome{}, fmt.Errorf("%w: outcome for claim %s", repository.ErrNotFound, claimID)
	}
	if err != nil {
		return model.Outcome{}, fmt.Errorf("get outcome: %w", err)
	}
	if o.Actual, err = a.Unflatten(); err != nil {
		return model.Outcome{}, fmt.Errorf("outcome %s actual: %w", o.ID, err)
	}
	o.VerifiedAt = fromMillis(verified)
	o.CreatedAt = fromMillis(created)
	return o, nil
}

func (s *Store) UpsertForecaster(ctx context.Context, f model.Forecaster) (model.Forecaster, error) {
	defer repository.ObserveLatency("upsert_forecaster", time.Now())

	if f.Name == "" {
		f.Name = repository.DefaultForecasterName
	}
	if f.Platform == "" {
		f.Platform = repository.DefaultForecasterPlatform
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Forecaster{}, fmt.Errorf("begin upsert forecaster: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if f.Username != "" {
		existing, err := scanForecaster(tx.QueryRowContext(ctx,
			`SELECT id, name, username, platform, verified, created_at
			   FROM forecasters WHERE username = ? AND platform = ?`, f.Username, f.Platform))
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `UPDATE forecasters SET name = ? WHERE id = ?`, f.Name, existing.ID); err != nil {
				return model.Forecaster{}, fmt.Errorf("update forecaster: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return model.Forecaster{}, fmt.Errorf("commit upsert forecaster: %w", err)
			}
			existing.Name = f.Name
			return existing, nil
		case !errors.Is(err, sql.ErrNoRows):
			return model.Forecaster{}, fmt.Errorf("lookup forecaster: %w", err)
		}
	}

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO forecasters (id, name, username, platform, verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, nullString(f.Username), f.Platform, f.Verified, toMillis(f.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Forecaster{}, fmt.Errorf("%w: forecaster %s", repository.ErrConflict, f.ID)
		}
		return model.Forecaster{}, fmt.Errorf("insert forecaster: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Forecaster{}, fmt.Errorf("commit upsert forecaster: %w", err)
	}
	return f, nil
}

func scanForecaster(row scanner) (model.Forecaster, error) {
	var (
		f        model.Forecaster
		username sql.NullString
		created  int64
	)
	if err := row.Scan(&f.ID, &f.Name, &username, &f.Platform, &f.Verified, &created); err != nil {
		return model.Forecaster{}, err
	}
	f.Username = username.String
	f.CreatedAt = fromMillis(created)
	return f, nil
}

func (s *Store) GetForecaster(ctx context.Context, id string) (model.Forecaster, error) {
	f, err := scanForecaster(s.db.QueryRowContext(ctx,
		`SELECT id, name, username, platform, verified, created_at FROM forecasters WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Forecaster{}, fmt.Errorf("%w: forecaster %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return model.Forecaster{}, fmt.Errorf("get forecaster: %w", err)
	}
	return f, nil
}

func (s *Store) Forecasters(ctx context.Context) (map[string]model.Forecaster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, username, platform, verified, created_at FROM forecasters`)
	if err != nil {
		return nil, fmt.Errorf("list forecasters: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Forecaster)
	for rows.Next() {
		f, err := scanForecaster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan forecaster: %w", err)
		}
		out[f.ID] = f
	}
	return out, rows.Err()
}

func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	defer repository.ObserveLatency("expire_overdue", time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE claims SET status = ?, updated_at = ?
		  WHERE status = ? AND deadline IS NOT NULL AND deadline < ?`,
		string(model.StatusExpired), toMillis(now), string(model.StatusPending), toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("expire claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire claims: %w", err)
	}
	return int(n), nil
}

func (s *Store) Count(ctx context.Context) (repository.Counts, error) {
	var c repository.Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM claims),
		(SELECT COUNT(*) FROM outcomes),
		(SELECT COUNT(*) FROM forecasters)`).Scan(&c.Claims, &c.Outcomes, &c.Forecasters)
	if err != nil {
		return repository.Counts{}, fmt.Errorf("count: %w", err)
	}
	metrics.UpdateRepositoryRecords("claims", c.Claims)
	metrics.UpdateRepositoryRecords("outcomes", c.Outcomes)
	metrics.UpdateRepositoryRecords("forecasters", c.Forecasters)
	return c, nil
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
