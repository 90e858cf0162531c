package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/plan"
	"github.com/MrEthical07/authcore/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil pool provided")
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB, err := goose.OpenDBWithDriver("pgx", pool.Config().ConnConfig.ConnString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return goose.UpContext(ctx, sqlDB, "migrations")
}

const selectColumns = `session_id, user_id, device_id, plan_type, is_active, created_at, last_activity`

// Store is a [session.Store] on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ session.Store = (*Store)(nil)

// New wraps pool. The pool must point at a database migrated with [Migrate].
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Admit implements [session.Store].
func (s *Store) Admit(ctx context.Context, a session.Admission) (session.Session, session.AdmitOutcome, error) {
	var (
		out     session.Session
		outcome session.AdmitOutcome
	)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, a.UserID); err != nil {
			return err
		}

		if a.IdleTimeout > 0 {
			cutoff := a.Now.Truncate(time.Millisecond).Add(-a.IdleTimeout)
			if _, err := tx.Exec(ctx, `
				UPDATE device_sessions SET is_active = FALSE
				WHERE user_id = $1 AND device_id <> $2 AND is_active
				AND date_trunc('milliseconds', last_activity) < $3`,
				a.UserID, a.DeviceID, cutoff); err != nil {
				return err
			}
		}

		current, found, err := scanOne(tx.QueryRow(ctx,
			`SELECT `+selectColumns+` FROM device_sessions WHERE user_id = $1 AND device_id = $2`,
			a.UserID, a.DeviceID))
		if err != nil {
			return err
		}

		switch {
		case found && current.IsActive:
			outcome = session.AdmitRefreshed
		default:
			var active int
			if err := tx.QueryRow(ctx,
				`SELECT count(*) FROM device_sessions WHERE user_id = $1 AND is_active`,
				a.UserID).Scan(&active); err != nil {
				return err
			}
			if active >= a.MaxDevices {
				return session.ErrDeviceLimitExceeded
			}
			outcome = session.AdmitReactivated
			if !found {
				outcome = session.AdmitCreated
			}
		}

		out, _, err = scanOne(tx.QueryRow(ctx, `
			INSERT INTO device_sessions (user_id, device_id, session_id, plan_type, is_active, created_at, last_activity)
			VALUES ($1, $2, $3, $4, TRUE, $5, $5)
			ON CONFLICT (user_id, device_id) DO UPDATE
			SET is_active = TRUE, plan_type = EXCLUDED.plan_type, last_activity = EXCLUDED.last_activity
			RETURNING `+selectColumns,
			a.UserID, a.DeviceID, a.SessionID, string(a.PlanType), a.Now))
		return err
	})
	if err != nil {
		if errors.Is(err, session.ErrDeviceLimitExceeded) {
			return session.Session{}, 0, err
		}
		return session.Session{}, 0, unavailable(err)
	}
	return out, outcome, nil
}

// ActiveSessions implements [session.Store].
func (s *Store) ActiveSessions(ctx context.Context, userID string) ([]session.Session, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM device_sessions WHERE user_id = $1 AND is_active`, userID)
}

// Sessions implements [session.Store].
func (s *Store) Sessions(ctx context.Context, userID string) ([]session.Session, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM device_sessions WHERE user_id = $1`, userID)
}

func (s *Store) list(ctx context.Context, query, userID string) ([]session.Session, error) {
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	out := []session.Session{}
	for rows.Next() {
		sess, err := scanRow(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// Deactivate implements [session.Store].
func (s *Store) Deactivate(ctx context.Context, userID, deviceID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE device_sessions SET is_active = FALSE WHERE user_id = $1 AND device_id = $2 AND is_active`,
		userID, deviceID)
	if err != nil {
		return false, unavailable(err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeactivateAll implements [session.Store].
func (s *Store) DeactivateAll(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE device_sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return 0, unavailable(err)
	}
	return int(tag.RowsAffected()), nil
}

// Touch implements [session.Store].
func (s *Store) Touch(ctx context.Context, userID, deviceID string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE device_sessions SET last_activity = $3 WHERE user_id = $1 AND device_id = $2 AND is_active`,
		userID, deviceID, now)
	if err != nil {
		return false, unavailable(err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanOne(row pgx.Row) (session.Session, bool, error) {
	sess, err := scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, false, nil
		}
		return session.Session{}, false, err
	}
	return sess, true, nil
}

func scanRow(row pgx.Row) (session.Session, error) {
	var (
		sess     session.Session
		planType string
	)
	if err := row.Scan(
		&sess.SessionID,
		&sess.UserID,
		&sess.DeviceID,
		&planType,
		&sess.IsActive,
		&sess.CreatedAt,
		&sess.LastActivity,
	); err != nil {
		return session.Session{}, err
	}
	sess.PlanType = plan.Tag(planType)
	return sess, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", session.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
}
