package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agrosolutions/alert-engine/internal/model"
	"github.com/agrosolutions/alert-engine/internal/model/messages"
)

// MySQL is the primary store. It owns the invariant the lifecycle manager
// depends on: the unique key over (plot_id, alert_type, active) makes the
// fire path a single atomic unit regardless of how many workers run. The
// `active` column is 1 while an alert is unresolved and NULL afterwards;
// NULLs never collide in a MySQL unique key, so any number of resolved rows
// can coexist with at most one unresolved row per pair.
type MySQL struct {
	db *sql.DB
}

// OpenMySQL opens the primary store and verifies connectivity with
// exponential backoff. The DSN must carry parseTime=true.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &MySQL{db: db}, nil
}

func (s *MySQL) Close() error { return s.db.Close() }

// Ping checks connectivity for health probes.
func (s *MySQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureSchema creates the engine's tables when missing. Migrations proper
// are out of scope; this keeps a fresh database usable.
func (s *MySQL) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sensor_readings (
			id            CHAR(36)     NOT NULL,
			plot_id       CHAR(36)     NOT NULL,
			ts            DATETIME(3)  NOT NULL,
			soil_moisture DECIMAL(5,2) NOT NULL,
			temperature   DECIMAL(5,2) NOT NULL,
			precipitation DECIMAL(5,2) NOT NULL,
			PRIMARY KEY (id),
			KEY idx_readings_plot_ts (plot_id, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id         CHAR(36)      NOT NULL,
			plot_id    CHAR(36)      NOT NULL,
			alert_type VARCHAR(100)  NOT NULL,
			message    VARCHAR(1000) NOT NULL,
			severity   VARCHAR(50)   NOT NULL,
			created_at DATETIME(3)   NOT NULL,
			resolved   TINYINT(1)    NOT NULL DEFAULT 0,
			active     TINYINT(1)    NULL DEFAULT 1,
			PRIMARY KEY (id),
			KEY idx_alerts_plot_created (plot_id, created_at),
			UNIQUE KEY uq_alerts_active (plot_id, alert_type, active)
		)`,
		`CREATE TABLE IF NOT EXISTS alert_outbox (
			seq          BIGINT      NOT NULL AUTO_INCREMENT,
			alert_id     CHAR(36)    NOT NULL,
			payload      JSON        NOT NULL,
			enqueued_at  DATETIME(3) NOT NULL,
			published_at DATETIME(3) NULL,
			PRIMARY KEY (seq),
			KEY idx_outbox_pending (published_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ---- ReadingStore ----

func (s *MySQL) Append(ctx context.Context, r model.Reading) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO sensor_readings
		 (id, plot_id, ts, soil_moisture, temperature, precipitation)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.PlotID.String(), r.Timestamp.UTC(),
		r.SoilMoisture.String(), r.Temperature.String(), r.Precipitation.String())
	if err != nil {
		return false, fmt.Errorf("append reading: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *MySQL) CountReadings(ctx context.Context, plotID uuid.UUID, since time.Time) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM sensor_readings WHERE plot_id = ? AND ts >= ?`,
		plotID.String(), since.UTC())
}

func (s *MySQL) CountMoistureBelow(ctx context.Context, plotID uuid.UUID, since time.Time, threshold decimal.Decimal) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM sensor_readings
		 WHERE plot_id = ? AND ts >= ? AND soil_moisture < ?`,
		plotID.String(), since.UTC(), threshold.String())
}

func (s *MySQL) CountTemperatureAbove(ctx context.Context, plotID uuid.UUID, since time.Time, threshold decimal.Decimal) (int, error) {
	return s.count(ctx,
		`SELECT COUNT(*) FROM sensor_readings
		 WHERE plot_id = ? AND ts >= ? AND temperature > ?`,
		plotID.String(), since.UTC(), threshold.String())
}

func (s *MySQL) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return n, nil
}

func (s *MySQL) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sensor_readings WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return res.RowsAffected()
}

// ---- AlertStore ----

func (s *MySQL) Create(ctx context.Context, a model.Alert) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// id=id makes a duplicate-key hit a clean no-op: RowsAffected is 0 for
	// the loser of a concurrent fire race, 1 for the winner.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO alerts
		 (id, plot_id, alert_type, message, severity, created_at, resolved, active)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 1)
		 ON DUPLICATE KEY UPDATE id = id`,
		a.ID.String(), a.PlotID.String(), string(a.Type),
		a.Message, string(a.Severity), a.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, tx.Commit()
	}

	payload, err := json.Marshal(messages.NewAlertCreated(a))
	if err != nil {
		return false, fmt.Errorf("marshal outbox payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO alert_outbox (alert_id, payload, enqueued_at)
		 VALUES (?, ?, ?)`,
		a.ID.String(), payload, a.CreatedAt.UTC()); err != nil {
		return false, fmt.Errorf("enqueue outbox: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	return true, nil
}

func (s *MySQL) HasUnresolved(ctx context.Context, plotID uuid.UUID, t model.AlertType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM alerts
			WHERE plot_id = ? AND alert_type = ? AND active = 1)`,
		plotID.String(), string(t)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("unresolved check: %w", err)
	}
	return exists, nil
}

func (s *MySQL) HasUnresolvedOrRecent(ctx context.Context, plotID uuid.UUID, t model.AlertType, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM alerts
			WHERE plot_id = ? AND alert_type = ?
			  AND (active = 1 OR created_at >= ?))`,
		plotID.String(), string(t), since.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("recent check: %w", err)
	}
	return exists, nil
}

func (s *MySQL) ResolveAll(ctx context.Context, plotID uuid.UUID, t model.AlertType) ([]model.Alert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve alerts: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, plot_id, alert_type, message, severity, created_at
		 FROM alerts
		 WHERE plot_id = ? AND alert_type = ? AND active = 1
		 FOR UPDATE`,
		plotID.String(), string(t))
	if err != nil {
		return nil, fmt.Errorf("resolve alerts: %w", err)
	}
	resolved, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE alerts SET resolved = 1, active = NULL
		 WHERE plot_id = ? AND alert_type = ? AND active = 1`,
		plotID.String(), string(t)); err != nil {
		return nil, fmt.Errorf("resolve alerts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("resolve alerts: %w", err)
	}
	for i := range resolved {
		resolved[i].Resolved = true
	}
	return resolved, nil
}

func (s *MySQL) UnresolvedByPlot(ctx context.Context, plotID uuid.UUID) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plot_id, alert_type, message, severity, created_at
		 FROM alerts
		 WHERE plot_id = ? AND active = 1
		 ORDER BY created_at DESC`,
		plotID.String())
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	defer rows.Close()
	var out []model.Alert
	for rows.Next() {
		var (
			a             model.Alert
			id, plot, typ string
			severity      string
		)
		if err := rows.Scan(&id, &plot, &typ, &a.Message, &severity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		aid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("scan alert id: %w", err)
		}
		pid, err := uuid.Parse(plot)
		if err != nil {
			return nil, fmt.Errorf("scan plot id: %w", err)
		}
		a.ID, a.PlotID = aid, pid
		a.Type = model.AlertType(typ)
		a.Severity = model.Severity(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---- OutboxStore ----

func (s *MySQL) NextPending(ctx context.Context, limit int) ([]PendingEvent, error) {
	if limit <= 0 {
		limit = 32
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, payload FROM alert_outbox
		 WHERE published_at IS NULL
		 ORDER BY seq
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox pending: %w", err)
	}
	defer rows.Close()

	var out []PendingEvent
	for rows.Next() {
		var (
			p       PendingEvent
			payload []byte
		)
		if err := rows.Scan(&p.Seq, &payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		if err := json.Unmarshal(payload, &p.Event); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *MySQL) MarkPublished(ctx context.Context, seq int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_outbox SET published_at = UTC_TIMESTAMP(3)
		 WHERE seq = ? AND published_at IS NULL`, seq)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQL) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("outbox count: %w", err)
	}
	return n, nil
}
