// Package storage keeps a history of pipeline runs in Postgres.
package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/alex-user-go/fares/internal/search/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS fare_runs (
	run_id TEXT PRIMARY KEY,
	origin TEXT NOT NULL,
	destination TEXT NOT NULL,
	journey_date TEXT NOT NULL,
	cabin_class TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	flight_count INTEGER NOT NULL,
	min_price BIGINT,
	generated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS fare_source_runs (
	run_id TEXT NOT NULL REFERENCES fare_runs(run_id) ON DELETE CASCADE,
	source_id TEXT NOT NULL,
	status TEXT NOT NULL,
	record_count INTEGER NOT NULL,
	error_detail TEXT NOT NULL DEFAULT '',
	elapsed_ms BIGINT NOT NULL,
	PRIMARY KEY (run_id, source_id)
);
CREATE TABLE IF NOT EXISTS fare_flights (
	run_id TEXT NOT NULL REFERENCES fare_runs(run_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	flight_id TEXT NOT NULL,
	airline TEXT NOT NULL,
	flight_code TEXT NOT NULL DEFAULT '',
	departure_time INTEGER NOT NULL,
	arrival_time INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL,
	stops INTEGER NOT NULL,
	price BIGINT NOT NULL,
	cabin_class TEXT NOT NULL,
	merged_from TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_fare_runs_route ON fare_runs(origin, destination, journey_date);
`

const (
	insertRun = `INSERT INTO fare_runs
		(run_id, origin, destination, journey_date, cabin_class, outcome, flight_count, min_price, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	insertSourceRun = `INSERT INTO fare_source_runs
		(run_id, source_id, status, record_count, error_detail, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`
	insertFlight = `INSERT INTO fare_flights
		(run_id, position, flight_id, airline, flight_code, departure_time, arrival_time,
		 duration_minutes, stops, price, cabin_class, merged_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
)

// Store writes result bundles to Postgres.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpen int, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres connection")
	}

	if maxOpen <= 0 {
		maxOpen = 5
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return New(db, logger), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, logger: logger}
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "ensure schema")
	}
	return nil
}

// SaveBundle writes the run, its source results, and its fused flights in
// one transaction.
func (s *Store) SaveBundle(ctx context.Context, b *types.ResultBundle) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := b.Query()
	var minPrice sql.NullInt64
	if m := b.Metrics().MinPrice; m.Defined {
		minPrice = sql.NullInt64{Int64: int64(m.Value), Valid: true}
	}
	if _, err = tx.ExecContext(ctx, insertRun,
		b.RunID(), q.Origin, q.Destination, q.JourneyDate, q.CabinClass,
		string(b.Outcome()), b.Len(), minPrice, b.GeneratedAt(),
	); err != nil {
		return errors.Wrapf(err, "insert run %s", b.RunID())
	}

	for _, r := range b.Runs() {
		if _, err = tx.ExecContext(ctx, insertSourceRun,
			b.RunID(), r.SourceID, string(r.Status), r.RecordCount, r.ErrorDetail, r.Elapsed.Milliseconds(),
		); err != nil {
			return errors.Wrapf(err, "insert source run %s", r.SourceID)
		}
	}

	for i, f := range b.Records() {
		if _, err = tx.ExecContext(ctx, insertFlight,
			b.RunID(), i, f.FlightID, f.Airline, f.FlightCode, f.DepartureTime, f.ArrivalTime,
			f.DurationMinutes, f.Stops, f.Price, f.CabinClass, strings.Join(f.MergedFrom, ","),
		); err != nil {
			return errors.Wrapf(err, "insert flight %s", f.FlightID)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	s.logger.Debug("bundle saved", "run_id", b.RunID(), "flights", b.Len())
	return nil
}
