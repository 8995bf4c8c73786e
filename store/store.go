// Package store provides the SQLite persistence layer: scrape outcomes,
// offer queries, and the CSV/JSON exporters used by the CLI.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/farelens/farelens/models"
)

// Store is the farelens database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the SQLite database at path, applies production
// pragmas, and initialises the schema. ":memory:" opens an ephemeral
// database for tests and one-shot runs.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// Every connection to ":memory:" is a separate database, so the pool
	// must stay at a single connection for ephemeral runs.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: exec schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// SaveOutcome persists one scrape outcome and its offers in a single
// transaction. Offers are flattened to their first segment; an outcome
// without a session ID gets a generated one.
func (s *Store) SaveOutcome(ctx context.Context, outcome *models.ScrapeOutcome) error {
	id := outcome.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	c := outcome.Criteria
	_, err = tx.ExecContext(ctx, `
		INSERT INTO searches (id, origin, destination, departure_date, return_date,
		                      trip_type, success, error_message, total_results,
		                      execution_seconds, final_url, scraped_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, c.Origin, c.Destination, c.DepartureDate, c.ReturnDate,
		string(c.TripType), outcome.Success, outcome.ErrorMessage, outcome.Total,
		outcome.ExecutionSeconds, outcome.FinalURL, outcome.ScrapedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert search: %w", err)
	}

	for _, offer := range outcome.Offers {
		seg := models.FlightSegment{Origin: c.Origin, Destination: c.Destination}
		if len(offer.Segments) > 0 {
			seg = offer.Segments[0]
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO offers (search_id, price, currency, stops, total_duration,
			                    airline, departure_time, arrival_time, origin,
			                    destination, booking_link, scraped_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			id, offer.Price, offer.Currency, offer.Stops, offer.TotalDuration,
			seg.Airline, seg.DepartureTime, seg.ArrivalTime, seg.Origin,
			seg.Destination, offer.BookingLink, offer.ScrapedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("store: insert offer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
