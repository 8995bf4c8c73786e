package store

import (
	"context"
	"strings"
	"time"

	"github.com/farelens/farelens/models"
)

// StoredOffer is one persisted result row.
type StoredOffer struct {
	ID            int64     `json:"id"`
	SearchID      string    `json:"search_id"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	Stops         int       `json:"stops"`
	TotalDuration string    `json:"total_duration,omitempty"`
	Airline       string    `json:"airline"`
	DepartureTime string    `json:"departure_time,omitempty"`
	ArrivalTime   string    `json:"arrival_time,omitempty"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	BookingLink   string    `json:"booking_link,omitempty"`
	ScrapedAt     time.Time `json:"scraped_at"`
}

// OfferFilter restricts ListOffers. Zero values mean "any".
type OfferFilter struct {
	Origin      string  // IATA code
	Destination string  // IATA code
	MaxPrice    float64 // drops unpriced rows when set
	Limit       int     // default: 50
}

// ListOffers returns persisted offers matching the filter, newest first.
func (s *Store) ListOffers(ctx context.Context, f OfferFilter) ([]StoredOffer, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var where []string
	var args []any

	if f.Origin != "" {
		where = append(where, "origin = ?")
		args = append(args, models.NormalizeAirportCode(f.Origin))
	}
	if f.Destination != "" {
		where = append(where, "destination = ?")
		args = append(args, models.NormalizeAirportCode(f.Destination))
	}
	if f.MaxPrice > 0 {
		// Rows with an unparsed price persist as 0 and never satisfy a
		// price ceiling.
		where = append(where, "price > 0 AND price <= ?")
		args = append(args, f.MaxPrice)
	}

	query := `
		SELECT id, search_id, price, currency, stops, total_duration, airline,
		       departure_time, arrival_time, origin, destination, booking_link,
		       scraped_at
		FROM offers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scraped_at DESC, price ASC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []StoredOffer
	for rows.Next() {
		var o StoredOffer
		var scrapedAt int64
		if err := rows.Scan(&o.ID, &o.SearchID, &o.Price, &o.Currency, &o.Stops,
			&o.TotalDuration, &o.Airline, &o.DepartureTime, &o.ArrivalTime,
			&o.Origin, &o.Destination, &o.BookingLink, &scrapedAt); err != nil {
			return nil, err
		}
		o.ScrapedAt = time.UnixMilli(scrapedAt).UTC()
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// SearchRecord is one persisted search session.
type SearchRecord struct {
	ID               string    `json:"id"`
	Origin           string    `json:"origin"`
	Destination      string    `json:"destination"`
	DepartureDate    string    `json:"departure_date"`
	ReturnDate       string    `json:"return_date,omitempty"`
	TripType         string    `json:"trip_type"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	TotalResults     int       `json:"total_results"`
	ExecutionSeconds float64   `json:"execution_seconds"`
	FinalURL         string    `json:"final_url,omitempty"`
	ScrapedAt        time.Time `json:"scraped_at"`
}

// RecentSearches returns the latest N search sessions.
func (s *Store) RecentSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, origin, destination, departure_date, return_date, trip_type,
		       success, error_message, total_results, execution_seconds,
		       final_url, scraped_at
		FROM searches ORDER BY scraped_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SearchRecord
	for rows.Next() {
		var r SearchRecord
		var scrapedAt int64
		if err := rows.Scan(&r.ID, &r.Origin, &r.Destination, &r.DepartureDate,
			&r.ReturnDate, &r.TripType, &r.Success, &r.ErrorMessage,
			&r.TotalResults, &r.ExecutionSeconds, &r.FinalURL, &scrapedAt); err != nil {
			return nil, err
		}
		r.ScrapedAt = time.UnixMilli(scrapedAt).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
