package models

import "time"

// FlightSegment is one leg of an offer as shown on the results page.
type FlightSegment struct {
	Airline       string `json:"airline"`
	DepartureTime string `json:"departure_time,omitempty"`
	ArrivalTime   string `json:"arrival_time,omitempty"`
	Duration      string `json:"duration,omitempty"`
	Origin        string `json:"origin,omitempty"`
	Destination   string `json:"destination,omitempty"`
}

// FlightOffer is one extracted result row.
type FlightOffer struct {
	// Price in Currency units. 0 when the price could not be parsed.
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`

	// Stops is the number of intermediate stops; 0 means nonstop.
	Stops int `json:"stops"`

	// TotalDuration is the displayed trip duration, e.g. "5h 20m".
	TotalDuration string `json:"total_duration,omitempty"`

	Segments    []FlightSegment `json:"segments,omitempty"`
	BookingLink string          `json:"booking_link,omitempty"`
	ScrapedAt   time.Time       `json:"scraped_at"`
}

// ScrapeOutcome is the unified result of one search session, returned by
// the scraper and serialized by the API, CLI, and MCP surfaces.
type ScrapeOutcome struct {
	// SessionID identifies the browser session that produced this outcome.
	SessionID string `json:"session_id"`

	Criteria SearchCriteria `json:"search_criteria"`
	Offers   []FlightOffer  `json:"flights"`
	Total    int            `json:"total_results"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	ScrapedAt        time.Time `json:"scraped_at"`
	ExecutionSeconds float64   `json:"execution_time"`

	// FinalURL is the results-page URL after the search settled.
	FinalURL string `json:"final_url,omitempty"`

	// CacheStatus is "hit" or "miss" when served through the API cache.
	CacheStatus string `json:"cache_status,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// PoolStats reports browser page pool utilisation for health endpoints.
type PoolStats struct {
	ActivePages int `json:"active_pages"`
	MaxPages    int `json:"max_pages"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}
