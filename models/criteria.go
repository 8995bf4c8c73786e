package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TripType selects the search form variant and result URL shape.
type TripType string

const (
	TripOneWay    TripType = "one_way"
	TripRoundTrip TripType = "round_trip"
)

// dateLayout is the wire format for departure/return dates.
const dateLayout = "2006-01-02"

var airportCodeRe = regexp.MustCompile(`^[A-Z]{3}$`)

// SearchCriteria is the input for one flight search. It doubles as the
// payload for POST /api/v1/search.
type SearchCriteria struct {
	// Origin and Destination are IATA airport codes, e.g. "JFK".
	Origin      string `json:"origin" binding:"required"`
	Destination string `json:"destination" binding:"required"`

	// DepartureDate in YYYY-MM-DD. Required.
	DepartureDate string `json:"departure_date" binding:"required"`

	// ReturnDate in YYYY-MM-DD. Required for round trips.
	ReturnDate string `json:"return_date,omitempty"`

	// TripType defaults to round_trip when a return date is present,
	// one_way otherwise.
	TripType TripType `json:"trip_type,omitempty"`

	// MaxResults caps the number of extracted offers. Default: 50.
	MaxResults int `json:"max_results,omitempty" binding:"omitempty,min=1,max=200"`
}

// Defaults applies default values to unset fields.
func (c *SearchCriteria) Defaults() {
	c.Origin = NormalizeAirportCode(c.Origin)
	c.Destination = NormalizeAirportCode(c.Destination)
	if c.TripType == "" {
		if c.ReturnDate != "" {
			c.TripType = TripRoundTrip
		} else {
			c.TripType = TripOneWay
		}
	}
	if c.MaxResults == 0 {
		c.MaxResults = 50
	}
}

// Validate checks codes, dates, and trip-type consistency.
func (c *SearchCriteria) Validate() error {
	if !airportCodeRe.MatchString(c.Origin) {
		return NewScrapeError(ErrCodeInvalidInput,
			fmt.Sprintf("invalid origin airport code %q", c.Origin), nil)
	}
	if !airportCodeRe.MatchString(c.Destination) {
		return NewScrapeError(ErrCodeInvalidInput,
			fmt.Sprintf("invalid destination airport code %q", c.Destination), nil)
	}
	if c.Origin == c.Destination {
		return NewScrapeError(ErrCodeInvalidInput, "origin and destination are the same", nil)
	}

	dep, err := time.Parse(dateLayout, c.DepartureDate)
	if err != nil {
		return NewScrapeError(ErrCodeInvalidInput,
			fmt.Sprintf("invalid departure date %q, want YYYY-MM-DD", c.DepartureDate), err)
	}

	switch c.TripType {
	case TripOneWay:
		if c.ReturnDate != "" {
			return NewScrapeError(ErrCodeInvalidInput, "return date set on a one-way trip", nil)
		}
	case TripRoundTrip:
		if c.ReturnDate == "" {
			return NewScrapeError(ErrCodeInvalidInput, "round trip requires a return date", nil)
		}
		ret, err := time.Parse(dateLayout, c.ReturnDate)
		if err != nil {
			return NewScrapeError(ErrCodeInvalidInput,
				fmt.Sprintf("invalid return date %q, want YYYY-MM-DD", c.ReturnDate), err)
		}
		if ret.Before(dep) {
			return NewScrapeError(ErrCodeInvalidInput, "return date is before departure date", nil)
		}
	default:
		return NewScrapeError(ErrCodeInvalidInput,
			fmt.Sprintf("unknown trip type %q", c.TripType), nil)
	}

	return nil
}

// Route is a short human-readable label, e.g. "JFK-LAX".
func (c *SearchCriteria) Route() string {
	return c.Origin + "-" + c.Destination
}

// NormalizeAirportCode trims and upper-cases a user-supplied code.
func NormalizeAirportCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
