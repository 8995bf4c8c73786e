package store

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/farelens/farelens/models"
)

// csvHeader is the stable column order for offer exports.
var csvHeader = []string{
	"Airline", "Departure Time", "Arrival Time", "Duration", "Stops",
	"Price", "Currency", "Departure Airport", "Arrival Airport",
}

// WriteOffersCSV writes offers as CSV, one row per offer flattened to its
// first segment.
func WriteOffersCSV(w io.Writer, offers []models.FlightOffer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, offer := range offers {
		var seg models.FlightSegment
		if len(offer.Segments) > 0 {
			seg = offer.Segments[0]
		}
		rec := []string{
			seg.Airline,
			seg.DepartureTime,
			seg.ArrivalTime,
			offer.TotalDuration,
			strconv.Itoa(offer.Stops),
			strconv.FormatFloat(offer.Price, 'f', 2, 64),
			offer.Currency,
			seg.Origin,
			seg.Destination,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
