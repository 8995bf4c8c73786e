package store

import (
	"encoding/json"
	"io"

	"github.com/farelens/farelens/models"
)

// WriteOutcomeJSON writes the full outcome as indented JSON.
func WriteOutcomeJSON(w io.Writer, outcome *models.ScrapeOutcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}
