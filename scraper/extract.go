package scraper

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/farelens/farelens/models"
	"github.com/farelens/farelens/selector"
)

// Field selector ladders, applied in order: semantic attributes first, then
// the class names the current markup generation uses, then content pattern
// matching over the card text. The same layering the resolver applies to
// whole-page elements, scaled down to one result card.
var (
	priceSemanticSels = []string{
		`[aria-label*="dollar"]`,
		`[aria-label*="price"]`,
		`[data-testid*="price"]`,
		`[data-gs*="price"]`,
		`[jsname*="price"]`,
	}
	priceStructuralSels = []string{
		`.price-container`,
		`.flight-price`,
		`.fare-price`,
		`div:last-child span`,
		`div[style*="right"] span`,
	}

	airlineSemanticSels = []string{
		`[aria-label*="airline"]`,
		`[data-testid*="airline"]`,
		`img[alt]`,
	}
	airlineClassSels = []string{`.Ir0Voe`, `.sSHqwe`, `[data-gs*="airline"]`}

	durationSemanticSels = []string{
		`[aria-label*="duration"]`,
		`[data-testid*="duration"]`,
		`[data-gs*="duration"]`,
	}
	durationClassSels = []string{`.gvkrdb`, `.AdWm1c`}

	stopsSemanticSels = []string{
		`[aria-label*="stop"]`,
		`[data-testid*="stop"]`,
		`[data-gs*="stop"]`,
	}
	stopsClassSels = []string{`.EfT7Ae .ogfYpf`, `.c8rWCd`}

	timeSemanticSels = []string{
		`[aria-label*="Departure"], [aria-label*="Arrival"]`,
		`[aria-label*="departure"], [aria-label*="arrival"]`,
		`[data-testid*="time"]`,
		`[data-gs*="time"]`,
	}
	timeClassSels = []string{`.wtdjmc .eoY5cb`, `.zxVSec`}
)

var (
	durationHintRe  = regexp.MustCompile(`\d+\s*hrs?\b(?:\s*\d+\s*m(?:in)?s?\b)?|\d+\s*h\b(?:\s*\d+\s*m\b)?|\d{1,2}:\d{2}`)
	meridiemClockRe = regexp.MustCompile(`(?i)\d{1,2}:\d{2}\s*[ap]m\b`)
	stopsHintRe     = regexp.MustCompile(`(?i)\b(?:nonstop|direct|\d+\s*stops?)\b`)
)

// knownCarriers anchors the content-based airline fallback. Lowercase for
// case-folded matching.
var knownCarriers = []string{
	"united", "american", "delta", "southwest", "jetblue", "alaska",
	"spirit", "frontier", "lufthansa", "british airways",
}

// Extractor converts the results DOM into structured flight offers.
type Extractor struct {
	res      *selector.Resolver
	currency string
	log      *slog.Logger
}

// NewExtractor builds an extractor over a session-bound resolver.
func NewExtractor(res *selector.Resolver, currency string, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{res: res, currency: currency, log: log}
}

// Extract locates the results list through the resolver and converts its
// cards into offers, capped at criteria.MaxResults. A card that yields no
// recognizable fields is skipped; extraction only fails when the results
// container itself cannot be located or read.
func (e *Extractor) Extract(ctx context.Context, criteria models.SearchCriteria) ([]models.FlightOffer, error) {
	container, mon, err := e.res.Resolve(ctx, "flight_results")
	if err != nil {
		return nil, err
	}

	markup, err := container.HTML()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction,
			"reading results container markup", err)
	}

	offers, err := parseOffers(markup, criteria, e.currency)
	if err != nil {
		return nil, err
	}

	e.log.Info("extracted flight offers",
		"count", len(offers),
		"container_selector", mon.SuccessfulSelector,
		"container_strategy", mon.SuccessfulStrategy)
	return offers, nil
}

// parseOffers walks every result card in the container markup.
func parseOffers(markup string, criteria models.SearchCriteria, currency string) ([]models.FlightOffer, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction,
			"parsing results container markup", err)
	}

	max := criteria.MaxResults
	if max <= 0 {
		max = 50
	}

	var offers []models.FlightOffer
	offerCards(doc).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if offer, ok := extractOffer(card, criteria, currency); ok {
			offers = append(offers, offer)
		}
		return len(offers) < max
	})
	return offers, nil
}

// offerCards picks the per-offer nodes. The results list renders as li rows
// inside a ul; class-based catalog candidates may resolve a row directly, in
// which case the fragment root is the single card.
func offerCards(doc *goquery.Document) *goquery.Selection {
	if items := doc.Find("li"); items.Length() > 0 {
		return items
	}
	if items := doc.Find("ul").Children(); items.Length() > 0 {
		return items
	}
	return doc.Find("body").Children()
}

func extractOffer(card *goquery.Selection, criteria models.SearchCriteria, currency string) (models.FlightOffer, bool) {
	price, priceOK := extractPrice(card)
	airline, airlineOK := extractAirline(card)
	duration, _ := extractDuration(card)
	stops := extractStops(card)
	departure, arrival, timesOK := extractTimes(card)

	// Result lists carry non-offer rows ("Show more flights", date strips).
	// A row with neither a price, a carrier, nor a time pair is one of those.
	if !priceOK && !airlineOK && !timesOK {
		return models.FlightOffer{}, false
	}

	if !airlineOK {
		airline = "Unknown"
	}

	segment := models.FlightSegment{
		Airline:       airline,
		DepartureTime: departure,
		ArrivalTime:   arrival,
		Duration:      duration,
		Origin:        criteria.Origin,
		Destination:   criteria.Destination,
	}
	return models.FlightOffer{
		Price:         price,
		Currency:      currency,
		Stops:         stops,
		TotalDuration: duration,
		Segments:      []models.FlightSegment{segment},
		ScrapedAt:     time.Now().UTC(),
	}, true
}

func extractPrice(card *goquery.Selection) (float64, bool) {
	for _, sel := range priceSemanticSels {
		if v, ok := priceFromText(card.Find(sel).First().Text()); ok {
			return v, true
		}
	}
	if v, ok := priceFromContent(card); ok {
		return v, true
	}
	for _, sel := range priceStructuralSels {
		if v, ok := priceFromText(card.Find(sel).First().Text()); ok {
			return v, true
		}
	}
	return 0, false
}

// priceFromText accepts an amount only when the matched token itself carries
// a currency symbol, so bare times and stop counts never read as prices.
func priceFromText(text string) (float64, bool) {
	m := priceRe.FindString(text)
	if m == "" || !hasCurrencyHint(m) {
		return 0, false
	}
	return ParsePrice(m)
}

// priceFromContent scans every span and div for a symbol-tagged amount and
// keeps the shortest matching text, which lands on the dedicated price node
// rather than an enclosing wrapper.
func priceFromContent(card *goquery.Selection) (float64, bool) {
	best := ""
	card.Find("span, div").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || !hasDigit(text) {
			return
		}
		m := priceRe.FindString(text)
		if m == "" || !hasCurrencyHint(m) {
			return
		}
		if best == "" || len(text) < len(best) {
			best = text
		}
	})
	if best == "" {
		return 0, false
	}
	return priceFromText(best)
}

func extractAirline(card *goquery.Selection) (string, bool) {
	for _, sel := range airlineSemanticSels {
		found := card.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		if alt, ok := found.Attr("alt"); ok && len(strings.TrimSpace(alt)) > 1 {
			return strings.TrimSpace(alt), true
		}
		if text := strings.TrimSpace(found.Text()); text != "" {
			return text, true
		}
	}
	for _, sel := range airlineClassSels {
		if text := strings.TrimSpace(card.Find(sel).First().Text()); text != "" {
			return text, true
		}
	}

	best := ""
	card.Find("span, div").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		lower := strings.ToLower(text)
		for _, carrier := range knownCarriers {
			if strings.Contains(lower, carrier) {
				if best == "" || len(text) < len(best) {
					best = text
				}
				return
			}
		}
	})
	if best != "" {
		return best, true
	}
	return "", false
}

func extractDuration(card *goquery.Selection) (string, bool) {
	for _, sel := range durationSemanticSels {
		if text := strings.TrimSpace(card.Find(sel).First().Text()); text != "" {
			return ParseDuration(text), true
		}
	}
	for _, sel := range durationClassSels {
		if text := strings.TrimSpace(card.Find(sel).First().Text()); text != "" {
			return ParseDuration(text), true
		}
	}
	// Content pass. Clock times also match the h:mm duration shape, so
	// meridiem-tagged texts are skipped rather than read as durations.
	best := ""
	card.Find("span, div").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || !durationHintRe.MatchString(text) || meridiemClockRe.MatchString(text) {
			return
		}
		if best == "" || len(text) < len(best) {
			best = text
		}
	})
	if best != "" {
		return ParseDuration(durationHintRe.FindString(best)), true
	}
	return "", false
}

func extractStops(card *goquery.Selection) int {
	for _, sel := range stopsSemanticSels {
		if text := strings.TrimSpace(card.Find(sel).First().Text()); text != "" {
			return ParseStops(text)
		}
	}
	for _, sel := range stopsClassSels {
		if text := strings.TrimSpace(card.Find(sel).First().Text()); text != "" {
			return ParseStops(text)
		}
	}
	if text := smallestMatch(card, stopsHintRe); text != "" {
		return ParseStops(stopsHintRe.FindString(text))
	}
	return 0
}

func extractTimes(card *goquery.Selection) (departure, arrival string, ok bool) {
	ladders := [][]string{timeSemanticSels, timeClassSels}
	for _, sels := range ladders {
		for _, sel := range sels {
			found := card.Find(sel)
			if found.Length() < 2 {
				continue
			}
			departure = strings.TrimSpace(found.First().Text())
			arrival = strings.TrimSpace(found.Last().Text())
			if departure != "" && arrival != "" {
				return departure, arrival, true
			}
		}
	}

	if times := ParseClockTimes(card.Text()); len(times) >= 2 {
		return times[0], times[len(times)-1], true
	}
	return "", "", false
}

// smallestMatch returns the shortest span or div text matching re, skipping
// the enclosing wrappers whose text concatenates every field.
func smallestMatch(card *goquery.Selection, re *regexp.Regexp) string {
	best := ""
	card.Find("span, div").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" || !re.MatchString(text) {
			return
		}
		if best == "" || len(text) < len(best) {
			best = text
		}
	})
	return best
}
