package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/farelens/farelens/models"
	"github.com/farelens/farelens/selector"
)

func testCriteria() models.SearchCriteria {
	return models.SearchCriteria{
		Origin:        "JFK",
		Destination:   "LAX",
		DepartureDate: "2026-09-10",
		TripType:      models.TripOneWay,
		MaxResults:    10,
	}
}

func TestParseOffers_SemanticCard(t *testing.T) {
	markup := `<ul>
		<li>
			<div>
				<img alt="Delta" src="logo.png"/>
				<span aria-label="Departure time: 8:30 AM.">8:30 AM</span>
				<span aria-label="Arrival time: 11:45 AM.">11:45 AM</span>
				<div aria-label="Total duration 5 hr 15 min.">5 hr 15 min</div>
				<span>Nonstop</span>
				<span aria-label="328 US dollars">$328</span>
			</div>
		</li>
	</ul>`

	offers, err := parseOffers(markup, testCriteria(), "USD")
	if err != nil {
		t.Fatalf("parseOffers returned error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}

	offer := offers[0]
	if offer.Price != 328 {
		t.Errorf("Price = %v, want 328", offer.Price)
	}
	if offer.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", offer.Currency)
	}
	if offer.Stops != 0 {
		t.Errorf("Stops = %d, want 0", offer.Stops)
	}
	if offer.TotalDuration != "5 hr 15 min" {
		t.Errorf("TotalDuration = %q, want %q", offer.TotalDuration, "5 hr 15 min")
	}
	if len(offer.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(offer.Segments))
	}
	seg := offer.Segments[0]
	if seg.Airline != "Delta" {
		t.Errorf("Airline = %q, want Delta", seg.Airline)
	}
	if seg.DepartureTime != "8:30 AM" || seg.ArrivalTime != "11:45 AM" {
		t.Errorf("times = %q / %q, want 8:30 AM / 11:45 AM", seg.DepartureTime, seg.ArrivalTime)
	}
	if seg.Origin != "JFK" || seg.Destination != "LAX" {
		t.Errorf("route = %s-%s, want JFK-LAX", seg.Origin, seg.Destination)
	}
	if offer.ScrapedAt.IsZero() {
		t.Error("ScrapedAt not stamped")
	}
}

func TestParseOffers_ClassGenerationCard(t *testing.T) {
	markup := `<ul>
		<li>
			<div class="sSHqwe">United</div>
			<div class="gvkrdb">2 hr 35 min</div>
			<div class="EfT7Ae"><span class="ogfYpf">1 stop</span></div>
			<span class="zxVSec">6:05 PM</span>
			<span class="zxVSec">9:40 PM</span>
			<div><span>$412</span></div>
		</li>
	</ul>`

	offers, err := parseOffers(markup, testCriteria(), "USD")
	if err != nil {
		t.Fatalf("parseOffers returned error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}

	offer := offers[0]
	if offer.Price != 412 {
		t.Errorf("Price = %v, want 412", offer.Price)
	}
	if offer.Stops != 1 {
		t.Errorf("Stops = %d, want 1", offer.Stops)
	}
	if offer.TotalDuration != "2 hr 35 min" {
		t.Errorf("TotalDuration = %q, want %q", offer.TotalDuration, "2 hr 35 min")
	}
	seg := offer.Segments[0]
	if seg.Airline != "United" {
		t.Errorf("Airline = %q, want United", seg.Airline)
	}
	if seg.DepartureTime != "6:05 PM" || seg.ArrivalTime != "9:40 PM" {
		t.Errorf("times = %q / %q, want 6:05 PM / 9:40 PM", seg.DepartureTime, seg.ArrivalTime)
	}
}

func TestParseOffers_ContentFallback(t *testing.T) {
	// No semantic attributes, no known classes: everything comes from
	// pattern matching over the card text.
	markup := `<ul>
		<li>
			<div>
				<span>7:15 AM</span>
				<span>10:05 AM</span>
				<span>5h 50m</span>
				<span>Nonstop</span>
				<span>American</span>
				<span>$289</span>
			</div>
		</li>
	</ul>`

	offers, err := parseOffers(markup, testCriteria(), "USD")
	if err != nil {
		t.Fatalf("parseOffers returned error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}

	offer := offers[0]
	if offer.Price != 289 {
		t.Errorf("Price = %v, want 289", offer.Price)
	}
	if offer.Stops != 0 {
		t.Errorf("Stops = %d, want 0", offer.Stops)
	}
	if offer.TotalDuration != "5h 50m" {
		t.Errorf("TotalDuration = %q, want %q", offer.TotalDuration, "5h 50m")
	}
	seg := offer.Segments[0]
	if seg.Airline != "American" {
		t.Errorf("Airline = %q, want American", seg.Airline)
	}
	if seg.DepartureTime != "7:15 AM" || seg.ArrivalTime != "10:05 AM" {
		t.Errorf("times = %q / %q, want 7:15 AM / 10:05 AM", seg.DepartureTime, seg.ArrivalTime)
	}
}

func TestParseOffers_NestedPriceUnknownAirline(t *testing.T) {
	// A deep wrapper's combined text starts with a bare time digit; the
	// price must still come from the symbol-tagged token, not the first
	// number in document order.
	markup := `<ul>
		<li>
			<div>
				<div><span>8:30 AM</span><span>11:45 AM</span></div>
				<div><span>From $1,024 round trip</span></div>
			</div>
		</li>
	</ul>`

	offers, err := parseOffers(markup, testCriteria(), "USD")
	if err != nil {
		t.Fatalf("parseOffers returned error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}
	if offers[0].Price != 1024 {
		t.Errorf("Price = %v, want 1024", offers[0].Price)
	}
	if offers[0].Segments[0].Airline != "Unknown" {
		t.Errorf("Airline = %q, want Unknown", offers[0].Segments[0].Airline)
	}
}

func TestParseOffers_SkipsNoiseRows(t *testing.T) {
	markup := `<ul>
		<li><span>Show more flights</span></li>
		<li>
			<span>9:10 AM</span><span>12:20 PM</span>
			<span>Delta</span><span>$301</span>
		</li>
		<li><div>Prices are currently typical</div></li>
	</ul>`

	offers, err := parseOffers(markup, testCriteria(), "USD")
	if err != nil {
		t.Fatalf("parseOffers returned error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1 (noise rows skipped)", len(offers))
	}
	if offers[0].Price != 301 {
		t.Errorf("Price = %v, want 301", offers[0].Price)
	}
}

func TestParseOffers_MaxResultsCap(t *testing.T) {
	card := `<li><span>8:00 AM</span><span>9:00 AM</span><span>$100</span></li>`
	markup := "<ul>" + strings.Repeat(card, 5) + "</ul>"

	criteria := testCriteria()
	criteria.MaxResults = 2

	offers, err := parseOffers(markup, criteria, "USD")
	if err != nil {
		t.Fatalf("parseOffers returned error: %v", err)
	}
	if len(offers) != 2 {
		t.Errorf("got %d offers, want 2 (capped)", len(offers))
	}
}

func TestParseOffers_SingleCardFragment(t *testing.T) {
	// Class-based catalog candidates can resolve one result row directly
	// instead of the surrounding list.
	markup := `<div class="pIav2d">
		<span>Delta</span>
		<span>9:00 AM</span>
		<span>12:10 PM</span>
		<span>Nonstop</span>
		<span>$515</span>
	</div>`

	offers, err := parseOffers(markup, testCriteria(), "USD")
	if err != nil {
		t.Fatalf("parseOffers returned error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("got %d offers, want 1", len(offers))
	}
	offer := offers[0]
	if offer.Price != 515 {
		t.Errorf("Price = %v, want 515", offer.Price)
	}
	if offer.Segments[0].Airline != "Delta" {
		t.Errorf("Airline = %q, want Delta", offer.Segments[0].Airline)
	}
	if offer.TotalDuration != "" {
		t.Errorf("TotalDuration = %q, want empty (no duration on card)", offer.TotalDuration)
	}
}

func TestParseOffers_EmptyContainer(t *testing.T) {
	offers, err := parseOffers("<ul></ul>", testCriteria(), "USD")
	if err != nil {
		t.Fatalf("parseOffers returned error: %v", err)
	}
	if len(offers) != 0 {
		t.Errorf("got %d offers, want 0", len(offers))
	}
}

func TestExtract_ThroughResolver(t *testing.T) {
	container := newFakeElement()
	container.html = `<ul>
		<li>
			<span>7:05 AM</span><span>10:15 AM</span>
			<span>United</span><span>$222</span>
		</li>
	</ul>`

	d := &fakeDriver{elements: map[string]*fakeElement{resultsSel: container}}
	res := selector.NewResolver(d, selector.Default(), nil, testSelectorOptions())
	ex := NewExtractor(res, "USD", discardLogger())

	offers, err := ex.Extract(context.Background(), testCriteria())
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(offers) != 1 || offers[0].Price != 222 {
		t.Fatalf("offers = %+v, want one $222 offer", offers)
	}

	mon, ok := res.Monitoring("flight_results")
	if !ok || !mon.FinalSuccess {
		t.Error("flight_results resolution not recorded as successful")
	}
	if mon.SuccessfulSelector != resultsSel {
		t.Errorf("SuccessfulSelector = %q, want %q", mon.SuccessfulSelector, resultsSel)
	}
}

func TestExtract_ContainerMissing(t *testing.T) {
	d := &fakeDriver{elements: map[string]*fakeElement{}}
	res := selector.NewResolver(d, selector.Default(), nil, testSelectorOptions())
	ex := NewExtractor(res, "USD", discardLogger())

	_, err := ex.Extract(context.Background(), testCriteria())
	if err == nil {
		t.Fatal("Extract succeeded with no results container")
	}
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodeElementNotFound {
		t.Errorf("error = %v, want ELEMENT_NOT_FOUND ScrapeError", err)
	}
}
