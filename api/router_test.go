package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/farelens/farelens/config"
	"github.com/farelens/farelens/models"
	"github.com/farelens/farelens/selector"
	"github.com/farelens/farelens/store"
)

const searchBody = `{"origin":"JFK","destination":"LAX","departure_date":"2026-09-10"}`

// stubSearcher satisfies handler.Searcher without a browser.
type stubSearcher struct {
	outcome *models.ScrapeOutcome
	stats   models.PoolStats

	got models.SearchCriteria
}

func (s *stubSearcher) Search(_ context.Context, criteria models.SearchCriteria) *models.ScrapeOutcome {
	s.got = criteria
	if s.outcome != nil {
		return s.outcome
	}
	return &models.ScrapeOutcome{
		Success:  true,
		Criteria: criteria,
		Offers: []models.FlightOffer{{
			Price:    328,
			Currency: "USD",
			Segments: []models.FlightSegment{{Airline: "Delta"}},
		}},
		Total: 1,
	}
}

func (s *stubSearcher) Stats() models.PoolStats { return s.stats }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth.Enabled = false
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100}
	return cfg
}

func testMonitor() *selector.HealthMonitor {
	return selector.NewHealthMonitor(selector.Thresholds{}, discardLogger())
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedOffers(t *testing.T, st *store.Store) {
	t.Helper()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	out := &models.ScrapeOutcome{
		SessionID: "sess-api-test",
		Criteria: models.SearchCriteria{
			Origin:        "JFK",
			Destination:   "LAX",
			DepartureDate: "2026-09-10",
			TripType:      models.TripOneWay,
		},
		Offers: []models.FlightOffer{
			{
				Price: 328, Currency: "USD", ScrapedAt: now,
				Segments: []models.FlightSegment{{Airline: "Delta", Origin: "JFK", Destination: "LAX"}},
			},
			{
				Price: 512, Currency: "USD", ScrapedAt: now,
				Segments: []models.FlightSegment{{Airline: "United", Origin: "JFK", Destination: "LAX"}},
			},
		},
		Success:   true,
		Total:     2,
		ScrapedAt: now,
	}
	if err := st.SaveOutcome(context.Background(), out); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}
}

func postJSON(r *gin.Engine, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func get(r *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth_OpenAccessAndHealthy(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"secret-key"}

	sc := &stubSearcher{stats: models.PoolStats{ActivePages: 1, MaxPages: 4}}
	r := NewRouter(sc, testMonitor(), nil, cfg, time.Now())

	rec := get(r, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health without key: got status %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp models.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("status = %q, want healthy", resp.Status)
	}
	if resp.PoolStats.MaxPages != 4 || resp.PoolStats.ActivePages != 1 {
		t.Fatalf("unexpected pool stats: %+v", resp.PoolStats)
	}
	if resp.Version == "" {
		t.Fatal("version missing")
	}
}

func TestHealth_DegradedWhenPoolSaturated(t *testing.T) {
	sc := &stubSearcher{stats: models.PoolStats{ActivePages: 4, MaxPages: 4}}
	r := NewRouter(sc, testMonitor(), nil, testConfig(), time.Now())

	rec := get(r, "/api/v1/health", nil)
	var resp models.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", resp.Status)
	}
}

func TestSearch_RequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"secret-key"}
	r := NewRouter(&stubSearcher{}, testMonitor(), nil, cfg, time.Now())

	rec := postJSON(r, "/api/v1/search", searchBody, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: got status %d", rec.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeUnauthorized {
		t.Fatalf("unexpected error payload: %+v", resp.Error)
	}

	rec = postJSON(r, "/api/v1/search", searchBody, map[string]string{"X-API-Key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: got status %d", rec.Code)
	}
}

func TestSearch_BearerTokenAccepted(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"secret-key"}
	sc := &stubSearcher{}
	r := NewRouter(sc, testMonitor(), nil, cfg, time.Now())

	rec := postJSON(r, "/api/v1/search", searchBody, map[string]string{
		"Authorization": "Bearer secret-key",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer key: got status %d, body: %s", rec.Code, rec.Body.String())
	}
	if sc.got.Origin != "JFK" || sc.got.Destination != "LAX" {
		t.Fatalf("criteria not passed through: %+v", sc.got)
	}
}

func TestSearch_BindRejectsMissingFields(t *testing.T) {
	r := NewRouter(&stubSearcher{}, testMonitor(), nil, testConfig(), time.Now())

	rec := postJSON(r, "/api/v1/search", `{"origin":"JFK"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", rec.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
		t.Fatalf("unexpected error payload: %+v", resp.Error)
	}
}

func TestSearch_SuccessReturnsOutcome(t *testing.T) {
	sc := &stubSearcher{}
	r := NewRouter(sc, testMonitor(), nil, testConfig(), time.Now())

	rec := postJSON(r, "/api/v1/search", searchBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body: %s", rec.Code, rec.Body.String())
	}
	var out models.ScrapeOutcome
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.Total != 1 {
		t.Fatalf("unexpected outcome: success=%v total=%d", out.Success, out.Total)
	}
	if len(out.Offers) != 1 || len(out.Offers[0].Segments) != 1 {
		t.Fatalf("unexpected offers: %+v", out.Offers)
	}
	if got := out.Offers[0].Segments[0].Airline; got != "Delta" {
		t.Fatalf("airline = %q", got)
	}
}

func TestSearch_FailureStatusMapping(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeNavigation, http.StatusBadGateway},
		{models.ErrCodeElementNotFound, http.StatusBadGateway},
		{models.ErrCodeSearchFailed, http.StatusBadGateway},
		{models.ErrCodeExtraction, http.StatusBadGateway},
		{models.ErrCodeInvalidInput, http.StatusBadRequest},
		{models.ErrCodeBrowserCrash, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		sc := &stubSearcher{outcome: &models.ScrapeOutcome{
			Success:      false,
			ErrorMessage: "boom",
			Error:        &models.ErrorDetail{Code: tc.code, Message: "boom"},
		}}
		r := NewRouter(sc, testMonitor(), nil, testConfig(), time.Now())

		rec := postJSON(r, "/api/v1/search", searchBody, nil)
		if rec.Code != tc.want {
			t.Errorf("%s: got status %d, want %d", tc.code, rec.Code, tc.want)
			continue
		}
		var out models.ScrapeOutcome
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Success || out.Error == nil || out.Error.Code != tc.code {
			t.Errorf("%s: error not preserved in body: %+v", tc.code, out.Error)
		}
	}

	// An outcome that failed without a coded error still maps somewhere sane.
	sc := &stubSearcher{outcome: &models.ScrapeOutcome{Success: false, ErrorMessage: "boom"}}
	r := NewRouter(sc, testMonitor(), nil, testConfig(), time.Now())
	rec := postJSON(r, "/api/v1/search", searchBody, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("uncoded failure: got status %d, want 500", rec.Code)
	}
}

func TestOffers_FiltersApplied(t *testing.T) {
	st := openTestStore(t)
	seedOffers(t, st)
	r := NewRouter(&stubSearcher{}, testMonitor(), st, testConfig(), time.Now())

	rec := get(r, "/api/v1/offers?origin=jfk&max_price=400", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Offers []store.StoredOffer `json:"offers"`
		Count  int                 `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || len(resp.Offers) != 1 {
		t.Fatalf("count = %d, offers = %d, want 1 each", resp.Count, len(resp.Offers))
	}
	if resp.Offers[0].Airline != "Delta" {
		t.Fatalf("airline = %q, want Delta", resp.Offers[0].Airline)
	}
}

func TestOffers_InvalidParams(t *testing.T) {
	st := openTestStore(t)
	r := NewRouter(&stubSearcher{}, testMonitor(), st, testConfig(), time.Now())

	for _, path := range []string{
		"/api/v1/offers?limit=abc",
		"/api/v1/offers?limit=-1",
		"/api/v1/offers?max_price=cheap",
	} {
		rec := get(r, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got status %d, want 400", path, rec.Code)
		}
	}
}

func TestOffers_StoreDisabled(t *testing.T) {
	r := NewRouter(&stubSearcher{}, testMonitor(), nil, testConfig(), time.Now())

	rec := get(r, "/api/v1/offers", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", rec.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeStore {
		t.Fatalf("unexpected error payload: %+v", resp.Error)
	}
}

func TestReport_IncludesAlertHistory(t *testing.T) {
	hm := testMonitor()
	hm.RecordPageHealth("results_page", map[string]*selector.ElementMonitoring{
		"flight_results": {Element: "flight_results", TotalAttempts: 1},
	})
	r := NewRouter(&stubSearcher{}, hm, nil, testConfig(), time.Now())

	rec := get(r, "/api/v1/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	var resp struct {
		Report selector.HealthReport               `json:"report"`
		Alerts map[string][]selector.FailureAlert `json:"alerts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Report.PagesMonitored != 1 {
		t.Fatalf("pages monitored = %d, want 1", resp.Report.PagesMonitored)
	}
	// Total failure yields a page-level critical plus a per-element warning.
	if len(resp.Alerts["results_page"]) != 2 {
		t.Fatalf("alerts = %d, want 2", len(resp.Alerts["results_page"]))
	}
}

func TestClearAlerts_PageScopedAndAll(t *testing.T) {
	hm := testMonitor()
	failing := map[string]*selector.ElementMonitoring{
		"origin_field": {Element: "origin_field", TotalAttempts: 1},
	}
	hm.RecordPageHealth("flight_search_page", failing)
	hm.RecordPageHealth("results_page", failing)
	r := NewRouter(&stubSearcher{}, hm, nil, testConfig(), time.Now())

	rec := postJSON(r, "/api/v1/alerts/clear?page=results_page", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if len(hm.Alerts("results_page")) != 0 {
		t.Fatal("results_page alerts not cleared")
	}
	if len(hm.Alerts("flight_search_page")) == 0 {
		t.Fatal("flight_search_page alerts should survive a scoped clear")
	}

	rec = postJSON(r, "/api/v1/alerts/clear", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if len(hm.AllAlerts()) != 0 {
		t.Fatal("alert history should be empty after a full clear")
	}
}

func TestRateLimit_EnforcedPerIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1}
	sc := &stubSearcher{stats: models.PoolStats{MaxPages: 4}}
	r := NewRouter(sc, testMonitor(), nil, cfg, time.Now())

	rec := get(r, "/api/v1/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: got status %d", rec.Code)
	}

	rec = get(r, "/api/v1/report", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got status %d, want 429", rec.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeRateLimited {
		t.Fatalf("unexpected error payload: %+v", resp.Error)
	}

	// Health sits outside the protected group and must keep answering.
	rec = get(r, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health during throttling: got status %d", rec.Code)
	}
}
