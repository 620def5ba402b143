package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"groupon-scraper/pkg/api"
	"groupon-scraper/pkg/models"
)

func TestSearchHandlerProblemResponses(t *testing.T) {
	scrapeSemaphore = make(chan struct{}, 1)
	scrapeQuery = func(_ context.Context, q models.SearchQuery) ([]models.DealRecord, error) {
		t.Fatalf("scrape should not run for %v", q)
		return nil, nil
	}

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedType   string
		expectedDetail string
	}{
		{
			name:           "Invalid Path - Missing parts",
			method:         http.MethodGet,
			path:           "/search/",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "about:blank",
			expectedDetail: "Invalid path. Expected /search/{postal_code}/{term}",
		},
		{
			name:           "Invalid Path - Postal only",
			method:         http.MethodGet,
			path:           "/search/10001",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "about:blank",
			expectedDetail: "Invalid path. Expected /search/{postal_code}/{term}",
		},
		{
			name:           "Wrong Method - POST on single search",
			method:         http.MethodPost,
			path:           "/search/10001/Hydrafacial",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "about:blank",
			expectedDetail: "Method not allowed. Use GET for single search.",
		},
		{
			name:           "Wrong Method - GET on batch",
			method:         http.MethodGet,
			path:           "/search/batch",
			expectedStatus: http.StatusBadRequest,
			expectedType:   "about:blank",
			expectedDetail: "Method not allowed for batch endpoint. Use POST.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}

			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(searchHandler)

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					status, tt.expectedStatus)
			}

			expectedContentType := "application/problem+json"
			if contentType := rr.Header().Get("Content-Type"); contentType != expectedContentType {
				t.Errorf("handler returned wrong content type: got %v want %v",
					contentType, expectedContentType)
			}

			var pd api.ProblemDetails
			if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
				t.Errorf("handler returned invalid JSON: %v. Body: %s", err, rr.Body.String())
			}

			if pd.Status != tt.expectedStatus {
				t.Errorf("JSON status mismatch: got %v want %v", pd.Status, tt.expectedStatus)
			}
			if pd.Type != tt.expectedType {
				t.Errorf("JSON type mismatch: got %v want %v", pd.Type, tt.expectedType)
			}
			if !strings.Contains(pd.Detail, tt.expectedDetail) {
				t.Errorf("JSON detail mismatch: got %q, want substring %q", pd.Detail, tt.expectedDetail)
			}
			if pd.Instance != tt.path {
				t.Errorf("JSON instance mismatch: got %v want %v", pd.Instance, tt.path)
			}
		})
	}
}

func TestSearchHandlerReturnsRecords(t *testing.T) {
	scrapeSemaphore = make(chan struct{}, 1)
	scrapeQuery = func(_ context.Context, q models.SearchQuery) ([]models.DealRecord, error) {
		if q.PostalCode != "10001" || q.Term != "Hydrafacial" {
			t.Errorf("unexpected query: %+v", q)
		}
		return []models.DealRecord{{
			URL:          "https://www.groupon.com/deals/glow-spa",
			RetrievedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Title:        "Hydrafacial at Glow Spa",
			PriceOptions: []models.PriceOption{{CurrentPrice: "$89"}},
			Highlights:   []string{},
			SearchTerm:   q.Term,
			PostalCode:   q.PostalCode,
		}}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/search/10001/Hydrafacial", nil)
	rr := httptest.NewRecorder()
	searchHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("wrong content type: %s", ct)
	}

	var records []models.DealRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Title != "Hydrafacial at Glow Spa" {
		t.Errorf("unexpected title: %q", records[0].Title)
	}
}

func TestSearchHandlerUpstreamFailure(t *testing.T) {
	scrapeSemaphore = make(chan struct{}, 1)
	scrapeQuery = func(_ context.Context, _ models.SearchQuery) ([]models.DealRecord, error) {
		return nil, errors.New("connection reset by peer")
	}

	req := httptest.NewRequest(http.MethodGet, "/search/90210/Hydrafacial", nil)
	rr := httptest.NewRecorder()
	searchHandler(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}

	var pd api.ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
		t.Fatalf("invalid problem JSON: %v", err)
	}
	if !strings.Contains(pd.Detail, "connection reset by peer") {
		t.Errorf("detail should carry the upstream error, got %q", pd.Detail)
	}
}

func TestSearchHandlerUpstreamTimeout(t *testing.T) {
	scrapeSemaphore = make(chan struct{}, 1)
	scrapeQuery = func(_ context.Context, _ models.SearchQuery) ([]models.DealRecord, error) {
		return nil, errors.New("context deadline exceeded")
	}

	req := httptest.NewRequest(http.MethodGet, "/search/90210/Hydrafacial", nil)
	rr := httptest.NewRecorder()
	searchHandler(rr, req)

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rr.Code)
	}
}

func TestBatchSearchAnnotatesEachEntry(t *testing.T) {
	scrapeSemaphore = make(chan struct{}, 1)
	scrapeQuery = func(_ context.Context, q models.SearchQuery) ([]models.DealRecord, error) {
		if q.PostalCode == "90210" {
			return nil, errors.New("blocked by upstream")
		}
		return []models.DealRecord{{
			URL:        "https://www.groupon.com/deals/glow-spa",
			SearchTerm: q.Term,
			PostalCode: q.PostalCode,
		}}, nil
	}

	body := `[
		{"postal_code": "10001", "search_term": "Hydrafacial"},
		{"postal_code": "90210", "search_term": "Hydrafacial"},
		{"search_term": "Hydrafacial"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/search/batch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	searchHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var batch []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &batch); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(batch))
	}

	if _, ok := batch[0]["deals"]; !ok {
		t.Error("first entry should carry deals")
	}
	if errMsg, _ := batch[1]["error"].(string); !strings.Contains(errMsg, "blocked by upstream") {
		t.Errorf("second entry should carry the scrape error, got %v", batch[1]["error"])
	}
	if errMsg, _ := batch[2]["error"].(string); !strings.Contains(errMsg, "missing postal_code or search_term") {
		t.Errorf("third entry should be rejected, got %v", batch[2]["error"])
	}
}

func TestBatchSearchToleratesNullEntries(t *testing.T) {
	scrapeSemaphore = make(chan struct{}, 1)
	scrapeQuery = func(_ context.Context, q models.SearchQuery) ([]models.DealRecord, error) {
		return []models.DealRecord{{
			URL:        "https://www.groupon.com/deals/glow-spa",
			SearchTerm: q.Term,
			PostalCode: q.PostalCode,
		}}, nil
	}

	// A null element is valid JSON and must not take the handler down.
	body := `[null, {"postal_code": "10001", "search_term": "Hydrafacial"}]`
	req := httptest.NewRequest(http.MethodPost, "/search/batch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	searchHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var batch []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &batch); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(batch))
	}
	if errMsg, _ := batch[0]["error"].(string); !strings.Contains(errMsg, "missing postal_code or search_term") {
		t.Errorf("null entry should be rejected, got %v", batch[0])
	}
	if _, ok := batch[1]["deals"]; !ok {
		t.Error("second entry should carry deals")
	}
}

func TestBatchSearchRejectsMalformedBody(t *testing.T) {
	scrapeSemaphore = make(chan struct{}, 1)

	req := httptest.NewRequest(http.MethodPost, "/search/batch", strings.NewReader(`{"not": "an array"}`))
	rr := httptest.NewRecorder()
	searchHandler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("wrong content type: %s", ct)
	}
}
