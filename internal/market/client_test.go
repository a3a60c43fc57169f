package market

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"flipflow/internal"
	"flipflow/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testConfig() config.Config {
	cfg, _ := config.Load()
	cfg.StockXAPIKey = "test-key"
	cfg.StockXJWT = "test-jwt"
	cfg.StockXAPIBaseURL = "https://example.test/v2"
	cfg.StockXRateLimitRPS = 1000
	cfg.StockXPageSize = 2
	return cfg
}

func TestSearchAllPagesWithRetry(t *testing.T) {
	attempt := 0

	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/v2/catalog/search" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer test-jwt" || r.Header.Get("x-api-key") != "test-key" {
				t.Fatalf("auth headers missing: %v", r.Header)
			}
			attempt++
			if attempt == 1 {
				return &http.Response{
					StatusCode: http.StatusTooManyRequests,
					Body:       io.NopCloser(strings.NewReader(`{"error":"rate limited"}`)),
					Header:     make(http.Header),
				}, nil
			}

			payload := map[string]any{
				"products":    []map[string]any{{"productId": "p-3", "title": "Nike Dunk Low"}},
				"hasNextPage": false,
			}
			if attempt == 2 {
				if r.URL.Query().Get("pageNumber") != "1" {
					t.Fatalf("pageNumber=%s", r.URL.Query().Get("pageNumber"))
				}
				payload = map[string]any{
					"products": []map[string]any{
						{"productId": "p-1", "title": "Air Jordan 1", "styleId": "555088-134"},
						{"productId": "p-2", "title": "Yeezy 350"},
					},
					"hasNextPage": true,
				}
			}
			blob, _ := json.Marshal(payload)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(string(blob))),
				Header:     make(http.Header),
			}, nil
		}),
	}

	products, err := client.SearchAll(context.Background(), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 3 {
		t.Fatalf("len=%d", len(products))
	}
	if products[0].StyleID == nil || *products[0].StyleID != "555088-134" {
		t.Fatalf("styleId=%v", products[0].StyleID)
	}
}

func TestSearchAllSkipsMalformedProducts(t *testing.T) {
	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			payload := map[string]any{
				"products": []map[string]any{
					{"productId": "", "title": "no id"},
					{"productId": "p-1", "title": "Air Jordan 1"},
					{"productId": "p-2"},
				},
				"hasNextPage": false,
			}
			blob, _ := json.Marshal(payload)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(string(blob))),
				Header:     make(http.Header),
			}, nil
		}),
	}

	products, err := client.SearchAll(context.Background(), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 || products[0].ProductID != "p-1" {
		t.Fatalf("products=%+v", products)
	}
}

func TestGetMarketDataParsesAmounts(t *testing.T) {
	client := NewClient(testConfig())
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/v2/catalog/products/p-1/market-data" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			// Amounts show up as numbers or quoted strings depending on the
			// endpoint version; both must parse.
			body := `{"lowestAskAmount": 180, "highestBidAmount": "165.5", "lastSaleAmount": null}`
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     make(http.Header),
			}, nil
		}),
	}

	product, err := client.GetMarketData(context.Background(), internal.MarketProduct{ProductID: "p-1", Title: "Air Jordan 1"})
	if err != nil {
		t.Fatal(err)
	}
	if product.LowestAsk == nil || *product.LowestAsk != 180 {
		t.Fatalf("lowestAsk=%v", product.LowestAsk)
	}
	if product.HighestBid == nil || *product.HighestBid != 165.5 {
		t.Fatalf("highestBid=%v", product.HighestBid)
	}
	if product.LastSale != nil {
		t.Fatalf("lastSale=%v", product.LastSale)
	}
}

func TestFetchJSONRequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.StockXAPIKey = ""
	client := NewClient(cfg)

	if _, err := client.SearchAll(context.Background(), "jordan"); err == nil {
		t.Fatal("want missing-key error")
	}
}
