package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flipflow/internal"
	"flipflow/internal/config"
	"flipflow/internal/util"
)

// Client talks to the StockX public API: catalog search plus per-product
// market data. Auth is the API key + user JWT pair the public API requires.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type searchPayload struct {
	Products    []map[string]any `json:"products"`
	Count       *int             `json:"count"`
	PageNumber  *int             `json:"pageNumber"`
	HasNextPage bool             `json:"hasNextPage"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.StockXTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.StockXRateLimitRPS),
	}
}

// SearchAll pages through catalog search results for a query until the API
// reports no further pages.
func (c *Client) SearchAll(ctx context.Context, query string) ([]internal.MarketProduct, error) {
	all := make([]internal.MarketProduct, 0)
	page := 1

	for {
		body, err := c.fetchJSON(ctx, "catalog/search", map[string]string{
			"query":      query,
			"pageNumber": strconv.Itoa(page),
			"pageSize":   strconv.Itoa(c.cfg.StockXPageSize),
		})
		if err != nil {
			return nil, err
		}

		var payload searchPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}

		for _, raw := range payload.Products {
			product, err := toMarketProduct(raw)
			if err != nil {
				continue
			}
			all = append(all, product)
		}

		if !payload.HasNextPage || len(payload.Products) == 0 {
			break
		}
		page++
	}

	return all, nil
}

// GetMarketData fetches the current ask/bid/last-sale for one product and
// folds it into the record.
func (c *Client) GetMarketData(ctx context.Context, product internal.MarketProduct) (internal.MarketProduct, error) {
	body, err := c.fetchJSON(ctx, "catalog/products/"+url.PathEscape(product.ProductID)+"/market-data", map[string]string{})
	if err != nil {
		return product, err
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return product, err
	}

	product.LowestAsk = toFloatPtr(payload["lowestAskAmount"])
	product.HighestBid = toFloatPtr(payload["highestBidAmount"])
	product.LastSale = toFloatPtr(payload["lastSaleAmount"])
	return product, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.StockXAPIKey) == "" {
		return nil, errors.New("missing STOCKX_API_KEY")
	}
	if strings.TrimSpace(c.cfg.StockXJWT) == "" {
		return nil, errors.New("missing STOCKX_JWT")
	}

	baseURL := strings.TrimRight(c.cfg.StockXAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.StockXJWT)
		req.Header.Set("x-api-key", c.cfg.StockXAPIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("stockx status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("stockx api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("stockx request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func toMarketProduct(raw map[string]any) (internal.MarketProduct, error) {
	id, _ := raw["productId"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return internal.MarketProduct{}, errors.New("missing productId")
	}

	title, _ := raw["title"].(string)
	title = strings.TrimSpace(title)
	if title == "" {
		return internal.MarketProduct{}, errors.New("empty title")
	}

	rawJSON, _ := json.Marshal(raw)
	product := internal.MarketProduct{
		ProductID: id,
		Title:     title,
		RawJSON:   string(rawJSON),
	}
	product.StyleID = toStringPtr(raw["styleId"])
	product.Brand = toStringPtr(raw["brand"])
	product.UpdatedAt = toStringPtr(raw["updatedAt"])

	if attrs, ok := raw["productAttributes"].(map[string]any); ok {
		if product.StyleID == nil {
			product.StyleID = toStringPtr(attrs["styleId"])
		}
	}

	return product, nil
}

func toFloatPtr(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return util.FloatPtr(t)
	case int:
		return util.FloatPtr(float64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return util.FloatPtr(f)
		}
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return util.FloatPtr(f)
		}
	}
	return nil
}

func toStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return util.StringPtr(s)
}
