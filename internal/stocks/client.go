// Package stocks fetches stock metadata (ticker, exchange, market sector)
// for CUSIP identifiers, used by the regulatory-filing transform to enrich
// staged investments (§4.6 step 3). It is grounded on the original
// StocksClient, which batched CUSIP lookups against the Open FIGI mapping
// API and retried once on a 429.
package stocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Metadata is one CUSIP's resolved stock metadata. An unresolved CUSIP
// comes back with only the CUSIP field set and every other field empty, the
// same placeholder the original client appended for a miss.
type Metadata struct {
	CUSIP        string `json:"cusip"`
	Ticker       string `json:"ticker"`
	Name         string `json:"name"`
	ExchangeCode string `json:"exchCode"`
	MarketSector string `json:"marketSector"`
	SecurityType string `json:"securityType"`
}

type lookup struct {
	IDType  string `json:"idType"`
	IDValue string `json:"idValue"`
}

type figiResult struct {
	Data []struct {
		Name         string `json:"name"`
		Ticker       string `json:"ticker"`
		ExchCode     string `json:"exchCode"`
		MarketSector string `json:"marketSector"`
		SecurityType string `json:"securityType"`
	} `json:"data"`
}

// Client is the Open FIGI mapping API client.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	batchSize     int
	limiter       *rate.Limiter
	requestWindow time.Duration
	logger        arbor.ILogger
}

// New creates a Client. maxRequestsPerWindow/window implement the same
// throttle the original enforced by counting requests and sleeping every N
// calls; here it is expressed as a token-bucket limiter refilling at the
// same average rate.
func New(baseURL, apiKey string, batchSize, maxRequestsPerWindow int, window time.Duration, logger arbor.ILogger) *Client {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRequestsPerWindow <= 0 {
		maxRequestsPerWindow = 25
	}
	if window <= 0 {
		window = time.Minute
	}
	ratePerSecond := float64(maxRequestsPerWindow) / window.Seconds()
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       baseURL,
		apiKey:        apiKey,
		batchSize:     batchSize,
		limiter:       rate.NewLimiter(rate.Limit(ratePerSecond), maxRequestsPerWindow),
		requestWindow: window,
		logger:        logger,
	}
}

// FetchMetadata resolves metadata for each CUSIP in cusips, preserving
// input order. A CUSIP Open FIGI has no mapping for comes back as an empty
// Metadata rather than as an error, matching the original's placeholder
// record behavior.
func (c *Client) FetchMetadata(ctx context.Context, cusips []string) ([]Metadata, error) {
	out := make([]Metadata, 0, len(cusips))

	for start := 0; start < len(cusips); start += c.batchSize {
		end := start + c.batchSize
		if end > len(cusips) {
			end = len(cusips)
		}
		batch := cusips[start:end]

		results, err := c.mapBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for i, cusip := range batch {
			meta := Metadata{CUSIP: cusip}
			if i < len(results) && len(results[i].Data) > 0 {
				first := results[i].Data[0]
				exchanges := make([]string, 0, len(results[i].Data))
				for _, d := range results[i].Data {
					if d.ExchCode != "" {
						exchanges = append(exchanges, d.ExchCode)
					}
				}
				meta.Ticker = first.Ticker
				meta.Name = first.Name
				meta.MarketSector = first.MarketSector
				meta.SecurityType = first.SecurityType
				meta.ExchangeCode = joinUnique(exchanges)
			}
			out = append(out, meta)
		}
	}

	return out, nil
}

func (c *Client) mapBatch(ctx context.Context, cusips []string) ([]figiResult, error) {
	lookups := make([]lookup, len(cusips))
	for i, cusip := range cusips {
		lookups[i] = lookup{IDType: "ID_CUSIP", IDValue: cusip}
	}

	resp, err := c.post(ctx, lookups)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		c.logger.Warn().Dur("sleep", c.requestWindow).Msg("Open FIGI throttled the request; sleeping before retry")
		time.Sleep(c.requestWindow)
		resp, err = c.post(ctx, lookups)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Open FIGI response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("open FIGI returned %d: %s", resp.StatusCode, string(body))
	}

	var results []figiResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to decode Open FIGI response: %w", err)
	}
	return results, nil
}

func (c *Client) post(ctx context.Context, lookups []lookup) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	data, err := json.Marshal(lookups)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Open FIGI lookups: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mapping", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build Open FIGI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OPENFIGI-APIKEY", c.apiKey)

	return c.httpClient.Do(req)
}

func joinUnique(values []string) string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	result := ""
	for i, v := range out {
		if i > 0 {
			result += ", "
		}
		result += v
	}
	return result
}

// BatchCount returns the number of Open FIGI requests FetchMetadata would
// issue for n CUSIPs, used by callers sizing a rate budget.
func (c *Client) BatchCount(n int) int {
	return int(math.Ceil(float64(n) / float64(c.batchSize)))
}
