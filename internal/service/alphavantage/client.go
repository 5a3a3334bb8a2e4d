package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"
	xhttp "PriceFlow/pkg/http"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://www.alphavantage.co/query"

// Client fetches quotes from the Alpha Vantage GLOBAL_QUOTE endpoint.
type Client struct {
	apiKey  string
	baseURL string
	http    *xhttp.Client
}

// New creates an Alpha Vantage provider.
func New(apiKey, baseURL string, timeout time.Duration) drepo.Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// Name identifies the provider on events it produced.
func (c *Client) Name() string { return "alphavantage" }

// globalQuote mirrors the provider's numbered-field response schema.
type globalQuote struct {
	Quote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		LatestTrading string `json:"07. latest trading day"`
	} `json:"Global Quote"`
}

// LatestQuote fetches the current quote for one symbol. The raw body
// is returned alongside the parsed quote so it can be archived.
func (c *Client) LatestQuote(ctx context.Context, symbol string) (*models.Quote, []byte, error) {
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL,
		QueryParams: map[string][]string{
			"function": {"GLOBAL_QUOTE"},
			"symbol":   {symbol},
			"apikey":   {c.apiKey},
		},
	}, &body)
	if err != nil {
		return nil, nil, fmt.Errorf("alphavantage request %s: %w", symbol, err)
	}

	var parsed globalQuote
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, body, fmt.Errorf("alphavantage parse %s: %w", symbol, err)
	}
	// the API answers 200 with an empty Global Quote for unknown
	// symbols and with an Information/Note body when throttled
	if parsed.Quote.Symbol == "" || parsed.Quote.Price == "" {
		return nil, body, fmt.Errorf("alphavantage: no quote for %s", symbol)
	}

	price, err := decimal.NewFromString(parsed.Quote.Price)
	if err != nil {
		return nil, body, fmt.Errorf("alphavantage price %q: %w", parsed.Quote.Price, err)
	}

	return &models.Quote{
		Symbol:    parsed.Quote.Symbol,
		Price:     price,
		Timestamp: time.Now().UTC(),
		Provider:  c.Name(),
	}, body, nil
}
