// Package pricefeed fetches the spot price shown next to the active round.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/predictpool-client/internal/config"
)

// Quote is a single spot price observation.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// Client reads ticker prices from a Binance compatible REST API.
type Client struct {
	baseURL    string
	symbol     string
	httpClient *http.Client
}

// NewClient creates a price client from cfg.
func NewClient(cfg config.PriceConfig) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		symbol:     cfg.Symbol,
		httpClient: rc.StandardClient(),
	}
}

// Symbol is the ticker symbol the client asks for.
func (c *Client) Symbol() string {
	return c.symbol
}

// Price returns the current price of the configured symbol.
func (c *Client) Price(ctx context.Context) (float64, error) {
	u := c.baseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(c.symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching %s price from %s", c.symbol, c.baseURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error fetching %s price: %w", c.symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("price API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Binance encodes the price as a decimal string.
	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("error decoding price response: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q for %s: %w", ticker.Price, c.symbol, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %v for %s", price, c.symbol)
	}
	return price, nil
}
