// Package eia fetches hourly balancing authority series from the EIA open data
// API.
package eia

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/eiademand/pkg/common"
	"github.com/raterudder/eiademand/pkg/log"
	"github.com/raterudder/eiademand/pkg/series"
	"github.com/raterudder/eiademand/pkg/types"
	"golang.org/x/time/rate"
)

// DefaultCategoryID is the category listing the hourly demand series of every
// balancing authority.
const DefaultCategoryID = "2122628"

// DemandSeriesID returns the hourly demand series of a balancing authority.
func DemandSeriesID(ba string) string {
	return "EBA." + ba + "-ALL.D.H"
}

// ForecastSeriesID returns the hourly day-ahead demand forecast series of a
// balancing authority.
func ForecastSeriesID(ba string) string {
	return "EBA." + ba + "-ALL.DF.H"
}

// Series is a fetched series. Observations are in the order the API returned
// them, which is usually newest first.
type Series struct {
	ID           string
	Name         string
	Units        string
	Observations []series.Observation
}

// ChildSeries is a series listed in a category.
type ChildSeries struct {
	ID    string `json:"series_id"`
	Name  string `json:"name"`
	Units string `json:"units"`
}

// Client is an EIA API client.
type Client struct {
	apiURL  string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// Configured sets up flags for the EIA client and returns it.
func Configured() *Client {
	c := &Client{
		client: common.HTTPClient(time.Minute),
	}
	apiURL := lflag.String("eia-api-url", "https://api.eia.gov", "URL for the EIA open data API")
	apiKey := lflag.String("eia-api-key", "", "API key for the EIA open data API")
	interval := lflag.Duration("eia-request-interval", 200*time.Millisecond, "Minimum time between requests to the EIA API (0 for no limit)")

	lflag.Do(func() {
		c.apiURL = *apiURL
		c.apiKey = *apiKey
		c.limiter = newLimiter(*interval)
	})
	return c
}

// New returns a client for apiURL that waits interval between requests.
func New(apiURL, apiKey string, client *http.Client, interval time.Duration) *Client {
	return &Client{
		apiURL:  apiURL,
		apiKey:  apiKey,
		client:  client,
		limiter: newLimiter(interval),
	}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.apiURL == "" {
		return fmt.Errorf("eia-api-url is required")
	}
	if _, err := url.Parse(c.apiURL); err != nil {
		return fmt.Errorf("failed to parse eia url (%s): %w", c.apiURL, err)
	}
	if c.apiKey == "" {
		return fmt.Errorf("eia-api-key is required")
	}
	return nil
}

type seriesResponse struct {
	Request struct {
		SeriesID string `json:"series_id"`
	} `json:"request"`
	Series []struct {
		ID    string              `json:"series_id"`
		Name  string              `json:"name"`
		Units string              `json:"units"`
		Data  [][]json.RawMessage `json:"data"`
	} `json:"series"`
	Data struct {
		Error string `json:"error"`
	} `json:"data"`
}

type categoryResponse struct {
	Category struct {
		ID          json.Number   `json:"category_id"`
		Name        string        `json:"name"`
		ChildSeries []ChildSeries `json:"childseries"`
	} `json:"category"`
	Data struct {
		Error string `json:"error"`
	} `json:"data"`
}

// GetSeries fetches every observation of a series.
func (c *Client) GetSeries(ctx context.Context, seriesID string) (Series, error) {
	params := url.Values{}
	params.Set("series_id", seriesID)

	var data seriesResponse
	if err := c.get(ctx, "/series/", params, &data); err != nil {
		return Series{}, fmt.Errorf("failed to get series %s: %w", seriesID, err)
	}
	if data.Data.Error != "" {
		return Series{}, fmt.Errorf("eia api error for series %s: %s", seriesID, data.Data.Error)
	}
	if len(data.Series) == 0 {
		return Series{}, fmt.Errorf("eia api returned no series for %s", seriesID)
	}

	raw := data.Series[0]
	s := Series{
		ID:           raw.ID,
		Name:         raw.Name,
		Units:        raw.Units,
		Observations: make([]series.Observation, 0, len(raw.Data)),
	}
	if s.ID == "" {
		s.ID = seriesID
	}
	for i, point := range raw.Data {
		obs, err := parsePoint(point)
		if err != nil {
			return Series{}, fmt.Errorf("invalid data point %d of series %s: %w", i, seriesID, err)
		}
		s.Observations = append(s.Observations, obs)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched eia series",
		slog.String("seriesID", s.ID),
		slog.Int("count", len(s.Observations)),
	)
	return s, nil
}

// parsePoint parses a [time, value] pair. The value is a number or null.
func parsePoint(point []json.RawMessage) (series.Observation, error) {
	if len(point) != 2 {
		return series.Observation{}, fmt.Errorf("expected 2 elements, got %d", len(point))
	}
	var key string
	if err := json.Unmarshal(point[0], &key); err != nil {
		return series.Observation{}, fmt.Errorf("failed to decode time: %w", err)
	}
	t, err := types.ParseTimeKey(key)
	if err != nil {
		return series.Observation{}, err
	}

	var v *float64
	if err := json.Unmarshal(point[1], &v); err != nil {
		return series.Observation{}, fmt.Errorf("failed to decode value at %s: %w", key, err)
	}
	return series.Observation{Time: t, Value: v}, nil
}

// GetCategory lists the series of a category.
func (c *Client) GetCategory(ctx context.Context, categoryID string) ([]ChildSeries, error) {
	params := url.Values{}
	params.Set("category_id", categoryID)

	var data categoryResponse
	if err := c.get(ctx, "/category/", params, &data); err != nil {
		return nil, fmt.Errorf("failed to get category %s: %w", categoryID, err)
	}
	if data.Data.Error != "" {
		return nil, fmt.Errorf("eia api error for category %s: %s", categoryID, data.Data.Error)
	}
	return data.Category.ChildSeries, nil
}

// BalancingAuthority returns the balancing authority code of an hourly demand
// series ID, or false if id is not one.
func BalancingAuthority(id string) (string, bool) {
	rest, ok := strings.CutPrefix(id, "EBA.")
	if !ok {
		return "", false
	}
	ba, ok := strings.CutSuffix(rest, "-ALL.D.H")
	if !ok || ba == "" {
		return "", false
	}
	return ba, true
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	u = u.JoinPath(path)
	// JoinPath drops the trailing slash the API expects
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	u.RawQuery = params.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// the query carries the api key so only the path is logged
	log.Ctx(ctx).DebugContext(ctx, "fetching from eia", slog.String("path", u.Path))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("eia api returned status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode eia response", slog.Any("error", err))
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
