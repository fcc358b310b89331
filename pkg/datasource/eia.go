package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/opscart/ng-market-monitor/pkg/models"
)

const eiaPageLength = 5000

// EIAConfig configures the EIA v2 client
type EIAConfig struct {
	BaseURL           string
	APIKey            string
	LookbackDays      int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// EIAClient fetches series from the EIA v2 seriesid endpoint
type EIAClient struct {
	baseURL    string
	apiKey     string
	lookback   int
	httpClient *http.Client
	limiter    *rate.Limiter
	clock      clock.PassiveClock
	log        logr.Logger
}

type eiaResponse struct {
	Response struct {
		Total any       `json:"total"`
		Data  []eiaItem `json:"data"`
	} `json:"response"`
	Error string `json:"error"`
}

type eiaItem struct {
	Period string `json:"period"`
	Value  any    `json:"value"`
	Units  string `json:"units"`
}

// NewEIAClient creates an EIA client. A missing API key is not an error here;
// every Fetch then reports ErrNotConfigured without touching the network.
func NewEIAClient(cfg EIAConfig, clk clock.PassiveClock, log logr.Logger) *EIAClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.eia.gov/v2/"
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 730
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &EIAClient{
		baseURL:  cfg.BaseURL,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		lookback: cfg.LookbackDays,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		clock:   clk,
		log:     log.WithName("eia"),
	}
}

func (c *EIAClient) Name() string {
	return "eia"
}

// Fetch retrieves a series, newest rows first upstream, returned ascending
func (c *EIAClient) Fetch(ctx context.Context, seriesID string) (models.TimeSeries, error) {
	if c.apiKey == "" {
		return models.TimeSeries{}, ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.TimeSeries{}, &FetchError{Series: seriesID, Err: err}
	}

	reqURL, err := c.seriesURL(seriesID)
	if err != nil {
		return models.TimeSeries{}, &FetchError{Series: seriesID, Err: err}
	}

	c.log.V(1).Info("fetching series", "series", seriesID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.TimeSeries{}, &FetchError{Series: seriesID, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TimeSeries{}, &FetchError{Series: seriesID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.TimeSeries{}, &FetchError{
			Series:     seriesID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("EIA API returned status %d", resp.StatusCode),
		}
	}

	var payload eiaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.TimeSeries{}, &FetchError{Series: seriesID, StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed payload: %w", err)}
	}
	if payload.Error != "" {
		return models.TimeSeries{}, &FetchError{Series: seriesID, StatusCode: resp.StatusCode, Err: fmt.Errorf("EIA API error: %s", payload.Error)}
	}

	series := parseEIAItems(seriesID, payload.Response.Data)
	if series.Len() == 0 {
		return models.TimeSeries{}, fmt.Errorf("series %s: %w", seriesID, ErrEmptyResult)
	}

	c.log.V(1).Info("fetched series", "series", seriesID, "observations", series.Len())
	return series, nil
}

func (c *EIAClient) seriesURL(seriesID string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid EIA base URL: %w", err)
	}
	u := base.JoinPath("seriesid", seriesID)

	start := c.clock.Now().AddDate(0, 0, -c.lookback).Format("2006-01-02")

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("start", start)
	q.Set("sort[0][column]", "period")
	q.Set("sort[0][direction]", "desc")
	q.Set("offset", "0")
	q.Set("length", strconv.Itoa(eiaPageLength))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// parseEIAItems keeps rows with a parseable period and a finite numeric value
func parseEIAItems(seriesID string, items []eiaItem) models.TimeSeries {
	series := models.TimeSeries{Name: seriesID}

	for _, item := range items {
		ts, err := parsePeriod(item.Period)
		if err != nil {
			continue
		}
		value, ok := parseValue(item.Value)
		if !ok {
			continue
		}
		if series.Unit == "" && item.Units != "" {
			series.Unit = item.Units
		}
		series.Observations = append(series.Observations, models.Observation{
			Timestamp: ts,
			Value:     value,
		})
	}

	return series.Sorted()
}

var periodLayouts = []string{"2006-01-02", "2006-01", "2006"}

func parsePeriod(period string) (time.Time, error) {
	period = strings.TrimSpace(period)
	for _, layout := range periodLayouts {
		if ts, err := time.Parse(layout, period); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized period %q", period)
}

func parseValue(raw any) (float64, bool) {
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}
