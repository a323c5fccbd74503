// Package upstream issues one outbound places query per cell, decoding the
// result into cache.Place values.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/geoplaces/geosearch/internal/cache"
	"github.com/geoplaces/geosearch/internal/geo"
)

// ErrUnauthorized is returned when no API credential is configured.
var ErrUnauthorized = errors.New("upstream: missing places API credential")

// ErrInvalidPlace is returned when any single result in a response fails to
// decode into a valid Place, failing the whole fetch for that cell.
var ErrInvalidPlace = errors.New("upstream: invalid place in response")

// Fetcher queries the places API for a single cell's inscribed circle.
type Fetcher interface {
	FetchPlacesForCell(ctx context.Context, cell geo.Cell) ([]cache.Place, error)
}

// Config holds the upstream endpoint and credential.
type Config struct {
	BaseURL    string
	APIKey     string
	ExcludedTypes []string
	Timeout    time.Duration
}

// HTTPFetcher is the production Fetcher, built on net/http with a retrying
// RoundTripper (see retry.go).
type HTTPFetcher struct {
	client *http.Client
	cfg    Config
	log    *logrus.Entry
}

// NewHTTPFetcher constructs a Fetcher whose RoundTripper retries transient
// upstream failures, grounded on spothero-tools' retry round tripper.
func NewHTTPFetcher(cfg Config, log *logrus.Entry) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := &http.Transport{}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: NewDefaultRetryRoundTripper(base, log),
			Timeout:   timeout,
		},
		cfg: cfg,
		log: log,
	}
}

// placesAPIResponse is the upstream wire shape; only the fields this fetcher
// needs are modeled.
type placesAPIResponse struct {
	Results []placesAPIResult `json:"results"`
}

type placesAPIResult struct {
	Name  string   `json:"name"`
	Lat   float64  `json:"lat"`
	Lon   float64  `json:"lon"`
	State string   `json:"state"`
	Zip   string   `json:"zip_code"`
	Types []string `json:"types"`
}

// FetchPlacesForCell queries the upstream API for cell's inscribed circle
// (radius = D(level)/2) and decodes the response. A single place failing
// to decode fails the whole fetch; the engine treats that as an empty leaf.
func (f *HTTPFetcher) FetchPlacesForCell(ctx context.Context, cell geo.Cell) ([]cache.Place, error) {
	if f.cfg.APIKey == "" {
		return nil, ErrUnauthorized
	}

	radius := geo.LevelToDiameter[cell.Level] / 2

	req, err := f.buildRequest(ctx, cell, radius)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: unexpected status %d", resp.StatusCode)
	}

	var parsed placesAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("upstream: decode response: %w", err)
	}

	return decodePlaces(parsed)
}

func (f *HTTPFetcher) buildRequest(ctx context.Context, cell geo.Cell, radius float64) (*http.Request, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(cell.CenterLat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(cell.CenterLon, 'f', -1, 64))
	q.Set("radius_m", strconv.FormatFloat(radius, 'f', -1, 64))
	for _, t := range f.cfg.ExcludedTypes {
		q.Add("exclude_type", t)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	return req, nil
}

// decodePlaces validates and converts upstream results. The first place
// missing state or zip short-circuits the whole decode: the caller gets
// ErrInvalidPlace instead of a partial result.
func decodePlaces(resp placesAPIResponse) ([]cache.Place, error) {
	out := make([]cache.Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		p := cache.Place{
			Name:  r.Name,
			Lat:   r.Lat,
			Lon:   r.Lon,
			State: r.State,
			Zip:   r.Zip,
			Types: r.Types,
		}
		if !p.Valid() {
			return nil, fmt.Errorf("%w: %q missing state or zip", ErrInvalidPlace, p.Name)
		}
		out = append(out, p)
	}
	return out, nil
}
