// Package geoapify resolves project sites with the Geoapify geocoding API.
package geoapify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/httpkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"

	"plangrid/port/geo"
)

const DefaultBaseURL = "https://api.geoapify.com"

const (
	ErrUnexpectedStatus errorkit.Error = "unexpected geocoding response status"
	ErrNoMatch          errorkit.Error = "no geocoding match"
)

// Client implements geo.Geocoder.
// Searches are restricted to India and any failure resolves to geo.IndiaCenter.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

var _ geo.Geocoder = Client{}

func (c Client) Geocode(ctx context.Context, p geo.Place) geo.Coordinates {
	query := p.Query()
	if query == "" || c.APIKey == "" {
		return geo.IndiaCenter
	}
	f, err := c.search(ctx, query)
	if err != nil {
		logger.Warn(ctx, "geocoding failed, using the fallback coordinates",
			logging.Field("query", query),
			logging.ErrField(err))
		return geo.IndiaCenter
	}
	if state := strings.TrimSpace(p.State); state != "" && f.Properties.State != "" && !sameState(state, f.Properties.State) {
		logger.Warn(ctx, "geocoded state does not match the requested state",
			logging.Field("requested", state),
			logging.Field("geocoded", f.Properties.State))
	}
	logger.Debug(ctx, "location geocoded",
		logging.Field("query", query),
		logging.Field("city", f.Properties.City),
		logging.Field("state", f.Properties.State))
	// GeoJSON orders positions as [lng, lat]
	return geo.Coordinates{Lat: f.Geometry.Coordinates[1], Lng: f.Geometry.Coordinates[0]}
}

func sameState(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		City  string `json:"city"`
		State string `json:"state"`
	} `json:"properties"`
}

func (c Client) search(ctx context.Context, query string) (feature, error) {
	q := url.Values{}
	q.Set("text", query)
	q.Set("filter", "countrycode:in")
	q.Set("apiKey", c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/v1/geocode/search?"+q.Encode(), nil)
	if err != nil {
		return feature{}, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return feature{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return feature{}, ErrUnexpectedStatus.F("%d", resp.StatusCode)
	}
	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return feature{}, fmt.Errorf("decoding geocoding response: %w", err)
	}
	if len(fc.Features) == 0 || len(fc.Features[0].Geometry.Coordinates) < 2 {
		return feature{}, ErrNoMatch.F("%s", query)
	}
	return fc.Features[0], nil
}

func (c Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimSuffix(c.BaseURL, "/")
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{
		Transport: httpkit.RetryRoundTripper{},
		Timeout:   10 * time.Second,
	}
}
