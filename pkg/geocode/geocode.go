// Package geocode resolves free-text addresses to coordinates through the
// Yandex geocoder HTTP API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
)

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://geocode-maps.yandex.ru/1.x"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("geocoder base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid geocoder url: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("geocoder api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type geocodeResponse struct {
	Response struct {
		GeoObjectCollection struct {
			FeatureMember []struct {
				GeoObject struct {
					Point struct {
						Pos string `json:"pos"`
					} `json:"Point"`
				} `json:"GeoObject"`
			} `json:"featureMember"`
		} `json:"GeoObjectCollection"`
	} `json:"response"`
}

// Geocode resolves query to a coordinate pair. A query the provider cannot
// place returns (nil, nil), not an error.
func (c *Client) Geocode(ctx context.Context, query string) (*contractx.Point, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("geocode", query)
	params.Set("apikey", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: geocode request: %v", contractx.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read geocode response: %v", contractx.ErrTransient, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: geocoder status=%d", contractx.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed geocodeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	members := parsed.Response.GeoObjectCollection.FeatureMember
	if len(members) == 0 {
		return nil, nil
	}

	// The provider returns "longitude latitude" separated by a space.
	fields := strings.Fields(members[0].GeoObject.Point.Pos)
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed geocoder point %q", members[0].GeoObject.Point.Pos)
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude: %w", err)
	}

	return &contractx.Point{Latitude: lat, Longitude: lon}, nil
}
