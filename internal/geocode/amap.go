// Package geocode resolves coordinates to addresses and administrative
// regions through the AMap reverse geocoding API.
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

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
)

var (
	ErrNotConfigured = errors.New("geocode: AMAP_KEY is not configured")
	ErrLookupFailed  = errors.New("geocode: lookup failed")
)

// Result is a resolved position.
type Result struct {
	Location  domain.Location `json:"location"`
	Formatted string          `json:"formatted"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

type Client struct {
	key        string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.Config, httpClient *http.Client) *Client {
	base := strings.TrimRight(cfg.AMapBaseURL, "/")
	if base == "" {
		base = "https://restapi.amap.com"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{key: cfg.AMapKey, baseURL: base, httpClient: httpClient}
}

// amapString decodes AMap text fields, which are sent as an empty array
// instead of an empty string when absent.
type amapString string

func (s *amapString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = amapString(v)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err == nil {
		*s = amapString(strings.Join(parts, ""))
		return nil
	}
	*s = ""
	return nil
}

type addressComponent struct {
	Province amapString `json:"province"`
	City     amapString `json:"city"`
	CityCode amapString `json:"citycode"`
	District amapString `json:"district"`
	AdCode   amapString `json:"adcode"`
}

type regeoResponse struct {
	Status    string `json:"status"`
	Info      string `json:"info"`
	InfoCode  string `json:"infocode"`
	Regeocode *struct {
		FormattedAddress amapString      `json:"formatted_address"`
		AddressComponent json.RawMessage `json:"addressComponent"`
	} `json:"regeocode"`
}

// Reverse resolves lng/lat. A non-OK AMap status yields ErrLookupFailed.
func (c *Client) Reverse(ctx context.Context, lng, lat float64) (*Result, error) {
	if c.key == "" {
		observability.RecordGeocodeLookup(ctx, "amap", "not_configured")
		return nil, ErrNotConfigured
	}
	q := url.Values{
		"key":        {c.key},
		"location":   {strconv.FormatFloat(lng, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)},
		"extensions": {"all"},
		"batch":      {"false"},
		"roadlevel":  {"0"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/geocode/regeo?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordGeocodeLookup(ctx, "amap", "transport_error")
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		observability.RecordGeocodeLookup(ctx, "amap", "http_error")
		return nil, fmt.Errorf("%w: http status %d", ErrLookupFailed, resp.StatusCode)
	}

	var payload regeoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 2<<20)).Decode(&payload); err != nil {
		observability.RecordGeocodeLookup(ctx, "amap", "decode_error")
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if payload.Status != "1" || payload.Regeocode == nil {
		observability.RecordGeocodeLookup(ctx, "amap", "status_error")
		return nil, fmt.Errorf("%w: %s (%s)", ErrLookupFailed, payload.Info, payload.InfoCode)
	}

	var comp addressComponent
	if len(payload.Regeocode.AddressComponent) > 0 {
		if err := json.Unmarshal(payload.Regeocode.AddressComponent, &comp); err != nil {
			observability.RecordGeocodeLookup(ctx, "amap", "decode_error")
			return nil, fmt.Errorf("decode address component: %w", err)
		}
	}
	province := string(comp.Province)
	cityName := string(comp.City)
	if cityName == "" {
		cityName = string(comp.District)
	}
	formatted := string(payload.Regeocode.FormattedAddress)
	if formatted == "" {
		formatted = province + string(comp.City) + string(comp.District)
	}
	observability.RecordGeocodeLookup(ctx, "amap", "success")
	return &Result{
		Location: domain.Location{
			Address:       formatted,
			ProvinceCode:  ProvinceCode(province),
			ProvinceShort: ProvinceShort(province),
			CityCode:      string(comp.CityCode),
			CityName:      cityName,
		},
		Formatted: formatted,
		Detail:    payload.Regeocode.AddressComponent,
	}, nil
}

// FallbackAddress formats coordinates for use when no address is known.
func FallbackAddress(lng, lat float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}
