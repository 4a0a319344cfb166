// Package feed fetches recent seismic events from the USGS FDSN event service.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
)

// ErrBadStatus is returned when the feed answers with a non-2xx status
var ErrBadStatus = errors.New("feed returned non-success status")

const (
	DefaultURL     = "https://earthquake.usgs.gov/fdsnws/event/1/query"
	DefaultWindow  = 30 * time.Minute
	DefaultTimeout = 15 * time.Second

	minMagnitude = "0.1"
	timeLayout   = "2006-01-02T15:04:05"
)

// Source returns the events of the recent window
type Source interface {
	Fetch(ctx context.Context) ([]model.Event, error)
}

// Client queries the USGS GeoJSON endpoint
type Client struct {
	baseURL string
	window  time.Duration
	client  *http.Client
	now     func() time.Time
}

// NewClient creates a feed client. Zero values fall back to the package defaults.
func NewClient(baseURL string, window, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "?"),
		window:  window,
		client:  newHTTPClient(timeout),
		now:     time.Now,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag   *float64 `json:"mag"`
		Place *string  `json:"place"`
		Time  int64    `json:"time"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// Fetch returns the events that occurred within the window ending now.
// Records with a missing magnitude or place are returned as-is; callers validate them.
func (c *Client) Fetch(ctx context.Context) ([]model.Event, error) {
	end := c.now().UTC()
	start := end.Add(-c.window)

	q := url.Values{}
	q.Set("format", "geojson")
	q.Set("starttime", start.Format(timeLayout))
	q.Set("endtime", end.Format(timeLayout))
	q.Set("minmagnitude", minMagnitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d %s", ErrBadStatus, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	events := make([]model.Event, 0, len(fc.Features))
	for _, f := range fc.Features {
		events = append(events, f.toEvent())
	}
	return events, nil
}

func (f feature) toEvent() model.Event {
	ev := model.Event{
		ID:         f.ID,
		OccurredAt: time.UnixMilli(f.Properties.Time).UTC(),
	}
	if f.Properties.Mag != nil {
		ev.Magnitude = *f.Properties.Mag
	}
	if f.Properties.Place != nil {
		ev.Place = *f.Properties.Place
	}
	// GeoJSON order is [longitude, latitude, depth]
	coords := f.Geometry.Coordinates
	if len(coords) > 0 {
		ev.Longitude = coords[0]
	}
	if len(coords) > 1 {
		ev.Latitude = coords[1]
	}
	if len(coords) > 2 {
		ev.Depth = coords[2]
	}
	return ev
}
