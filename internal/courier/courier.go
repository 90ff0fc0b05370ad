// Package courier reads shipment progress from the courier's tracking API.
package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/safar/hardware-store/internal/config"
	"github.com/safar/hardware-store/internal/models"
)

var (
	ErrNotRegistered = errors.New("tracking number is not registered with the courier")
	ErrUpstream      = errors.New("courier tracking service unavailable")
)

const statusNotRegistered = "not_registered"

// timeLayouts are tried in order when normalizing event times.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg config.CourierConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type trackResponse struct {
	Status string     `json:"status"`
	Events []rawEvent `json:"events"`
}

type rawEvent struct {
	Time        string `json:"time"`
	Description string `json:"description"`
	Name        string `json:"name"`
}

// Track returns the shipment's events, most recent first. A number the
// courier does not know yet is registered and read exactly once more;
// nothing else is retried.
func (c *Client) Track(ctx context.Context, number string) ([]models.TrackingEvent, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: empty tracking number", ErrNotRegistered)
	}

	events, err := c.fetch(ctx, number)
	if !errors.Is(err, ErrNotRegistered) {
		return events, err
	}

	if err := c.register(ctx, number); err != nil {
		return nil, err
	}

	return c.fetch(ctx, number)
}

func (c *Client) fetch(ctx context.Context, number string) ([]models.TrackingEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/trackings/"+url.PathEscape(number), nil)
	if err != nil {
		return nil, fmt.Errorf("build tracking request: %w", err)
	}
	c.sign(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotRegistered
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var body trackResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tracking response: %w", err)
	}
	if body.Status == statusNotRegistered {
		return nil, ErrNotRegistered
	}

	return normalize(body.Events), nil
}

func (c *Client) register(ctx context.Context, number string) error {
	payload, err := json.Marshal(map[string]string{"number": number})
	if err != nil {
		return fmt.Errorf("marshal register request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/trackings", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 409 means someone registered it first, which is fine.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("%w: register status %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

func (c *Client) sign(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

// normalize maps courier events onto {opTime, opDesc, opName} sorted most
// recent first. Events whose time cannot be parsed sort last in their
// original order.
func normalize(raw []rawEvent) []models.TrackingEvent {
	out := make([]models.TrackingEvent, 0, len(raw))
	for _, e := range raw {
		out = append(out, models.TrackingEvent{
			OpTime: parseTime(e.Time),
			OpDesc: strings.TrimSpace(e.Description),
			OpName: strings.TrimSpace(e.Name),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpTime.After(out[j].OpTime)
	})
	return out
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
