// Package appsflyer posts in-app events to the AppsFlyer server-to-server
// endpoint, one record per call.
package appsflyer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api2.appsflyer.com"

	// DeliverTimeout bounds a single send so a stalled record can never
	// hold the pacing schedule hostage.
	DeliverTimeout = 15 * time.Second

	maxBodyBytes = 4 << 10
)

// Event is the payload for one record. Field names follow the AppsFlyer
// in-app event API.
type Event struct {
	AppsflyerID   string `json:"appsflyer_id"`
	AdvertisingID string `json:"advertising_id"`
	Country       string `json:"country"`
	AndroidID     string `json:"android_id,omitempty"`
	EventName     string `json:"eventName"`
	EventTime     string `json:"eventTime"`
	EventValue    string `json:"eventValue"`
	IP            string `json:"ip"`
}

// DeliveryError is a non-2xx response from the endpoint. Status is 0 for
// transport-level failures wrapped elsewhere.
type DeliveryError struct {
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("appsflyer: status=%d body=%s", e.Status, e.Body)
}

type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: DeliverTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Deliver posts one event for the given bundle. The devKey travels only
// in the authentication header and is never echoed into errors.
func (c *Client) Deliver(ctx context.Context, bundle, devKey string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	endpoint := c.baseURL + "/inappevent/" + url.PathEscape(bundle)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authentication", devKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	return &DeliveryError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// EndpointURL reports the URL a bundle's events are posted to, for logs.
func (c *Client) EndpointURL(bundle string) string {
	return c.baseURL + "/inappevent/" + url.PathEscape(bundle)
}
