// Package client calls the service's HTTP API; the CLI subcommands use it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/command"
)

// Snapshot mirrors GET /api/latest. A kind with no data stays nil.
type Snapshot struct {
	Lux   *LuxItem   `json:"lux"`
	Color *ColorItem `json:"color"`
	LED   *LEDItem   `json:"led"`
}

type LuxItem struct {
	ID  int64     `json:"id"`
	TS  time.Time `json:"ts"`
	Lux float64   `json:"lux"`
}

type ColorItem struct {
	ID   int64     `json:"id"`
	TS   time.Time `json:"ts"`
	RGB  [3]int    `json:"rgb"`
	HSV  HSV       `json:"hsv"`
	Name string    `json:"name"`
}

type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

type LEDItem struct {
	ID  int64     `json:"id"`
	TS  time.Time `json:"ts"`
	RGB [3]int    `json:"rgb"`
}

// APIClient wraps URL building, JSON decoding and status checks.
type APIClient struct {
	BaseURL    string
	httpClient *http.Client
}

// NewAPIClient always sets a timeout: the zero http.Client waits forever.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Latest calls GET /api/latest.
func (c *APIClient) Latest(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/latest", nil)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := c.do(req, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// SendLED calls POST /api/cmd. The server clamps the components.
func (c *APIClient) SendLED(ctx context.Context, r, g, b int) (command.Published, error) {
	body, err := json.Marshal(map[string][]int{"led": {r, g, b}})
	if err != nil {
		return command.Published{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/cmd", bytes.NewReader(body))
	if err != nil {
		return command.Published{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		OK        bool              `json:"ok"`
		Published command.Published `json:"published"`
	}
	if err := c.do(req, &resp); err != nil {
		return command.Published{}, err
	}
	return resp.Published, nil
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// apiError surfaces the server's {"error": ...} message when there is one.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("API returned %d", resp.StatusCode)
}
