package moodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/micro-ha/moodo-bridge/addon/internal/model"
)

const (
	// DefaultBaseURL is the vendor REST endpoint.
	DefaultBaseURL = "https://rest.moodo.co/api"

	defaultTimeout = 10 * time.Second

	// requestIDField is the body field the backend echoes in push events.
	requestIDField = "restful_request_id"
)

// authKeywords mark error messages that indicate an authentication problem
// even when the backend responds with a generic status code.
var authKeywords = []string{"credentials", "password", "email", "unauthorized", "authentication", "login"}

// Client is the single point of outbound vendor API calls. It classifies
// failures into ErrAuth and ErrConnection and never retries; retry policy
// belongs to the refresh scheduler.
type Client struct {
	baseURL    string
	httpClient *http.Client
	ledger     *requestLedger

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string) *Client {
	return NewClientWithHTTPClient(baseURL, &http.Client{Timeout: defaultTimeout})
}

func NewClientWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		ledger:     newRequestLedger(),
	}
}

// SetToken replaces the session token used for subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ShouldIgnoreEvent pops requestID from the ledger and reports whether a
// push event carrying it is an echo of a write this session issued.
func (c *Client) ShouldIgnoreEvent(requestID string) bool {
	return c.ledger.Pop(requestID)
}

// Login exchanges credentials for a session token and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var payload struct {
		Token string `json:"token"`
	}
	body := map[string]any{"email": email, "password": password}
	if err := c.request(ctx, http.MethodPost, "/login", body, false, &payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", fmt.Errorf("%w: no token in response", ErrAuth)
	}
	c.SetToken(payload.Token)
	return payload.Token, nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, body map[string]any, tagged bool, out any) error {
	if tagged {
		if body == nil {
			body = map[string]any{}
		}
		requestID := uuid.NewString()
		body[requestIDField] = requestID
		c.ledger.Add(requestID)
	}

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("token", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return classifyErrorBody(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrConnection, err)
	}
	return nil
}

func classifyErrorBody(resp *http.Response) error {
	message := fmt.Sprintf("HTTP %d", resp.StatusCode)
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	lowered := strings.ToLower(message)
	for _, keyword := range authKeywords {
		if strings.Contains(lowered, keyword) {
			return fmt.Errorf("%w: %s", ErrAuth, message)
		}
	}
	return fmt.Errorf("%w: %s", ErrConnection, message)
}

type boxResponse struct {
	Box model.Box `json:"box"`
}

// Boxes returns all devices of the authenticated account.
func (c *Client) Boxes(ctx context.Context) ([]model.Box, error) {
	var payload struct {
		Boxes []model.Box `json:"boxes"`
	}
	if err := c.request(ctx, http.MethodGet, "/boxes", nil, false, &payload); err != nil {
		return nil, err
	}
	return payload.Boxes, nil
}

// Box returns a single device.
func (c *Client) Box(ctx context.Context, deviceKey int) (model.Box, error) {
	var payload boxResponse
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/boxes/%d", deviceKey), nil, false, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// PowerOnOptions are the optional parameters of a power-on call.
type PowerOnOptions struct {
	FanVolume       *int
	DurationMinutes *int
	FavoriteID      *string
}

// PowerOn turns a device on, optionally with volume, duration or a preset.
func (c *Client) PowerOn(ctx context.Context, deviceKey int, opts PowerOnOptions) (model.Box, error) {
	body := map[string]any{}
	if opts.FanVolume != nil {
		body["fan_volume"] = *opts.FanVolume
	}
	if opts.DurationMinutes != nil {
		body["duration_minutes"] = *opts.DurationMinutes
	}
	if opts.FavoriteID != nil {
		body["favorite_id"] = *opts.FavoriteID
	}
	var payload boxResponse
	if err := c.request(ctx, http.MethodPost, fmt.Sprintf("/boxes/%d", deviceKey), body, true, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// PowerOff turns a device off.
func (c *Client) PowerOff(ctx context.Context, deviceKey int) (model.Box, error) {
	var payload boxResponse
	if err := c.request(ctx, http.MethodDelete, fmt.Sprintf("/boxes/%d", deviceKey), nil, false, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// SetFanVolume sets the overall intensity of a device.
func (c *Client) SetFanVolume(ctx context.Context, deviceKey, fanVolume int) (model.Box, error) {
	body := map[string]any{"fan_volume": fanVolume}
	var payload boxResponse
	if err := c.request(ctx, http.MethodPost, fmt.Sprintf("/intensity/%d", deviceKey), body, true, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// SetBoxMode switches a device between diffuser and purifier mode.
func (c *Client) SetBoxMode(ctx context.Context, deviceKey int, boxMode string) (model.Box, error) {
	body := map[string]any{"box_mode": boxMode}
	var payload boxResponse
	if err := c.request(ctx, http.MethodPost, fmt.Sprintf("/mode/%d", deviceKey), body, true, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// EnableShuffle enables shuffle mode.
func (c *Client) EnableShuffle(ctx context.Context, deviceKey int) (model.Box, error) {
	var payload boxResponse
	if err := c.request(ctx, http.MethodPost, fmt.Sprintf("/shuffle/%d", deviceKey), nil, false, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// DisableShuffle disables shuffle mode.
func (c *Client) DisableShuffle(ctx context.Context, deviceKey int) (model.Box, error) {
	var payload boxResponse
	if err := c.request(ctx, http.MethodDelete, fmt.Sprintf("/shuffle/%d", deviceKey), nil, false, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// EnableInterval enables interval mode, optionally selecting a type.
func (c *Client) EnableInterval(ctx context.Context, deviceKey int, intervalType *int) (model.Box, error) {
	body := map[string]any{}
	if intervalType != nil {
		body["interval_type"] = *intervalType
	}
	var payload boxResponse
	if err := c.request(ctx, http.MethodPost, fmt.Sprintf("/interval/%d", deviceKey), body, true, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// DisableInterval disables interval mode.
func (c *Client) DisableInterval(ctx context.Context, deviceKey int) (model.Box, error) {
	var payload boxResponse
	if err := c.request(ctx, http.MethodDelete, fmt.Sprintf("/interval/%d", deviceKey), nil, false, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// IntervalTypes returns the interval-type catalog.
func (c *Client) IntervalTypes(ctx context.Context) ([]model.IntervalType, error) {
	var payload struct {
		IntervalTypes []model.IntervalType `json:"interval_types"`
	}
	if err := c.request(ctx, http.MethodGet, "/interval", nil, false, &payload); err != nil {
		return nil, err
	}
	return payload.IntervalTypes, nil
}

// SlotSpeed is one slot's part of a bulk fan-speed write.
type SlotSpeed struct {
	FanSpeed  int  `json:"fan_speed"`
	FanActive bool `json:"fan_active"`
}

// SetFanSpeeds writes per-slot fan speeds. The backend requires all four
// slots in every call; missing slots are sent as inactive.
func (c *Client) SetFanSpeeds(ctx context.Context, deviceKey int, slots map[int]SlotSpeed, boxStatus, durationSeconds *int) (model.Box, error) {
	body := map[string]any{"device_key": deviceKey}
	for slotID := 0; slotID < model.SlotCount; slotID++ {
		slot, ok := slots[slotID]
		if !ok {
			slot = SlotSpeed{}
		}
		body[fmt.Sprintf("settings_slot%d", slotID)] = slot
	}
	if boxStatus != nil {
		body["box_status"] = *boxStatus
	}
	if durationSeconds != nil {
		body["duration_seconds"] = *durationSeconds
	}
	var payload boxResponse
	if err := c.request(ctx, http.MethodPut, "/boxes", body, true, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}

// Favorites returns the preset catalog.
func (c *Client) Favorites(ctx context.Context) ([]model.Favorite, error) {
	var payload struct {
		Favorites []model.Favorite `json:"favorites"`
	}
	if err := c.request(ctx, http.MethodGet, "/favorites", nil, false, &payload); err != nil {
		return nil, err
	}
	return payload.Favorites, nil
}

// ApplyFavorite applies a preset to a device.
func (c *Client) ApplyFavorite(ctx context.Context, favoriteID string, deviceKey int, fanVolume, durationMinutes *int) (model.Box, error) {
	body := map[string]any{
		"favorite_id": favoriteID,
		"device_key":  deviceKey,
	}
	if fanVolume != nil {
		body["fan_volume"] = *fanVolume
	}
	if durationMinutes != nil {
		body["duration_minutes"] = *durationMinutes
	}
	var payload boxResponse
	if err := c.request(ctx, http.MethodPatch, "/favorites", body, true, &payload); err != nil {
		return model.Box{}, err
	}
	return payload.Box, nil
}
