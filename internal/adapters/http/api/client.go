package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/chorus/internal/domain/model"
)

// Client talks to a chorus server on behalf of one satellite in one room.
// It serves as the satellite's clock.TimeSource and ArtifactSink.
type Client struct {
	base string
	room string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// NewClient returns a Client for room on the server at base.
func NewClient(base, room string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimSuffix(base, "/"),
		room: room,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BusURL is the room's WebSocket endpoint.
func (c *Client) BusURL() string {
	u := c.base + "/rooms/" + url.PathEscape(c.room) + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// ServerTime fetches the authority clock.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/time", http.NoBody)
	if err != nil {
		return 0, err
	}
	var out timeResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return 0, err
	}
	return out.ServerTime, nil
}

// UploadArtifact posts a finished recording.
func (c *Client) UploadArtifact(ctx context.Context, part string, capturedAtMs, offsetMs int64, ext string, data []byte) (string, error) {
	q := url.Values{}
	q.Set("part", part)
	q.Set("captured", strconv.FormatInt(capturedAtMs, 10))
	q.Set("offset", strconv.FormatInt(offsetMs, 10))
	q.Set("ext", ext)
	endpoint := c.roomURL("/artifacts?" + q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "audio/wav")
	var out uploadResponse
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// ScheduleRecording asks the master for a synchronized start and returns
// the target authority time.
func (c *Client) ScheduleRecording(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.roomURL("/recording/schedule"), http.NoBody)
	if err != nil {
		return 0, err
	}
	var out scheduleResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return 0, err
	}
	return out.TargetTime, nil
}

// StopRecording stops the room's recording.
func (c *Client) StopRecording(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.roomURL("/recording/stop"), http.NoBody)
	if err != nil {
		return err
	}
	var out ackResponse
	return c.do(req, http.StatusOK, &out)
}

// Takes lists the room's takes, newest first.
func (c *Client) Takes(ctx context.Context) ([]model.Take, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.roomURL("/takes"), http.NoBody)
	if err != nil {
		return nil, err
	}
	var out []model.Take
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) roomURL(suffix string) string {
	return c.base + "/api/rooms/" + url.PathEscape(c.room) + suffix
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return WrapKind("api.client", ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return WrapKind("api.client", ErrUpstream, fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, e.Message))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
