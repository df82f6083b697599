// Package remote talks to the remote lookup API. It attaches the cached
// bearer token to every request and maps auth failures to sentinels, but
// never logs the user out on its own.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/biofugitive/fieldcache/internal/platform/metrics"
	"github.com/biofugitive/fieldcache/pkg/schema"
)

var (
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrForbidden    = errors.New("remote: forbidden")
)

// StatusError is a non-2xx reply other than 401 and 403.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned status %d", e.Code)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.Code, e.Message)
}

// TokenSource yields the bearer token; an empty token sends no header.
// *session.Cache satisfies it.
type TokenSource interface {
	Token() string
}

// Client is a JSON client for the remote API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// New returns a client with a bounded HTTP timeout.
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Tokens:  tokens,
	}
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Do sends in as JSON (when non-nil) and decodes the reply into out (when
// non-nil). The request is never retried.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Tokens != nil {
		if token := c.Tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(resp.Body)
		c.logger().Warn("remote request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			c.Metrics.IncRemoteAuthFailure(strconv.Itoa(resp.StatusCode))
			return withMessage(ErrUnauthorized, msg)
		case http.StatusForbidden:
			c.Metrics.IncRemoteAuthFailure(strconv.Itoa(resp.StatusCode))
			return withMessage(ErrForbidden, msg)
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func withMessage(err error, msg string) error {
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

// errorMessage pulls "message" (or "error") out of a JSON error body, falling
// back to the raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

// LoginResult is the reply to a successful login.
type LoginResult struct {
	Token   string      `json:"token"`
	User    schema.User `json:"user"`
	Message string      `json:"message"`
}

// Login exchanges credentials for a token. Callers hand the result to the
// session cache, which applies its own fallbacks for a missing token or user.
func (c *Client) Login(ctx context.Context, userID, password string) (LoginResult, error) {
	var out LoginResult
	in := map[string]string{"user_id": userID, "password": password}
	if err := c.Do(ctx, http.MethodPost, PathLogin, in, &out); err != nil {
		return LoginResult{}, err
	}
	return out, nil
}

// Me returns the identity behind the current token.
func (c *Client) Me(ctx context.Context) (schema.User, error) {
	var out schema.User
	if err := c.Do(ctx, http.MethodGet, PathMe, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MatchResult is the reply of the fingerprint and face matchers. Face
// matches report Confidence instead of Score.
type MatchResult struct {
	MatchFound    bool           `json:"matchFound"`
	Score         float64        `json:"score"`
	BestScore     float64        `json:"bestScore,omitempty"`
	Confidence    float64        `json:"confidence,omitempty"`
	MatchedPerson map[string]any `json:"matchedPerson,omitempty"`
	Message       string         `json:"message,omitempty"`
}

// PersonName returns matchedPerson.name, or "".
func (m MatchResult) PersonName() string {
	name, _ := m.MatchedPerson["name"].(string)
	return name
}

// MatchFingerprint submits a base64 image to the matcher.
func (c *Client) MatchFingerprint(ctx context.Context, imageBase64, filename string) (MatchResult, error) {
	var out MatchResult
	in := map[string]string{"fingerprint": imageBase64, "filename": filename}
	if err := c.Do(ctx, http.MethodPost, PathFingerprintMatch, in, &out); err != nil {
		return MatchResult{}, err
	}
	return out, nil
}

// MatchFace submits a base64 face photo to the matcher.
func (c *Client) MatchFace(ctx context.Context, imageBase64, filename string) (MatchResult, error) {
	var out MatchResult
	in := map[string]string{"faceImage": imageBase64, "filename": filename}
	if err := c.Do(ctx, http.MethodPost, PathFaceMatch, in, &out); err != nil {
		return MatchResult{}, err
	}
	return out, nil
}
