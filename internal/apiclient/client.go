// Package apiclient talks to the relayadmin HTTP API. The resource endpoints
// implement resource.Source so console tables can page through them.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/resource"
	"go.uber.org/zap"
)

const maxErrorBodyBytes = 4096

var errMissingBaseURL = errors.New("apiclient: base url required")

// Error is a non-2xx response. Code is the server's error code and is what
// the console shows to the operator.
type Error struct {
	Status int
	Code   string
}

func (e *Error) Error() string {
	return e.Code
}

// IsUnauthorized reports whether err is a 401 or 403 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// Config configures a Client. A missing HTTPClient gets a fresh one with a
// cookie jar so the session cookie survives between calls.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is a session-holding API client.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

// New constructs a Client for the API rooted at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Jar: jar}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: baseURL, http: httpClient, logger: logger}, nil
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates and stores the session cookie in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (auth.Principal, error) {
	var principal auth.Principal
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, loginRequestPayload{Username: username, Password: password}, &principal)
	return principal, err
}

// Logout clears the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

// Me returns the principal of the current session.
func (c *Client) Me(ctx context.Context) (auth.Principal, error) {
	var principal auth.Principal
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &principal)
	return principal, err
}

// Users returns the account endpoints.
func (c *Client) Users() *Users {
	return &Users{client: c}
}

// Aliases returns the alias endpoints.
func (c *Client) Aliases() *Aliases {
	return &Aliases{client: c}
}

type countResponsePayload struct {
	Count int `json:"count"`
}

type errorResponsePayload struct {
	Error string `json:"error"`
}

func listParams(query resource.Query) url.Values {
	params := url.Values{}
	params.Set("start", strconv.Itoa(query.Range.Start))
	params.Set("end", strconv.Itoa(query.Range.End))
	if search := strings.TrimSpace(query.Search); search != "" {
		params.Set("search", search)
	}
	if len(query.Sort) > 0 {
		params.Set("sort", query.Sort.String())
	}
	return params
}

func searchParams(search string) url.Values {
	params := url.Values{}
	if trimmed := strings.TrimSpace(search); trimmed != "" {
		params.Set("search", trimmed)
	}
	return params
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return c.decodeError(method, path, response)
	}
	if out == nil || response.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) decodeError(method, path string, response *http.Response) error {
	apiErr := &Error{Status: response.StatusCode}
	payload, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	var decoded errorResponsePayload
	if json.Unmarshal(payload, &decoded) == nil && decoded.Error != "" {
		apiErr.Code = decoded.Error
	} else {
		apiErr.Code = fmt.Sprintf("http_%d", response.StatusCode)
	}
	c.logger.Debug("api request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", response.StatusCode),
		zap.String("code", apiErr.Code))
	return apiErr
}
