// Package client is the Go SDK for a LEAP server: RPC calls, function
// discovery and log retrieval for one experiment.
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
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// FunctionInfo describes one callable function.
type FunctionInfo struct {
	Signature  string `json:"signature"`
	Doc        string `json:"doc"`
	NoLog      bool   `json:"nolog"`
	NoRegCheck bool   `json:"noregcheck"`
}

// Client calls functions of one experiment.
type Client struct {
	baseURL    string
	experiment string
	studentID  string
	httpClient *http.Client
}

// New creates a client for the experiment at baseURL.
func New(baseURL, experiment, studentID string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		experiment: experiment,
		studentID:  studentID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

func (c *Client) expURL(suffix string) string {
	return c.baseURL + "/exp/" + c.experiment + suffix
}

// Call invokes funcName with args. An empty trial leaves the log entry's
// trial unset.
func (c *Client) Call(ctx context.Context, funcName string, args []any, trial string) (any, error) {
	payload := map[string]any{
		"student_id": c.studentID,
		"func_name":  funcName,
		"args":       args,
	}
	if trial != "" {
		payload["trial"] = trial
	}

	var out struct {
		Result any `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.expURL("/call"), payload, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Functions returns the experiment's callable functions keyed by name.
func (c *Client) Functions(ctx context.Context) (map[string]FunctionInfo, error) {
	var out map[string]FunctionInfo
	if err := c.doJSON(ctx, http.MethodGet, c.expURL("/functions"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IsRegistered reports whether the client's student id is registered.
func (c *Client) IsRegistered(ctx context.Context) (bool, error) {
	var out struct {
		Registered bool `json:"registered"`
	}
	url := c.expURL("/is-registered") + "?student_id=" + c.studentID
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return false, err
	}
	return out.Registered, nil
}

// doJSON runs one request with a JSON body and decodes the JSON response.
// Non-2xx responses become APIError with the server's detail message.
func (c *Client) doJSON(ctx context.Context, method, url string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var payload struct {
		Detail string `json:"detail"`
	}
	detail := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != "" {
		detail = payload.Detail
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}
