package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the document store server over HTTP. Transport failures
// are reported to the monitor (when attached) so a failed write flips the
// reachable signal without waiting for the next health probe.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	monitor    *Monitor
}

// NewClient creates a remote store client. monitor may be nil.
func NewClient(baseURL, token string, timeout time.Duration, monitor *Monitor) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		monitor: monitor,
	}
}

// Query implements Store.Query
func (c *Client) Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Record, error) {
	params := url.Values{}
	for _, f := range filters {
		params.Set("f."+f.Field, fmt.Sprintf("%v", f.Value))
	}
	if order != nil {
		params.Set("orderBy", order.Field)
		if order.Descending {
			params.Set("dir", "desc")
		}
	}

	endpoint := fmt.Sprintf("%s/api/collections/%s", c.baseURL, url.PathEscape(collection))
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode %s query response: %w", collection, err)
	}
	return records, nil
}

// CreateRecord implements Store.CreateRecord
func (c *Client) CreateRecord(ctx context.Context, collection string, payload Record) (string, error) {
	endpoint := fmt.Sprintf("%s/api/collections/%s", c.baseURL, url.PathEscape(collection))

	body, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create in %s: server returned no id", collection)
	}
	return created.ID, nil
}

// UpdateRecord implements Store.UpdateRecord
func (c *Client) UpdateRecord(ctx context.Context, collection string, id string, patch Record) error {
	endpoint := fmt.Sprintf("%s/api/collections/%s/%s", c.baseURL, url.PathEscape(collection), url.PathEscape(id))
	_, err := c.do(ctx, http.MethodPatch, endpoint, patch)
	return err
}

// do executes one request and returns the response body
func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request payload: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure is the failed-write heuristic for
		// connectivity detection.
		if c.monitor != nil {
			c.monitor.NoteFailure()
		}
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: server returned %d: %s", method, endpoint, resp.StatusCode, truncate(body, 200))
	}

	if c.monitor != nil {
		c.monitor.NoteSuccess()
	}
	return body, nil
}

func truncate(b []byte, max int) string {
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
