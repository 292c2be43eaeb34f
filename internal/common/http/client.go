// internal/common/http/client.go
package http

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

	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/requestid"
)

// Client talks to a running prediction server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}
	return c.httpClient.Do(req)
}

// Predict posts payload to /predict/<kind> and returns the raw response document.
func (c *Client) Predict(ctx context.Context, kind string, payload map[string]interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]interface{}{"payload": payload})
	if err != nil {
		return nil, errors.NewInvalidPayloadError("predict/"+kind, err.Error())
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/predict/"+url.PathEscape(kind), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out bytes.Buffer
	if err := c.roundTrip(ctx, req, &out); err != nil {
		return nil, err
	}
	return json.RawMessage(out.Bytes()), nil
}

// ScoreBatch uploads a CSV document to /predict/batch and copies the scored file to w.
func (c *Client) ScoreBatch(ctx context.Context, mode string, r io.Reader, w io.Writer) error {
	q := url.Values{"mode": {mode}}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/predict/batch?"+q.Encode(), r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/csv")
	return c.roundTrip(ctx, req, w)
}

// roundTrip sends req and copies a 2xx body to w. Any other status is decoded
// from the server's error envelope into a StandardError.
func (c *Client) roundTrip(ctx context.Context, req *http.Request, w io.Writer) error {
	resp, err := c.DoWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, err = io.Copy(w, resp.Body)
		return err
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Error errors.StandardError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		return errors.NewInternalError(strings.TrimPrefix(req.URL.Path, "/"),
			fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(raw)))
	}
	return &envelope.Error
}
