package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/models"
)

const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Client talks to the analytics backend: query execution and widget
// definitions.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("analytics URL is not configured")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing analytics URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// RunQuery posts {query, tenant_id, user_id} to /query and returns the raw
// result body.
func (c *Client) RunQuery(ctx context.Context, req models.QueryRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/query", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListWidgets posts {tenant_id, dashboard, user_id} to /widgets/list.
func (c *Client) ListWidgets(ctx context.Context, scope models.Scope) ([]models.WidgetRecord, error) {
	body := models.WidgetListRequest{
		TenantID:  scope.TenantID,
		Dashboard: scope.Dashboard,
		UserID:    scope.UserID,
	}
	var out []models.WidgetRecord
	if err := c.do(ctx, http.MethodPost, "/widgets/list", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type createWidgetRequest struct {
	models.WidgetRecord
	TenantID  int64  `json:"tenant_id"`
	UserID    int64  `json:"user_id"`
	Dashboard string `json:"dashboard"`
}

// CreateWidget persists a widget definition and returns the server-assigned id.
func (c *Client) CreateWidget(ctx context.Context, scope models.Scope, rec models.WidgetRecord) (models.WidgetID, error) {
	body := createWidgetRequest{
		WidgetRecord: rec,
		TenantID:     scope.TenantID,
		UserID:       scope.UserID,
		Dashboard:    scope.Dashboard,
	}
	var out struct {
		ID models.WidgetID `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/widgets", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create widget: response carried no id")
	}
	return out.ID, nil
}

func (c *Client) DeleteWidget(ctx context.Context, scope models.Scope, id models.WidgetID) error {
	q := url.Values{}
	q.Set("tenant_id", strconv.FormatInt(scope.TenantID, 10))
	q.Set("user_id", strconv.FormatInt(scope.UserID, 10))
	q.Set("dashboard", scope.Dashboard)
	path := "/widgets/" + url.PathEscape(string(id)) + "?" + q.Encode()
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       strings.SplitN(path, "?", 2)[0],
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
