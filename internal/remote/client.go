package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/thisai/billsync/internal/models"
)

// Backend is the contract the sync engine needs from the remote store:
// create a document and receive its id, update by id, delete by id, and
// list a resource ordered by creation time.
type Backend interface {
	Create(ctx context.Context, resource string, fields map[string]any) (string, error)
	Update(ctx context.Context, resource, id string, fields map[string]any) error
	Delete(ctx context.Context, resource, id string) error
	List(ctx context.Context, resource string) ([]models.Record, error)
}

// defaultRequestTimeout bounds each call so a hung backend cannot hold the
// sync pass indefinitely.
const defaultRequestTimeout = 30 * time.Second

// HTTPClient implements Backend over HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates an HTTP-based backend client.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (c *HTTPClient) resourceURL(resource, id string) string {
	if id == "" {
		return fmt.Sprintf("%s/api/v1/collections/%s", c.baseURL, resource)
	}
	return fmt.Sprintf("%s/api/v1/collections/%s/%s", c.baseURL, resource, id)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Create posts a new document and returns the backend-assigned id.
func (c *HTTPClient) Create(ctx context.Context, resource string, fields map[string]any) (string, error) {
	var resp CreateResponse
	if err := c.doJSON(ctx, http.MethodPost, c.resourceURL(resource, ""), fields, &resp); err != nil {
		return "", fmt.Errorf("create %s: %w", resource, err)
	}
	return resp.ID, nil
}

// Update applies a partial update keyed by id.
func (c *HTTPClient) Update(ctx context.Context, resource, id string, fields map[string]any) error {
	if err := c.doJSON(ctx, http.MethodPatch, c.resourceURL(resource, id), fields, nil); err != nil {
		return fmt.Errorf("update %s/%s: %w", resource, id, err)
	}
	return nil
}

// Delete removes a document by id.
func (c *HTTPClient) Delete(ctx context.Context, resource, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, c.resourceURL(resource, id), nil, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", resource, id, err)
	}
	return nil
}

// List fetches every document in the resource, ordered by creation time.
func (c *HTTPClient) List(ctx context.Context, resource string) ([]models.Record, error) {
	var resp ListResponse
	if err := c.doJSON(ctx, http.MethodGet, c.resourceURL(resource, ""), nil, &resp); err != nil {
		return nil, fmt.Errorf("list %s: %w", resource, err)
	}
	return resp.Documents, nil
}

// RemoteError represents a structured error from the backend.
type RemoteError struct {
	Code    string
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%d): %s: %s", e.Status, e.Code, e.Message)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &RemoteError{
			Code:    "unknown",
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}
	return &RemoteError{
		Code:    errResp.Error,
		Message: errResp.Message,
		Status:  resp.StatusCode,
	}
}
