package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is an authenticated client for the underwriting backend API.
// A separate, unauthenticated resty client performs direct-to-storage
// transfers: presigned URLs already carry their credentials and storage
// providers reject requests that add an Authorization header on top.
type Client struct {
	baseURL  string
	http     *resty.Client
	storage  *resty.Client
	urlCache *lruCache // signed document URLs keyed by storage file path
}

// NewClient creates a new backend API client with the given bearer token.
func NewClient(baseURL, accessToken string) *Client {
	client := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		urlCache: newLRUCache(128),
	}

	client.http = resty.New().
		SetHeader("User-Agent", "dealdesk-desktop").
		SetAuthToken(accessToken).
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	// Binary transfers can be large; no automatic retry here, the upload
	// orchestrator reports per-file failures instead.
	client.storage = resty.New().
		SetTimeout(10 * time.Minute)

	return client
}

// Get performs a GET request against the backend API
func (c *Client) Get(endpoint string, params map[string]string) (*resty.Response, error) {
	url := c.buildURL(endpoint)
	req := c.http.R()

	if params != nil {
		req.SetQueryParams(params)
	}

	return req.Get(url)
}

// Post performs a POST request against the backend API
func (c *Client) Post(endpoint string, payload interface{}) (*resty.Response, error) {
	url := c.buildURL(endpoint)
	return c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
}

// Put performs a PUT request against the backend API
func (c *Client) Put(endpoint string, payload interface{}) (*resty.Response, error) {
	url := c.buildURL(endpoint)
	return c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Put(url)
}

// Delete performs a DELETE request against the backend API
func (c *Client) Delete(endpoint string, payload interface{}) (*resty.Response, error) {
	url := c.buildURL(endpoint)
	req := c.http.R()

	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	return req.Delete(url)
}

// Transfer uploads a file body directly to a presigned storage URL.
func (c *Client) Transfer(uploadURL string, body []byte, contentType string) (*resty.Response, error) {
	return c.storage.R().
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Put(uploadURL)
}

// CacheSignedURL remembers a signed document URL for a storage file path.
// Signed URLs stay valid for hours; caching avoids re-fetching the whole
// draft just to re-open a document viewer.
func (c *Client) CacheSignedURL(filePath, signedURL string) {
	if filePath == "" || signedURL == "" {
		return
	}
	c.urlCache.Put(filePath, signedURL)
}

// SignedURL returns a previously cached signed URL for a file path.
func (c *Client) SignedURL(filePath string) (string, bool) {
	return c.urlCache.Get(filePath)
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

// SetTimeout allows customizing the timeout for specific operations
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.SetTimeout(timeout)
}
