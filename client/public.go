package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const publicUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const publicRetries = 3

func (c *Client) publicRetryWait() time.Duration {
	if c.publicWait > 0 {
		return c.publicWait
	}
	return 2 * time.Second
}

// publicHeaders is the desktop-browser header set for web endpoints.
func (c *Client) publicHeaders() map[string]string {
	return map[string]string{
		"Connection":      "Keep-Alive",
		"Accept":          "*/*",
		"Accept-Encoding": "gzip,deflate",
		"Accept-Language": "en-US",
		"User-Agent":      publicUserAgent,
		"X-IG-App-ID":     AppID,
	}
}

// PublicRequest fetches a web endpoint with the browser-flavored client.
// target may be absolute or relative to the web base. Transient failures
// (connection errors, short reads, 5xx) are retried a fixed number of times;
// definite client errors fail immediately.
func (c *Client) PublicRequest(target string, opts ...RequestOption) ([]byte, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 0; attempt < publicRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(c.publicRetryWait())
		}
		body, err := c.sendPublicRequest(target, &o)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		c.log.Warn().Err(err).Str("url", target).Int("attempt", attempt+1).
			Msg("public request failed, retrying")
	}
	return nil, lastErr
}

// PublicRequestJSON fetches a web endpoint and decodes the JSON body.
func (c *Client) PublicRequestJSON(target string, opts ...RequestOption) (map[string]any, error) {
	body, err := c.PublicRequest(target, opts...)
	if err != nil {
		return nil, err
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ClientJSONDecodeError{baseErr(
			fmt.Sprintf("JSONDecodeError while opening %s: %s", target, err), "", 0, c.LastResponse, nil)}
	}
	c.LastJSON = parsed
	return parsed, nil
}

// PublicGraphQLRequest runs a query_hash GraphQL query on the web surface
// and returns the "data" object.
func (c *Client) PublicGraphQLRequest(queryHash string, variables map[string]any) (map[string]any, error) {
	vars, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql variables: %w", err)
	}
	params := url.Values{
		"query_hash": {queryHash},
		"variables":  {string(vars)},
	}
	parsed, err := c.PublicRequestJSON("graphql/query/", WithParams(params))
	if err != nil {
		return nil, err
	}
	if data, ok := parsed["data"].(map[string]any); ok {
		return data, nil
	}
	return parsed, nil
}

// PublicA1Request fetches a page's embedded JSON via the ?__a=1 view and
// returns the "graphql" object when present.
func (c *Client) PublicA1Request(path string, params url.Values) (map[string]any, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("__a", "1")
	params.Set("__d", "dis")
	parsed, err := c.PublicRequestJSON(strings.TrimPrefix(path, "/"), WithParams(params))
	if err != nil {
		return nil, err
	}
	if g, ok := parsed["graphql"].(map[string]any); ok {
		return g, nil
	}
	return parsed, nil
}

// sendPublicRequest performs one web exchange and classifies the result.
func (c *Client) sendPublicRequest(target string, o *requestOptions) ([]byte, error) {
	if !strings.Contains(target, "://") {
		target = c.WebBase + strings.TrimPrefix(target, "/")
	}
	if len(o.params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + o.params.Encode()
	}

	var req *http.Request
	var err error
	if o.data != nil {
		form := url.Values{}
		for k, v := range o.data {
			form.Set(k, fmt.Sprint(v))
		}
		req, err = http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequest(http.MethodGet, target, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.publicHeaders() {
		req.Header.Set(k, v)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.public.Do(req)
	if err != nil {
		return nil, &ClientConnectionError{baseErr(
			fmt.Sprintf("%T: %s", err, err.Error()), "", 0, nil, nil)}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	c.LastResponse = resp
	c.updateCookies(resp.Cookies())
	if err != nil {
		return nil, &ClientIncompleteReadError{baseErr(
			fmt.Sprintf("incomplete read: %s", err), "", resp.StatusCode, resp, nil)}
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", req.Method).
		Str("url", target).
		Msg("public request")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// The login wall answers 200 with a redirect to the login page.
		if strings.Contains(resp.Request.URL.Path, "/accounts/login") {
			return nil, &ClientLoginRequired{baseErr("login required", "", resp.StatusCode, resp, nil)}
		}
		return body, nil
	case resp.StatusCode == http.StatusBadRequest:
		return nil, &ClientBadRequestError{baseErr("bad request", "", 400, resp, nil)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ClientForbiddenError{baseErr("forbidden", "", resp.StatusCode, resp, nil)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &ClientNotFoundError{baseErr("not found", "", 404, resp, nil)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ClientThrottledError{baseErr("throttled", "", 429, resp, nil)}
	default:
		return nil, &ClientError{Message: "unexpected status", Code: resp.StatusCode, Response: resp}
	}
}
