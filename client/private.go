package client

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// requestOptions collects the per-request knobs of PrivateRequest.
type requestOptions struct {
	data     map[string]any
	params   url.Values
	headers  map[string]string
	extraSig []string
	login    bool
	unsigned bool
}

// RequestOption configures a single private request.
type RequestOption func(*requestOptions)

// WithData makes the request a POST with the given payload, signed unless
// Unsigned is also passed.
func WithData(data map[string]any) RequestOption {
	return func(o *requestOptions) { o.data = data }
}

// WithParams appends query string parameters.
func WithParams(params url.Values) RequestOption {
	return func(o *requestOptions) { o.params = params }
}

// WithHeaders merges extra headers over the base set.
func WithHeaders(headers map[string]string) RequestOption {
	return func(o *requestOptions) { o.headers = headers }
}

// WithExtraSig appends pre-encoded fragments after the signed body.
func WithExtraSig(fragments ...string) RequestOption {
	return func(o *requestOptions) { o.extraSig = append(o.extraSig, fragments...) }
}

// AsLogin marks the request as part of a login flow: the pre-request pacing
// sleep is skipped.
func AsLogin() RequestOption {
	return func(o *requestOptions) { o.login = true }
}

// Unsigned sends the POST payload as a plain form instead of a signed body.
func Unsigned() RequestOption {
	return func(o *requestOptions) { o.unsigned = true }
}

// baseHeaders builds the full mobile header set for one request. Pigeon
// session id and the bandwidth triplet are randomized per call.
func (c *Client) baseHeaders() map[string]string {
	locale := strings.Replace(c.Locale, "_", "-", 1)
	h := map[string]string{
		"X-IG-App-Locale":          c.Locale,
		"X-IG-Device-Locale":       c.Locale,
		"X-IG-Mapped-Locale":       c.Locale,
		"X-Pigeon-Session-Id":      fmt.Sprintf("UFS-%s-1", uuid.New().String()),
		"X-Pigeon-Rawclienttime":   fmt.Sprintf("%.3f", float64(time.Now().UnixMilli())/1000),
		"X-IG-Bandwidth-Speed-KBPS": fmt.Sprintf("%.3f", float64(randBetween(2500000, 3000000))/1000),
		"X-IG-Bandwidth-TotalBytes-B": strconv.Itoa(randBetween(5000000, 90000000)),
		"X-IG-Bandwidth-TotalTime-MS": strconv.Itoa(randBetween(2000, 9000)),
		"X-IG-App-Startup-Country": c.Country,
		"X-Bloks-Version-Id":       c.bloksVersionID,
		"X-IG-WWW-Claim":           "0",
		"X-Bloks-Is-Layout-RTL":    "false",
		"X-Bloks-Is-Panorama-Enabled": "true",
		"X-IG-Device-ID":           c.IDs.UUID,
		"X-IG-Family-Device-ID":    c.IDs.PhoneID,
		"X-IG-Android-ID":          c.IDs.AndroidDeviceID,
		"X-IG-Timezone-Offset":     strconv.Itoa(c.TimezoneOffset),
		"X-IG-Connection-Type":     "WIFI",
		"X-IG-Capabilities":        capabilitiesToken,
		"X-IG-App-ID":              AppID,
		"Priority":                 "u=3",
		"User-Agent":               c.UserAgent,
		"Accept-Language":          locale,
		"Content-Type":             "application/x-www-form-urlencoded; charset=UTF-8",
		"Accept-Encoding":          "gzip",
		"X-FB-HTTP-Engine":         "Liger",
		"Connection":               "keep-alive",
		"X-FB-Client-IP":           "True",
		"X-FB-Server-Cluster":      "True",
		"IG-INTENDED-USER-ID":      strconv.FormatInt(c.UserID(), 10),
		"X-IG-Nav-Chain":           "9MV:self_profile:2,ProfileMediaTabFragment:self_profile:3,9Xf:self_following:4",
		"X-IG-SALT-IDS":            strconv.Itoa(randBetween(1061162222, 1061262222)),
	}
	if claim := c.session.IgWwwClaim; claim != "" {
		h["X-IG-WWW-Claim"] = claim
	}
	if auth := c.Authorization(); auth != "" {
		h["Authorization"] = auth
	}
	if c.session.Mid != "" {
		h["X-MID"] = c.session.Mid
	}
	if id := c.UserID(); id != 0 {
		h["IG-U-DS-USER-ID"] = strconv.FormatInt(id, 10)
		h["IG-U-IG-DIRECT-REGION-HINT"] = fmt.Sprintf("LLA,%d,%d:01f7bae7d8b131877d8e0ae1493252280d72f6d0d554447cb1dc9049b6b2c507c08605b7", id, time.Now().Unix()+615600)
		if c.session.IgURur != "" {
			h["IG-U-RUR"] = fmt.Sprintf("%s,%d,%d:01f7bae7d8b131877d8e0ae1493252280d72f6d0d554447cb1dc9049b6b2c507c08605b7", c.session.IgURur, id, time.Now().Unix()+31536000)
		}
	}
	return h
}

// signBody produces the signed_body form value for a payload: the SIGNATURE
// sentinel followed by the compact JSON encoding.
func signBody(data map[string]any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal signed body: %w", err)
	}
	return "SIGNATURE." + string(raw), nil
}

// PrivateRequest performs one logical private API call with the full
// recovery policy: a single delayed retry on request timeout, a single
// reissue after an in-band challenge is resolved, the exception hook when
// installed, and a bounded retry loop for transient transport failures.
func (c *Client) PrivateRequest(endpoint string, opts ...RequestOption) (map[string]any, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	retries := c.RetriesCount
	if retries > 10 {
		retries = 10
	}
	spacing := c.RetriesTimeout
	if spacing > 600*time.Second {
		spacing = 600 * time.Second
	}

	timeoutRetried := false
	challengeRetried := false
	attempt := 0
	for {
		result, err := c.sendPrivateRequest(endpoint, &o)
		if err == nil {
			return result, nil
		}

		switch err.(type) {
		case *ClientRequestTimeout:
			if timeoutRetried {
				return nil, err
			}
			timeoutRetried = true
			c.log.Info().Str("endpoint", endpoint).Dur("wait", c.timeoutRetryWait).
				Msg("request timeout, waiting before one more attempt")
			time.Sleep(c.timeoutRetryWait)
			continue
		case *ChallengeRequired:
			if challengeRetried {
				return nil, err
			}
			challengeRetried = true
			if rerr := c.ChallengeResolve(c.LastJSON); rerr != nil {
				return nil, rerr
			}
			continue
		}

		if c.HandleException != nil {
			if herr := c.HandleException(c, err); herr != nil {
				return nil, herr
			}
			continue
		}

		if IsRetryable(err) && attempt < retries {
			attempt++
			c.log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).
				Msg("transient failure, retrying")
			time.Sleep(spacing)
			continue
		}
		return nil, err
	}
}

// sendPrivateRequest performs exactly one HTTP exchange and classifies it.
func (c *Client) sendPrivateRequest(endpoint string, o *requestOptions) (map[string]any, error) {
	if !o.login && c.RequestTimeout > 0 {
		time.Sleep(c.RequestTimeout)
	}

	c.LastResponse = nil
	c.LastJSON = nil

	target := c.APIBase + strings.TrimPrefix(endpoint, "/")
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
		var body string
		if o.unsigned {
			form := url.Values{}
			for k, v := range o.data {
				form.Set(k, fmt.Sprint(v))
			}
			body = form.Encode()
		} else {
			signed, serr := signBody(o.data)
			if serr != nil {
				return nil, serr
			}
			body = url.Values{"signed_body": {signed}}.Encode()
			for _, frag := range o.extraSig {
				body += "&" + frag
			}
		}
		req, err = http.NewRequest(http.MethodPost, target, strings.NewReader(body))
	} else {
		req, err = http.NewRequest(http.MethodGet, target, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, v := range c.baseHeaders() {
		req.Header.Set(k, v)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.private.Do(req)
	if err != nil {
		return nil, &ClientConnectionError{baseErr(
			fmt.Sprintf("%T: %s", err, err.Error()), "", 0, nil, nil)}
	}
	defer resp.Body.Close()

	body, err := readBody(resp)

	c.mu.Lock()
	c.privateRequestsCount++
	c.totalResponseBytes += int64(len(body))
	c.mu.Unlock()

	c.LastResponse = resp
	c.updateCookies(resp.Cookies())
	c.absorbResponseHeaders(resp.Header)

	if err != nil {
		return nil, &ClientIncompleteReadError{baseErr(
			fmt.Sprintf("incomplete read: %s", err), "", resp.StatusCode, resp, nil)}
	}

	var parsed map[string]any
	decodeErr := json.Unmarshal(body, &parsed)
	if decodeErr == nil {
		c.LastJSON = parsed
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", req.Method).
		Str("url", target).
		Str("username", c.Username).
		Msg("private request")

	if cerr := c.classifyPrivate(resp, body, parsed, decodeErr); cerr != nil {
		return nil, cerr
	}
	return parsed, nil
}

// classifyPrivate maps one response onto the error taxonomy; nil means OK.
func (c *Client) classifyPrivate(resp *http.Response, body []byte, parsed map[string]any, decodeErr error) error {
	if decodeErr != nil {
		if resp.StatusCode == http.StatusNotFound {
			return &ClientNotFoundError{baseErr("not found", "", 404, resp, nil)}
		}
		if strings.Contains(resp.Request.URL.Path, "/accounts/login/") ||
			strings.Contains(string(body), "accounts/login") {
			return &LoginRequired{baseErr("login required", "", resp.StatusCode, resp, nil)}
		}
		return &ClientJSONDecodeError{baseErr(
			fmt.Sprintf("JSONDecodeError while opening %s: %s", resp.Request.URL, decodeErr),
			"", resp.StatusCode, resp, nil)}
	}

	message, _ := parsed["message"].(string)
	errorType, _ := parsed["error_type"].(string)
	status, _ := parsed["status"].(string)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		switch {
		case message == "challenge_required" || message == "checkpoint_challenge_required":
			return &ChallengeRequired{baseErr(message, errorType, 400, resp, parsed)}
		case message == "feedback_required":
			fb, _ := parsed["feedback_message"].(string)
			return &FeedbackRequired{
				ClientError:     baseErr(message, errorType, 400, resp, parsed),
				FeedbackMessage: fb,
			}
		case errorType == "sentry_block":
			return &SentryBlock{baseErr(message, errorType, 400, resp, parsed)}
		case errorType == "rate_limit_error":
			return &RateLimitError{baseErr(message, errorType, 400, resp, parsed)}
		case errorType == "bad_password":
			return &BadPassword{baseErr(message, errorType, 400, resp, parsed)}
		case errorType == "two_factor_required":
			return &TwoFactorRequired{baseErr(message, errorType, 400, resp, parsed)}
		case strings.Contains(message, "Please wait a few minutes"):
			return &PleaseWaitFewMinutes{baseErr(message, errorType, 400, resp, parsed)}
		case strings.Contains(message, "Media is unavailable") || strings.Contains(message, "has been deleted"):
			return &MediaUnavailable{baseErr(message, errorType, 400, resp, parsed)}
		case strings.Contains(message, "Not authorized to view user"):
			return &PrivateAccount{baseErr(message, errorType, 400, resp, parsed)}
		case strings.HasPrefix(message, "The username you entered"):
			return &ProxyAddressIsBlocked{baseErr(message, errorType, 400, resp, parsed)}
		default:
			return &ClientBadRequestError{baseErr(message, errorType, 400, resp, parsed)}
		}
	case http.StatusForbidden:
		if message == "login_required" {
			return &LoginRequired{baseErr(message, errorType, 403, resp, parsed)}
		}
		return &ClientForbiddenError{baseErr(message, errorType, 403, resp, parsed)}
	case http.StatusNotFound:
		return &ClientNotFoundError{baseErr(message, errorType, 404, resp, parsed)}
	case http.StatusRequestTimeout:
		return &ClientRequestTimeout{baseErr(message, errorType, 408, resp, parsed)}
	case http.StatusTooManyRequests:
		return &ClientThrottledError{baseErr(message, errorType, 429, resp, parsed)}
	}

	if resp.StatusCode >= 500 {
		return &UnknownError{baseErr(message, errorType, resp.StatusCode, resp, parsed)}
	}
	if status == "fail" {
		return &ClientError{Message: message, ErrorType: errorType, Code: resp.StatusCode, Response: resp, LastJSON: parsed}
	}
	if title, ok := parsed["error_title"].(string); ok && title != "" {
		return &ClientError{Message: title, ErrorType: errorType, Code: resp.StatusCode, Response: resp, LastJSON: parsed}
	}
	return nil
}

// readBody drains a response, transparently inflating gzip, and verifies the
// advertised Content-Length was actually delivered.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return body, err
	}
	if resp.ContentLength > 0 && resp.Header.Get("Content-Encoding") == "" &&
		int64(len(body)) < resp.ContentLength {
		return body, fmt.Errorf("read %d of %d bytes", len(body), resp.ContentLength)
	}
	return body, nil
}

func randBetween(min, max int) int {
	return min + rand.Intn(max-min+1)
}
