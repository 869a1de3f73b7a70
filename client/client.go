package client

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	mrand "math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// API constants. The Bloks version id is a server-blessed content hash that
// rotates upstream; override it with SetBloksVersionID when it does.
const (
	DefaultAPIBase = "https://i.instagram.com/api/v1/"
	DefaultWebBase = "https://www.instagram.com/"

	AppID                 = "567067343352427"
	DefaultBloksVersionID = "ce555e5500576acd8e84a66018f54a05720f2dce29f0bb5a1f97f0c10d6fac48"

	capabilitiesToken = "3brTvx0="
)

// UUIDs is the stable identifier set of a synthetic device. All values are
// generated once and persisted verbatim with the session.
type UUIDs struct {
	PhoneID         string `json:"phone_id"`
	UUID            string `json:"uuid"`
	ClientSessionID string `json:"client_session_id"`
	AdvertisingID   string `json:"advertising_id"`
	AndroidDeviceID string `json:"android_device_id"`
	RequestID       string `json:"request_id"`
	TraySessionID   string `json:"tray_session_id"`
}

// AuthorizationData is the decoded bearer session object the server issues
// in the ig-set-authorization response header after login.
type AuthorizationData struct {
	DSUserID                   string `json:"ds_user_id"`
	SessionID                  string `json:"sessionid"`
	ShouldUseHeaderOverCookies bool   `json:"should_use_header_over_cookies"`
}

// Empty reports whether no authorization has been captured yet.
func (a AuthorizationData) Empty() bool {
	return a.DSUserID == "" && a.SessionID == ""
}

// SessionState holds everything that changes over the life of a login.
type SessionState struct {
	Authorization AuthorizationData
	Cookies       map[string]string
	Mid           string
	IgURur        string
	IgWwwClaim    string
	LastLogin     float64
}

// ChallengeChoice selects the contact point for verification codes.
type ChallengeChoice int

const (
	ChoiceSMS   ChallengeChoice = 0
	ChoiceEmail ChallengeChoice = 1
)

func (c ChallengeChoice) String() string {
	if c == ChoiceEmail {
		return "email"
	}
	return "sms"
}

// CodeHandler supplies a 6-digit verification code for the challenge flow,
// or "" when no code is available yet.
type CodeHandler func(username string, choice ChallengeChoice) string

// ExceptionHandler is invoked for every error inside the private retry loop.
// Returning nil tells the engine the error was handled (proxy rotated,
// settings reloaded, ...) and the request should be retried; returning an
// error surfaces it.
type ExceptionHandler func(c *Client, err error) error

// Client is the session & request engine: one synthetic device, one account,
// one strictly sequential stream of requests.
type Client struct {
	mu sync.Mutex

	// Credentials live in memory only and are never serialized.
	Username    string
	Password    string
	Email       string
	PhoneNumber string

	Device    DeviceSettings
	UserAgent string
	IDs       UUIDs

	// Locale must cohere with the proxy's geography.
	Country        string
	CountryCode    int
	Locale         string
	TimezoneOffset int

	session        SessionState
	bloksVersionID string
	csrfToken      string
	reloginAttempt int

	// Tunables. RequestTimeout is the mandatory pre-request sleep; the
	// retry caps mirror the server-tolerated pacing.
	RequestTimeout time.Duration
	RetriesCount   int
	RetriesTimeout time.Duration

	// timeoutRetryWait is the cool-down after an HTTP 408 before the single
	// extra attempt; challengeWait paces the verification-code polling.
	// Both are shortened in tests.
	timeoutRetryWait time.Duration
	challengeWait    time.Duration
	publicWait       time.Duration

	APIBase string
	WebBase string

	private *http.Client
	public  *http.Client

	proxyURL string

	ChallengeCodeHandler CodeHandler
	HandleException      ExceptionHandler

	// Last observed response/body, in the same spirit as the sequential
	// model: valid until the next request starts.
	LastResponse *http.Response
	LastJSON     map[string]any

	privateRequestsCount int
	totalResponseBytes   int64

	log zerolog.Logger
}

// New creates a client with a generated device identity and default locale.
func New() *Client {
	jar, _ := cookiejar.New(nil)
	publicJar, _ := cookiejar.New(nil)

	c := &Client{
		Device:         GenerateDevice(),
		Country:        "US",
		CountryCode:    1,
		Locale:         "en_US",
		TimezoneOffset: -14400,
		bloksVersionID: DefaultBloksVersionID,
		RequestTimeout: time.Second,
		RetriesCount:   10,
		RetriesTimeout: 2 * time.Second,

		timeoutRetryWait: 60 * time.Second,

		APIBase: DefaultAPIBase,
		WebBase: DefaultWebBase,

		private: &http.Client{Jar: jar, Timeout: 30 * time.Second},
		public:  &http.Client{Jar: publicJar, Timeout: 30 * time.Second},

		log: zerolog.New(io.Discard),
	}
	c.session.Cookies = make(map[string]string)
	c.initUUIDs()
	c.UserAgent = BuildUserAgent(c.Device, c.Locale)
	c.ChallengeCodeHandler = ManualCodeInput
	return c
}

// NewWithCredentials creates a client bound to a username and password.
func NewWithCredentials(username, password string) *Client {
	c := New()
	c.Username = username
	c.Password = password
	return c
}

// SetLogger installs a structured logger. The default discards everything.
func (c *Client) SetLogger(log zerolog.Logger) {
	c.log = log
}

// SetBloksVersionID overrides the server-blessed content hash.
func (c *Client) SetBloksVersionID(id string) {
	c.bloksVersionID = id
}

// BloksVersionID returns the hash echoed in every private request.
func (c *Client) BloksVersionID() string {
	return c.bloksVersionID
}

func (c *Client) initUUIDs() {
	c.IDs = UUIDs{
		PhoneID:         uuid.New().String(),
		UUID:            uuid.New().String(),
		ClientSessionID: uuid.New().String(),
		AdvertisingID:   uuid.New().String(),
		AndroidDeviceID: GenerateAndroidDeviceID(),
		RequestID:       uuid.New().String(),
		TraySessionID:   uuid.New().String(),
	}
}

// SetDevice installs an explicit device profile and rebuilds the user agent.
func (c *Client) SetDevice(d DeviceSettings) {
	c.Device = d
	c.UserAgent = BuildUserAgent(d, c.Locale)
}

// SetUserAgent overrides the derived user agent string.
func (c *Client) SetUserAgent(ua string) {
	if ua == "" {
		ua = BuildUserAgent(c.Device, c.Locale)
	}
	c.UserAgent = ua
}

// SetCountry sets the ISO 3166 country. Advise matching the proxy exit.
func (c *Client) SetCountry(country string) {
	c.Country = strings.ToUpper(country)
}

// SetLocale sets the IETF locale and, when it carries a region, the country.
func (c *Client) SetLocale(locale string) {
	old := c.Locale
	c.Locale = locale
	if old != "" && c.UserAgent != "" {
		c.UserAgent = strings.Replace(c.UserAgent, old, locale, 1)
	} else {
		c.UserAgent = BuildUserAgent(c.Device, locale)
	}
	if i := strings.LastIndex(locale, "_"); i >= 0 {
		c.SetCountry(locale[i+1:])
	}
}

// SetTimezoneOffset sets the offset from UTC in seconds.
func (c *Client) SetTimezoneOffset(seconds int) {
	c.TimezoneOffset = seconds
}

// SetProxy installs an HTTP(S) proxy URL on both the private and public
// clients. An empty string removes the proxy.
func (c *Client) SetProxy(proxyURL string) error {
	if proxyURL == "" {
		c.proxyURL = ""
		c.private.Transport = nil
		c.public.Transport = nil
		return nil
	}
	if !strings.Contains(proxyURL, "://") {
		proxyURL = "http://" + proxyURL
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("parse proxy url: %w", err)
	}
	c.proxyURL = proxyURL
	transport := &http.Transport{Proxy: http.ProxyURL(u)}
	c.private.Transport = transport
	c.public.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	return nil
}

// Proxy returns the currently installed proxy URL, if any.
func (c *Client) Proxy() string {
	return c.proxyURL
}

// UserID returns the numeric account id from cookies or authorization data.
func (c *Client) UserID() int64 {
	if v, ok := c.session.Cookies["ds_user_id"]; ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id
		}
	}
	if c.session.Authorization.DSUserID != "" {
		if id, err := strconv.ParseInt(c.session.Authorization.DSUserID, 10, 64); err == nil {
			return id
		}
	}
	return 0
}

// SessionID returns the long-lived credential, from cookies or authorization.
func (c *Client) SessionID() string {
	if sid, ok := c.session.Cookies["sessionid"]; ok && sid != "" {
		return sid
	}
	return c.session.Authorization.SessionID
}

// IsLoggedIn reports whether a session credential is present.
func (c *Client) IsLoggedIn() bool {
	return c.UserID() != 0 && c.SessionID() != ""
}

// RankToken is the per-session pagination token "{user_id}_{uuid}".
func (c *Client) RankToken() string {
	return fmt.Sprintf("%d_%s", c.UserID(), c.IDs.UUID)
}

// CSRFToken returns the token from cookies, synthesizing and caching a
// 64-char random one when the jar has none.
func (c *Client) CSRFToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.csrfToken != "" {
		return c.csrfToken
	}
	if tok, ok := c.session.Cookies["csrftoken"]; ok && tok != "" {
		c.csrfToken = tok
		return tok
	}
	c.csrfToken = genToken(64)
	return c.csrfToken
}

// Mid returns the machine-id cookie value captured from the server.
func (c *Client) Mid() string {
	return c.session.Mid
}

// Authorization builds the bearer header from the captured session object,
// or "" before login.
func (c *Client) Authorization() string {
	if c.session.Authorization.Empty() {
		return ""
	}
	payload, err := json.Marshal(c.session.Authorization)
	if err != nil {
		return ""
	}
	return "Bearer IGT:2:" + base64.StdEncoding.EncodeToString(payload)
}

// ParseAuthorization decodes an ig-set-authorization header value.
func ParseAuthorization(header string) (AuthorizationData, error) {
	var auth AuthorizationData
	if header == "" {
		return auth, fmt.Errorf("empty authorization header")
	}
	b64 := header[strings.LastIndex(header, ":")+1:]
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return auth, fmt.Errorf("decode authorization header: %w", err)
	}
	if err := json.Unmarshal(raw, &auth); err != nil {
		return auth, fmt.Errorf("unmarshal authorization header: %w", err)
	}
	return auth, nil
}

// PrivateRequestsCount returns how many private requests this client sent.
func (c *Client) PrivateRequestsCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.privateRequestsCount
}

// TotalResponseBytes returns the cumulative private response body size.
func (c *Client) TotalResponseBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalResponseBytes
}

// SmallDelay sleeps 0.75–3.75 s, the pacing used between user-like actions.
func (c *Client) SmallDelay() {
	time.Sleep(time.Duration((0.75 + mrand.Float64()*3) * float64(time.Second)))
}

// VerySmallDelay sleeps 0.175–0.875 s.
func (c *Client) VerySmallDelay() {
	time.Sleep(time.Duration((0.175 + mrand.Float64()*0.7) * float64(time.Second)))
}

func genToken(length int) string {
	b := make([]byte, (length+1)/2)
	rand.Read(b)
	return hex.EncodeToString(b)[:length]
}

func (c *Client) updateCookies(cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range cookies {
		c.session.Cookies[ck.Name] = ck.Value
		switch ck.Name {
		case "csrftoken":
			c.csrfToken = ck.Value
		case "mid":
			c.session.Mid = ck.Value
		}
	}
}

func (c *Client) absorbResponseHeaders(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mid := h.Get("ig-set-x-mid"); mid != "" {
		c.session.Mid = mid
	}
	if auth := h.Get("ig-set-authorization"); auth != "" && !strings.HasSuffix(auth, ":") {
		if parsed, err := ParseAuthorization(auth); err == nil {
			c.session.Authorization = parsed
		}
	}
	if rur := h.Get("ig-set-ig-u-rur"); rur != "" {
		c.session.IgURur = rur
	}
	if claim := h.Get("x-ig-set-www-claim"); claim != "" {
		c.session.IgWwwClaim = claim
	}
}

// restoreCookies pushes the persisted cookie map into both HTTP jars.
func (c *Client) restoreCookies() {
	cookies := make([]*http.Cookie, 0, len(c.session.Cookies))
	for name, value := range c.session.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  value,
			Domain: ".instagram.com",
			Path:   "/",
		})
	}
	for _, base := range []string{c.APIBase, c.WebBase} {
		if u, err := url.Parse(base); err == nil {
			c.private.Jar.SetCookies(u, cookies)
			c.public.Jar.SetCookies(u, cookies)
		}
	}
}
