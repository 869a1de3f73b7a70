package client

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// loginOutcome tags the result of the login POST so the coordinator can
// branch without sniffing error strings.
type loginOutcomeKind int

const (
	outcomeSuccess loginOutcomeKind = iota
	outcomeTwoFactor
	outcomeBadCredential
	outcomeFailed
)

type loginOutcome struct {
	kind                loginOutcomeKind
	twoFactorIdentifier string
	err                 error
}

// Login authenticates with the stored username and password. Pre-login
// warm-up failures caused by throttling are tolerated, the password is
// encrypted with the server's current key, and on success the bearer
// authorization is captured and the post-login feed warm-up runs.
// A pending two-factor step surfaces as *TwoFactorRequired; complete it
// with TwoFactorLogin.
func (c *Client) Login() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("username and password required")
	}
	if c.IsLoggedIn() {
		return nil
	}

	c.PreLoginFlow()

	outcome := c.loginPost()
	switch outcome.kind {
	case outcomeSuccess:
		c.session.LastLogin = float64(time.Now().Unix())
		c.PostLoginFlow()
		c.log.Info().Str("username", c.Username).Int64("user_id", c.UserID()).Msg("logged in")
		return nil
	case outcomeTwoFactor:
		return outcome.err
	default:
		return outcome.err
	}
}

// loginPost sends the encrypted-credential POST and tags the result.
func (c *Client) loginPost() loginOutcome {
	encPassword, err := c.PasswordEncrypt(c.Password)
	if err != nil {
		return loginOutcome{kind: outcomeFailed, err: err}
	}
	data := map[string]any{
		"jazoest":             GenerateJazoest(c.IDs.PhoneID),
		"country_codes":       fmt.Sprintf(`[{"country_code":"%d","source":["default"]}]`, c.CountryCode),
		"phone_id":            c.IDs.PhoneID,
		"enc_password":        encPassword,
		"username":            c.Username,
		"adid":                c.IDs.AdvertisingID,
		"guid":                c.IDs.UUID,
		"device_id":           c.IDs.AndroidDeviceID,
		"google_tokens":       "[]",
		"login_attempt_count": "0",
	}
	_, err = c.PrivateRequest("accounts/login/", WithData(data), AsLogin())
	if err == nil {
		return loginOutcome{kind: outcomeSuccess}
	}
	switch e := err.(type) {
	case *TwoFactorRequired:
		id := twoFactorIdentifier(e.LastJSON)
		return loginOutcome{kind: outcomeTwoFactor, twoFactorIdentifier: id, err: err}
	case *BadPassword:
		return loginOutcome{kind: outcomeBadCredential, err: err}
	default:
		return loginOutcome{kind: outcomeFailed, err: err}
	}
}

func twoFactorIdentifier(lastJSON map[string]any) string {
	info, _ := lastJSON["two_factor_info"].(map[string]any)
	id, _ := info["two_factor_identifier"].(string)
	return id
}

// TwoFactorLogin completes a pending two-factor challenge with a code from
// an authenticator app or SMS.
func (c *Client) TwoFactorLogin(code string) error {
	identifier := twoFactorIdentifier(c.LastJSON)
	if identifier == "" {
		return fmt.Errorf("no pending two-factor login")
	}
	data := map[string]any{
		"verification_code":     strings.ReplaceAll(code, " ", ""),
		"phone_id":              c.IDs.PhoneID,
		"_csrftoken":            c.CSRFToken(),
		"two_factor_identifier": identifier,
		"username":              c.Username,
		"trust_this_device":     "0",
		"guid":                  c.IDs.UUID,
		"device_id":             c.IDs.AndroidDeviceID,
		"waterfall_id":          uuid.New().String(),
		"verification_method":   "3",
	}
	if _, err := c.PrivateRequest("accounts/two_factor_login/", WithData(data), AsLogin()); err != nil {
		return err
	}
	c.session.LastLogin = float64(time.Now().Unix())
	c.PostLoginFlow()
	c.log.Info().Str("username", c.Username).Int64("user_id", c.UserID()).Msg("logged in via two-factor")
	return nil
}

// Relogin drops the current session and logs in again. The attempt count is
// capped so bad credentials cannot loop forever.
func (c *Client) Relogin() error {
	c.mu.Lock()
	c.reloginAttempt++
	attempt := c.reloginAttempt
	c.mu.Unlock()
	if attempt > 2 {
		return &ReloginAttemptExceeded{baseErr(
			fmt.Sprintf("relogin attempt exceeded (%d)", attempt), "", 0, nil, nil)}
	}
	c.clearSession()
	return c.Login()
}

func (c *Client) clearSession() {
	c.mu.Lock()
	c.session.Authorization = AuthorizationData{}
	c.session.Cookies = make(map[string]string)
	c.csrfToken = ""
	c.mu.Unlock()
	c.restoreCookies()
}

// LoginBySessionID adopts an existing long-lived session credential. The
// numeric user id is the leading digits of the sessionid. The session is
// validated with a private profile fetch, falling back to the web surface.
func (c *Client) LoginBySessionID(sessionID string) error {
	digits := sessionID
	for i, r := range sessionID {
		if r < '0' || r > '9' {
			digits = sessionID[:i]
			break
		}
	}
	if digits == "" {
		return fmt.Errorf("sessionid %q does not start with a user id", sessionID)
	}
	if _, err := strconv.ParseInt(digits, 10, 64); err != nil {
		return fmt.Errorf("sessionid %q does not start with a user id", sessionID)
	}

	c.mu.Lock()
	c.session.Authorization = AuthorizationData{
		DSUserID:                   digits,
		SessionID:                  sessionID,
		ShouldUseHeaderOverCookies: true,
	}
	c.session.Cookies["sessionid"] = sessionID
	c.session.Cookies["ds_user_id"] = digits
	c.mu.Unlock()
	c.restoreCookies()

	endpoint := fmt.Sprintf("users/%s/info/", digits)
	if _, err := c.PrivateRequest(endpoint); err != nil {
		c.log.Debug().Err(err).Msg("private session probe failed, trying web surface")
		if _, perr := c.PublicRequestJSON("api/v1/" + endpoint); perr != nil {
			return fmt.Errorf("validate sessionid: %w", err)
		}
	}
	c.session.LastLogin = float64(time.Now().Unix())
	return nil
}

// OneTapAppLogin logs in with a one-tap nonce previously issued for a user.
func (c *Client) OneTapAppLogin(userID int64, nonce string) error {
	data := map[string]any{
		"phone_id":    c.IDs.PhoneID,
		"user_id":     strconv.FormatInt(userID, 10),
		"adid":        c.IDs.AdvertisingID,
		"guid":        c.IDs.UUID,
		"device_id":   c.IDs.AndroidDeviceID,
		"login_nonce": nonce,
	}
	if _, err := c.PrivateRequest("accounts/one_tap_app_login/", WithData(data), AsLogin()); err != nil {
		return err
	}
	c.session.LastLogin = float64(time.Now().Unix())
	return nil
}

// Logout ends the session server-side and clears local state.
func (c *Client) Logout() error {
	data := map[string]any{
		"guid":              c.IDs.UUID,
		"phone_id":          c.IDs.PhoneID,
		"_csrftoken":        c.CSRFToken(),
		"device_id":         c.IDs.AndroidDeviceID,
		"one_tap_app_login": "true",
	}
	_, err := c.PrivateRequest("accounts/logout/", WithData(data), Unsigned())
	c.clearSession()
	return err
}

// PreLoginFlow performs the warm-up calls the app makes before showing the
// login form. Throttling here is not fatal: the login POST itself decides.
func (c *Client) PreLoginFlow() {
	if err := c.contactPointPrefill(); err != nil {
		if IsThrottle(err) {
			c.log.Debug().Err(err).Msg("contact point prefill throttled")
		} else {
			c.log.Debug().Err(err).Msg("contact point prefill failed")
		}
	}
	if err := c.syncLauncher(true); err != nil {
		if IsThrottle(err) {
			c.log.Debug().Err(err).Msg("launcher sync throttled")
		} else {
			c.log.Debug().Err(err).Msg("launcher sync failed")
		}
	}
}

func (c *Client) contactPointPrefill() error {
	data := map[string]any{
		"phone_id": c.IDs.PhoneID,
		"usage":    "prefill",
	}
	_, err := c.PrivateRequest("accounts/contact_point_prefill/", WithData(data), AsLogin())
	return err
}

func (c *Client) syncLauncher(login bool) error {
	data := map[string]any{
		"id":                       c.IDs.UUID,
		"server_config_retrieval": "1",
	}
	opts := []RequestOption{WithData(data)}
	if login {
		opts = append(opts, AsLogin())
	} else {
		data["_uid"] = strconv.FormatInt(c.UserID(), 10)
		data["_uuid"] = c.IDs.UUID
	}
	_, err := c.PrivateRequest("launcher/sync/", opts...)
	return err
}

// PostLoginFlow performs the cold-start feed fetches the app fires right
// after authenticating. Failures are logged, not fatal.
func (c *Client) PostLoginFlow() {
	if err := c.reelsTrayFeed("cold_start"); err != nil {
		c.log.Debug().Err(err).Msg("reels tray warm-up failed")
	}
	if err := c.timelineFeed("cold_start_fetch"); err != nil {
		c.log.Debug().Err(err).Msg("timeline warm-up failed")
	}
}

func (c *Client) reelsTrayFeed(reason string) error {
	data := map[string]any{
		"reason":          reason,
		"timezone_offset": strconv.Itoa(c.TimezoneOffset),
		"tray_session_id": c.IDs.TraySessionID,
		"request_id":      c.IDs.RequestID,
		"_uuid":           c.IDs.UUID,
	}
	_, err := c.PrivateRequest("feed/reels_tray/", WithData(data))
	return err
}

func (c *Client) timelineFeed(reason string) error {
	headers := map[string]string{
		"X-Ads-Opt-Out":  "0",
		"X-DEVICE-ID":    c.IDs.UUID,
		"X-CM-Bandwidth-KBPS": "-1.000",
		"X-CM-Latency":   "-1.000",
	}
	data := map[string]any{
		"has_camera_permission":  "1",
		"feed_view_info":         "[]",
		"phone_id":               c.IDs.PhoneID,
		"reason":                 reason,
		"battery_level":          strconv.Itoa(randBetween(25, 100)),
		"timezone_offset":        strconv.Itoa(c.TimezoneOffset),
		"_uuid":                  c.IDs.UUID,
		"is_charging":            "0",
		"is_dark_mode":           "1",
		"will_sound_on":          "0",
		"session_id":             c.IDs.ClientSessionID,
		"bloks_versioning_id":    c.bloksVersionID,
	}
	_, err := c.PrivateRequest("feed/timeline/", WithData(data), WithHeaders(headers))
	return err
}
