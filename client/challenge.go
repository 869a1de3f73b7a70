package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Code polling: how long the app waits for a code to arrive and how many
// wrong-code resubmissions it tolerates.
const (
	challengeCodePollTries   = 24
	challengeCodeSubmitTries = 5
)

// ManualCodeInput is the default ChallengeCodeHandler: it prompts on stdin.
func ManualCodeInput(username string, choice ChallengeChoice) string {
	fmt.Printf("Enter the code sent to %s via %s: ", username, choice)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// ChallengeResolve drives the verification flow the server demanded in
// lastJSON. The in-app state machine handles the common steps; when the
// server insists on the web form variant the browser sub-flow takes over.
func (c *Client) ChallengeResolve(lastJSON map[string]any) error {
	challenge, _ := lastJSON["challenge"].(map[string]any)
	apiPath, _ := challenge["api_path"].(string)
	if apiPath == "" {
		return &ChallengeUnknownStep{baseErr("challenge without api_path", "", 0, nil, lastJSON)}
	}
	if apiPath == "/challenge/" {
		return c.challengeResolveContactForm(apiPath)
	}

	params := url.Values{}
	parts := strings.Split(strings.Trim(apiPath, "/"), "/")
	if len(parts) >= 3 {
		userID, nonce := parts[1], parts[2]
		context, _ := challenge["challenge_context"].(string)
		if context == "" {
			uid, _ := strconv.ParseInt(userID, 10, 64)
			raw, _ := json.Marshal(map[string]any{
				"step_name":    "",
				"nonce_code":   nonce,
				"user_id":      uid,
				"is_stateless": false,
			})
			context = string(raw)
		}
		params.Set("guid", c.IDs.UUID)
		params.Set("device_id", c.IDs.AndroidDeviceID)
		params.Set("challenge_context", context)
	}

	endpoint := strings.TrimPrefix(apiPath, "/")
	if _, err := c.sendChallengeRequest(endpoint, nil, params); err != nil {
		if _, ok := err.(*ChallengeRequired); ok {
			return c.challengeResolveContactForm(apiPath)
		}
		return err
	}
	return c.challengeResolveSimple(endpoint)
}

// sendChallengeRequest is a single private exchange without the outer
// recovery loop: challenge steps interpret their own errors.
func (c *Client) sendChallengeRequest(endpoint string, data map[string]any, params url.Values) (map[string]any, error) {
	o := requestOptions{data: data, params: params, login: true}
	return c.sendPrivateRequest(endpoint, &o)
}

// challengeResolveSimple walks the in-app step machine until the server
// closes the challenge.
func (c *Client) challengeResolveSimple(endpoint string) error {
	stepName, _ := c.LastJSON["step_name"].(string)
	switch stepName {
	case "delta_login_review", "scraping_warning":
		// "It was me."
		_, err := c.sendChallengeRequest(endpoint, map[string]any{"choice": "0"}, nil)
		return err
	case "select_verify_method", "verify_email", "verify_email_code", "verify_sms_code":
		return c.challengeVerifyCode(endpoint, stepName)
	case "":
		return nil
	default:
		return &ChallengeUnknownStep{baseErr(
			fmt.Sprintf("unknown challenge step %q", stepName), "", 0, nil, c.LastJSON)}
	}
}

// challengeVerifyCode selects a contact point when asked, then polls the
// code handler and submits, tolerating a few wrong codes.
func (c *Client) challengeVerifyCode(endpoint, stepName string) error {
	choice := ChoiceEmail
	if stepName == "select_verify_method" {
		stepData, _ := c.LastJSON["step_data"].(map[string]any)
		switch {
		case stepData["email"] != nil:
			choice = ChoiceEmail
		case stepData["phone_number"] != nil:
			choice = ChoiceSMS
		default:
			return &SelectContactPointRecoveryForm{baseErr(
				"no verification method available", "", 0, nil, c.LastJSON)}
		}
		data := map[string]any{"choice": strconv.Itoa(int(choice))}
		if _, err := c.sendChallengeRequest(endpoint, data, nil); err != nil {
			return err
		}
	} else if stepName == "verify_sms_code" {
		choice = ChoiceSMS
	}

	code := c.pollChallengeCode(choice)
	if code == "" {
		return &ChallengeUnknownStep{baseErr("verification code not provided", "", 0, nil, c.LastJSON)}
	}

	var lastErr error
	for try := 0; try < challengeCodeSubmitTries; try++ {
		_, err := c.sendChallengeRequest(endpoint, map[string]any{"security_code": code}, nil)
		if err == nil {
			return nil
		}
		lastErr = err
		if _, ok := err.(*ChallengeRequired); !ok {
			return err
		}
		// "Please check the code we sent you and try again."
		code = c.ChallengeCodeHandler(c.Username, choice)
		if !validChallengeCode(code) {
			break
		}
	}
	return lastErr
}

func (c *Client) pollChallengeCode(choice ChallengeChoice) string {
	for try := 0; try < challengeCodePollTries; try++ {
		if code := c.ChallengeCodeHandler(c.Username, choice); validChallengeCode(code) {
			return code
		}
		time.Sleep(c.challengePollWait())
	}
	return ""
}

// validChallengeCode screens handler input: the server only issues 6-digit
// numeric codes, so anything else never leaves the process.
func validChallengeCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Client) challengePollWait() time.Duration {
	if c.challengeWait > 0 {
		return c.challengeWait
	}
	return 5 * time.Second
}

// challengeResolveContactForm drives the web form variant on a dedicated
// browser-headed exchange seeded with the session's mid and csrftoken.
func (c *Client) challengeResolveContactForm(apiPath string) error {
	pageURL := c.WebBase + strings.TrimPrefix(apiPath, "/")

	result, err := c.challengeWebGet(pageURL)
	if err != nil {
		return err
	}
	var triedEmail, triedSMS bool
	for step := 0; step < 10; step++ {
		if t, _ := result["type"].(string); t == "CHALLENGE_REDIRECTION" {
			return nil
		}
		challengeType, _ := result["challengeType"].(string)
		switch challengeType {
		case "SelectContactPointRecoveryForm":
			result, err = c.challengeSelectContactPoint(pageURL, result, &triedEmail, &triedSMS)
		case "VerifyEmailCodeForm":
			result, err = c.challengeWebSubmitCode(pageURL, ChoiceEmail)
		case "VerifySMSCodeForm", "VerifySMSCodeFormForSMSCaptcha":
			result, err = c.challengeWebSubmitCode(pageURL, ChoiceSMS)
		case "ReviewContactPointChangeForm":
			result, err = c.challengeReviewContactPoint(pageURL, result)
		case "SubmitPhoneNumberForm":
			result, err = c.challengeSubmitPhoneNumber(pageURL, result)
		case "RecaptchaChallengeForm":
			return &RecaptchaChallengeForm{baseErr(
				"challenge requires solving a captcha in a browser", "", 0, nil, result)}
		case "LegacyForceSetNewPasswordForm":
			return &LegacyForceSetNewPasswordForm{baseErr(
				"challenge requires setting a new password", "", 0, nil, result)}
		case "":
			if c.webChallengeClosed(result) {
				return nil
			}
			return &ChallengeUnknownStep{baseErr("challenge form without type", "", 0, nil, result)}
		default:
			return &ChallengeUnknownStep{baseErr(
				fmt.Sprintf("unknown challenge form %q", challengeType), "", 0, nil, result)}
		}
		if err != nil {
			return err
		}
	}
	return &ChallengeUnknownStep{baseErr("challenge form did not converge", "", 0, nil, result)}
}

func (c *Client) webChallengeClosed(result map[string]any) bool {
	action, _ := result["action"].(string)
	status, _ := result["status"].(string)
	return action == "close" && status == "ok"
}

// challengeSelectContactPoint picks email when offered, falling back to sms
// when the email path bounces back to the same form. Both exhausted is fatal.
func (c *Client) challengeSelectContactPoint(pageURL string, form map[string]any, triedEmail, triedSMS *bool) (map[string]any, error) {
	fields := challengeFormFields(form)
	if !*triedEmail && fields["email"] != nil {
		*triedEmail = true
		return c.challengeWebPost(pageURL, url.Values{"choice": {strconv.Itoa(int(ChoiceEmail))}})
	}
	if !*triedSMS && (fields["phone_number"] != nil || *triedEmail) {
		*triedSMS = true
		return c.challengeWebPost(pageURL, url.Values{"choice": {strconv.Itoa(int(ChoiceSMS))}})
	}
	return nil, &SelectContactPointRecoveryForm{baseErr(
		"no contact point left to try for recovery", "", 0, nil, form)}
}

// challengeSubmitPhoneNumber confirms the server-prefilled number. Without a
// prefilled number there is nothing safe to post and the step is fatal.
func (c *Client) challengeSubmitPhoneNumber(pageURL string, form map[string]any) (map[string]any, error) {
	fields := challengeFormFields(form)
	phone, _ := fields["phone_number"].(string)
	if phone == "" {
		return nil, &SubmitPhoneNumberForm{baseErr(
			"challenge requires submitting a phone number", "", 0, nil, form)}
	}
	values := url.Values{"phone_number": {phone}}
	if context, _ := form["challenge_context"].(string); context != "" {
		values.Set("challenge_context", context)
	}
	return c.challengeWebPost(pageURL, values)
}

// challengeReviewContactPoint confirms the account's contact data, agreeing
// to keep the current password. Every known identifier must appear in the
// server's list; confirming a hijacked contact point is worse than failing.
func (c *Client) challengeReviewContactPoint(pageURL string, form map[string]any) (map[string]any, error) {
	if details := challengeContactDetails(form); len(details) > 0 {
		known := []string{c.Username, c.Email, normalizePhone(c.PhoneNumber)}
		for _, detail := range known {
			if detail != "" && !slices.Contains(details, detail) {
				return nil, &ChallengeUnknownStep{baseErr(
					fmt.Sprintf("account data %q not in challenge contact list", detail), "", 0, nil, form)}
			}
		}
	}
	enc, err := c.PasswordEncrypt(c.Password)
	if err != nil {
		return nil, err
	}
	return c.challengeWebPost(pageURL, url.Values{
		"choice":            {"0"},
		"enc_new_password1": {enc},
		"new_password1":     {""},
		"enc_new_password2": {enc},
		"new_password2":     {""},
	})
}

// challengeContactDetails flattens the labeled entries the review form shows:
// usernames and masked emails verbatim, phone numbers without separators.
func challengeContactDetails(form map[string]any) []string {
	extra, _ := form["extraData"].(map[string]any)
	content, _ := extra["content"].([]any)
	var details []string
	for _, block := range content {
		entry, _ := block.(map[string]any)
		rows, _ := entry["labeled_list_entries"].([]any)
		for _, raw := range rows {
			row, _ := raw.(map[string]any)
			text, _ := row["list_item_text"].(string)
			if text == "" {
				continue
			}
			if !strings.Contains(text, "@") {
				text = normalizePhone(text)
			}
			details = append(details, text)
		}
	}
	return details
}

func normalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

func challengeFormFields(form map[string]any) map[string]any {
	if extra, ok := form["extraData"].(map[string]any); ok {
		if content, ok := extra["content"].(map[string]any); ok {
			return content
		}
	}
	if fields, ok := form["fields"].(map[string]any); ok {
		return fields
	}
	return map[string]any{}
}

func (c *Client) challengeWebSubmitCode(pageURL string, choice ChallengeChoice) (map[string]any, error) {
	code := c.pollChallengeCode(choice)
	if code == "" {
		return nil, &ChallengeUnknownStep{baseErr("verification code not provided", "", 0, nil, nil)}
	}
	var result map[string]any
	var err error
	for try := 0; try < challengeCodeSubmitTries; try++ {
		result, err = c.challengeWebPost(pageURL, url.Values{"security_code": {code}})
		if err != nil {
			return nil, err
		}
		if errMsg, _ := result["errors"].(string); errMsg == "" {
			if flat, _ := result["challengeType"].(string); flat != "VerifyEmailCodeForm" && flat != "VerifySMSCodeForm" {
				return result, nil
			}
		}
		// Wrong code, ask again.
		code = c.ChallengeCodeHandler(c.Username, choice)
		if !validChallengeCode(code) {
			break
		}
	}
	return result, nil
}

func (c *Client) challengeWebGet(pageURL string) (map[string]any, error) {
	req, err := http.NewRequest(http.MethodGet, pageURL+"?__a=1&__d=dis", nil)
	if err != nil {
		return nil, fmt.Errorf("build challenge request: %w", err)
	}
	c.applyChallengeWebHeaders(req, pageURL)
	return c.doChallengeWeb(req)
}

func (c *Client) challengeWebPost(pageURL string, form url.Values) (map[string]any, error) {
	req, err := http.NewRequest(http.MethodPost, pageURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build challenge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.applyChallengeWebHeaders(req, pageURL)
	return c.doChallengeWeb(req)
}

func (c *Client) applyChallengeWebHeaders(req *http.Request, referer string) {
	for k, v := range c.publicHeaders() {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", publicUserAgent)
	req.Header.Set("X-CSRFToken", c.CSRFToken())
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", referer)
	if c.session.Mid != "" {
		req.AddCookie(&http.Cookie{Name: "mid", Value: c.session.Mid})
	}
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: c.CSRFToken()})
}

func (c *Client) doChallengeWeb(req *http.Request) (map[string]any, error) {
	resp, err := c.public.Do(req)
	if err != nil {
		return nil, &ClientConnectionError{baseErr(
			fmt.Sprintf("%T: %s", err, err.Error()), "", 0, nil, nil)}
	}
	defer resp.Body.Close()
	body, err := readBody(resp)
	c.updateCookies(resp.Cookies())
	if err != nil {
		return nil, &ClientIncompleteReadError{baseErr(
			fmt.Sprintf("incomplete read: %s", err), "", resp.StatusCode, resp, nil)}
	}
	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ClientJSONDecodeError{baseErr(
			fmt.Sprintf("JSONDecodeError in challenge form: %s", err), "", resp.StatusCode, resp, nil)}
	}
	return result, nil
}
