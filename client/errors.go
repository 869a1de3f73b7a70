package client

import (
	"fmt"
	"net/http"
)

// ClientError is the base error for every failure the engine reports. It
// carries the server's decoded body and the raw response so handler hooks
// can reclassify without re-fetching.
type ClientError struct {
	Message   string
	ErrorType string
	Code      int
	Response  *http.Response
	LastJSON  map[string]any
}

func (e *ClientError) Error() string {
	if e.Message != "" {
		if e.ErrorType != "" {
			return fmt.Sprintf("%s (error_type=%s, code=%d)", e.Message, e.ErrorType, e.Code)
		}
		if e.Code != 0 {
			return fmt.Sprintf("%s (code=%d)", e.Message, e.Code)
		}
		return e.Message
	}
	return fmt.Sprintf("client error (error_type=%s, code=%d)", e.ErrorType, e.Code)
}

// Transport transients.
type (
	// ClientConnectionError wraps network-level failures.
	ClientConnectionError struct{ ClientError }
	// ClientIncompleteReadError is raised when fewer bytes arrive than
	// Content-Length promised.
	ClientIncompleteReadError struct{ ClientError }
	// ClientRequestTimeout corresponds to HTTP 408.
	ClientRequestTimeout struct{ ClientError }
	// ClientJSONDecodeError is raised when a response body is not JSON.
	ClientJSONDecodeError struct{ ClientError }
)

// Plain HTTP classes.
type (
	ClientBadRequestError struct{ ClientError } // 400 with no richer signal
	ClientForbiddenError  struct{ ClientError } // 403 with no richer signal
	ClientNotFoundError   struct{ ClientError } // 404
	ClientThrottledError  struct{ ClientError } // 429
	UnknownError          struct{ ClientError }
)

// Rate / throttle family.
type (
	PleaseWaitFewMinutes struct{ ClientError }
	RateLimitError       struct{ ClientError }
	SentryBlock          struct{ ClientError }
)

// Session invalidation.
type (
	// LoginRequired means the private session is dead and a relogin is needed.
	LoginRequired struct{ ClientError }
	// ClientLoginRequired is the public-web variant: the server answered a
	// web request with a redirect to the login page.
	ClientLoginRequired struct{ ClientError }
	// ReloginAttemptExceeded stops relogin loops when credentials are bad.
	ReloginAttemptExceeded struct{ ClientError }
)

// Credential faults.
type (
	BadPassword       struct{ ClientError }
	TwoFactorRequired struct{ ClientError }
)

// Verification flow.
type (
	ChallengeRequired             struct{ ClientError }
	ChallengeRedirection          struct{ ClientError }
	ChallengeUnknownStep          struct{ ClientError }
	SelectContactPointRecoveryForm struct{ ClientError }
	RecaptchaChallengeForm        struct{ ClientError }
	SubmitPhoneNumberForm         struct{ ClientError }
	LegacyForceSetNewPasswordForm struct{ ClientError }
)

// FeedbackRequired carries the server's user-facing feedback message.
type FeedbackRequired struct {
	ClientError
	FeedbackMessage string
}

// Resource-level failures surfaced by the endpoint handlers.
type (
	UserNotFound         struct{ ClientError }
	MediaNotFound        struct{ ClientError }
	MediaUnavailable     struct{ ClientError }
	PrivateAccount       struct{ ClientError }
	CollectionNotFound   struct{ ClientError }
	HashtagNotFound      struct{ ClientError }
	LocationNotFound     struct{ ClientError }
	DirectThreadNotFound struct{ ClientError }
	TrackNotFound        struct{ ClientError }
	HighlightNotFound    struct{ ClientError }
	InvalidMediaID       struct{ ClientError }
	InvalidTargetUser    struct{ ClientError }
	VideoTooLongException struct{ ClientError }
)

// ProxyAddressIsBlocked means the server rejected the exit IP itself: the
// username-lookup refusal it sends in that state is not a credential fault.
type ProxyAddressIsBlocked struct{ ClientError }

// CryptoKeyUnavailable is raised when the password-encryption public key
// endpoint returns no key headers.
type CryptoKeyUnavailable struct{ ClientError }

func baseErr(msg, errorType string, code int, resp *http.Response, lastJSON map[string]any) ClientError {
	return ClientError{Message: msg, ErrorType: errorType, Code: code, Response: resp, LastJSON: lastJSON}
}

// IsRetryable reports whether err belongs to the transport-transient family
// that the engine retries silently.
func IsRetryable(err error) bool {
	switch err.(type) {
	case *ClientConnectionError, *ClientIncompleteReadError, *ClientRequestTimeout:
		return true
	}
	var ce *ClientError
	if asClientError(err, &ce) {
		return ce.Code >= 500
	}
	return false
}

// IsThrottle reports whether err belongs to the rate/throttle family that
// callers should back off minutes for.
func IsThrottle(err error) bool {
	switch err.(type) {
	case *ClientThrottledError, *PleaseWaitFewMinutes, *RateLimitError, *SentryBlock:
		return true
	}
	return false
}

// asClientError extracts the embedded ClientError from any taxonomy member.
func asClientError(err error, target **ClientError) bool {
	type carrier interface{ base() *ClientError }
	if c, ok := err.(carrier); ok {
		*target = c.base()
		return true
	}
	if ce, ok := err.(*ClientError); ok {
		*target = ce
		return true
	}
	return false
}

func (e *ClientError) base() *ClientError { return e }
