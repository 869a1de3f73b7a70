package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a client at a test server with all pacing removed.
func newTestClient(srv *httptest.Server) *Client {
	c := New()
	c.APIBase = srv.URL + "/"
	c.WebBase = srv.URL + "/"
	c.RequestTimeout = 0
	c.RetriesTimeout = time.Millisecond
	c.timeoutRetryWait = 0
	c.challengeWait = time.Millisecond
	c.publicWait = time.Millisecond
	return c
}

func okJSON(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"status": "ok"}
	for k, v := range extra {
		body[k] = v
	}
	json.NewEncoder(w).Encode(body)
}

func TestSignedBodyFormat(t *testing.T) {
	payload := map[string]any{"username": "alice", "guid": "abc-def"}
	var gotSigned, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotSigned = r.PostFormValue("signed_body")
		gotExtra = r.PostFormValue("d")
		okJSON(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PrivateRequest("accounts/edit/", WithData(payload), WithExtraSig("d=0"))
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(gotSigned, "SIGNATURE."))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(gotSigned, "SIGNATURE.")), &decoded))
	assert.Equal(t, payload, decoded)
	assert.Equal(t, "0", gotExtra)
}

func TestUnsignedBody(t *testing.T) {
	var gotText, gotSigned string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotText = r.PostFormValue("text")
		gotSigned = r.PostFormValue("signed_body")
		okJSON(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PrivateRequest("direct_v2/threads/broadcast/text/",
		WithData(map[string]any{"text": "hello"}), Unsigned())
	require.NoError(t, err)
	assert.Equal(t, "hello", gotText)
	assert.Empty(t, gotSigned)
}

func TestPrivateHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		okJSON(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PrivateRequest("feed/timeline/")
	require.NoError(t, err)

	assert.Equal(t, AppID, got.Get("X-IG-App-ID"))
	assert.Equal(t, "3brTvx0=", got.Get("X-IG-Capabilities"))
	assert.Equal(t, DefaultBloksVersionID, got.Get("X-Bloks-Version-Id"))
	assert.Equal(t, "WIFI", got.Get("X-IG-Connection-Type"))
	assert.Equal(t, "en-US", got.Get("Accept-Language"))
	assert.True(t, strings.HasPrefix(got.Get("User-Agent"), "Instagram "))

	pigeon := got.Get("X-Pigeon-Session-Id")
	assert.True(t, strings.HasPrefix(pigeon, "UFS-"))
	assert.True(t, strings.HasSuffix(pigeon, "-1"))

	assert.NotEmpty(t, got.Get("X-IG-Bandwidth-Speed-KBPS"))
	assert.NotEmpty(t, got.Get("X-IG-Bandwidth-TotalBytes-B"))
	assert.NotEmpty(t, got.Get("X-IG-Bandwidth-TotalTime-MS"))
	assert.Equal(t, c.IDs.AndroidDeviceID, got.Get("X-IG-Android-ID"))
	assert.Equal(t, c.IDs.PhoneID, got.Get("X-IG-Family-Device-ID"))
}

func TestPigeonSessionIDFreshPerRequest(t *testing.T) {
	var ids []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Pigeon-Session-Id"))
		okJSON(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	for i := 0; i < 3; i++ {
		_, err := c.PrivateRequest("feed/timeline/")
		require.NoError(t, err)
	}
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"challenge", 400, `{"message":"challenge_required","status":"fail"}`, &ChallengeRequired{}},
		{"checkpoint challenge", 400, `{"message":"checkpoint_challenge_required","status":"fail"}`, &ChallengeRequired{}},
		{"feedback", 400, `{"message":"feedback_required","feedback_message":"slow down","status":"fail"}`, &FeedbackRequired{}},
		{"bad password", 400, `{"message":"Incorrect password.","error_type":"bad_password","status":"fail"}`, &BadPassword{}},
		{"two factor", 400, `{"message":"two_factor_required","error_type":"two_factor_required","status":"fail"}`, &TwoFactorRequired{}},
		{"rate limit", 400, `{"message":"rate limited","error_type":"rate_limit_error","status":"fail"}`, &RateLimitError{}},
		{"sentry block", 400, `{"message":"blocked","error_type":"sentry_block","status":"fail"}`, &SentryBlock{}},
		{"please wait", 400, `{"message":"Please wait a few minutes before you try again.","status":"fail"}`, &PleaseWaitFewMinutes{}},
		{"media unavailable", 400, `{"message":"Media is unavailable","status":"fail"}`, &MediaUnavailable{}},
		{"media deleted", 400, `{"message":"Sorry, this media has been deleted","status":"fail"}`, &MediaUnavailable{}},
		{"private account", 400, `{"message":"Not authorized to view user","status":"fail"}`, &PrivateAccount{}},
		{"proxy blocked", 400, `{"message":"The username you entered doesn't appear to belong to an account. Please check your username and try again.","status":"fail"}`, &ProxyAddressIsBlocked{}},
		{"generic 400", 400, `{"message":"something else","status":"fail"}`, &ClientBadRequestError{}},
		{"login required", 403, `{"message":"login_required","status":"fail"}`, &LoginRequired{}},
		{"generic 403", 403, `{"message":"forbidden","status":"fail"}`, &ClientForbiddenError{}},
		{"not found", 404, `{"message":"not found","status":"fail"}`, &ClientNotFoundError{}},
		{"timeout", 408, `{"status":"fail"}`, &ClientRequestTimeout{}},
		{"throttled", 429, `{"message":"too many requests","status":"fail"}`, &ClientThrottledError{}},
		{"server error", 500, `{"status":"fail"}`, &UnknownError{}},
		{"status fail", 200, `{"message":"broken","status":"fail"}`, &ClientError{}},
		{"error title", 200, `{"error_title":"oops","status":"ok"}`, &ClientError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := newTestClient(srv)
			_, err := c.sendPrivateRequest("some/endpoint/", &requestOptions{login: true})
			require.Error(t, err)
			assert.Equal(t, reflect.TypeOf(tt.want), reflect.TypeOf(err))
		})
	}
}

func TestFeedbackMessageCaptured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		fmt.Fprint(w, `{"message":"feedback_required","feedback_message":"This action was blocked.","status":"fail"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.sendPrivateRequest("media/1/like/", &requestOptions{login: true})
	var fb *FeedbackRequired
	require.ErrorAs(t, err, &fb)
	assert.Equal(t, "This action was blocked.", fb.FeedbackMessage)
}

func TestTimeoutRetriedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusRequestTimeout)
			fmt.Fprint(w, `{"status":"fail"}`)
			return
		}
		okJSON(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	result, err := c.PrivateRequest("feed/timeline/")
	require.NoError(t, err)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, int32(2), hits.Load())
}

func TestTimeoutGivesUpAfterSecondFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusRequestTimeout)
		fmt.Fprint(w, `{"status":"fail"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PrivateRequest("feed/timeline/")
	var timeout *ClientRequestTimeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, int32(2), hits.Load())
}

func TestThrottledSurfacesWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"too many","status":"fail"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.PrivateRequest("feed/timeline/")
	var throttled *ClientThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.True(t, IsThrottle(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestTransientRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"status":"fail"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.RetriesCount = 2
	_, err := c.PrivateRequest("feed/timeline/")
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestExceptionHandlerDrivesRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(400)
			fmt.Fprint(w, `{"message":"something","status":"fail"}`)
			return
		}
		okJSON(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	var handled atomic.Int32
	c.HandleException = func(c *Client, err error) error {
		handled.Add(1)
		return nil
	}
	_, err := c.PrivateRequest("feed/timeline/")
	require.NoError(t, err)
	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, int32(2), hits.Load())
}

func TestExceptionHandlerCanReplaceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		fmt.Fprint(w, `{"message":"something","status":"fail"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	sentinel := fmt.Errorf("rotate the proxy first")
	c.HandleException = func(c *Client, err error) error { return sentinel }
	_, err := c.PrivateRequest("feed/timeline/")
	assert.Equal(t, sentinel, err)
}

func TestChallengeResolvedThenReissued(t *testing.T) {
	var endpointHits, challengeGets, challengePosts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/some/endpoint/", func(w http.ResponseWriter, r *http.Request) {
		if endpointHits.Add(1) == 1 {
			w.WriteHeader(400)
			fmt.Fprint(w, `{"message":"challenge_required","status":"fail",
				"challenge":{"api_path":"/challenge/123/abcdef/"}}`)
			return
		}
		okJSON(w, map[string]any{"value": float64(7)})
	})
	mux.HandleFunc("/challenge/123/abcdef/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			challengeGets.Add(1)
			okJSON(w, map[string]any{"step_name": "delta_login_review"})
			return
		}
		challengePosts.Add(1)
		okJSON(w, map[string]any{"action": "close"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	result, err := c.PrivateRequest("some/endpoint/")
	require.NoError(t, err)
	assert.Equal(t, float64(7), result["value"])
	assert.Equal(t, int32(2), endpointHits.Load())
	assert.Equal(t, int32(1), challengeGets.Load())
	assert.Equal(t, int32(1), challengePosts.Load())
}

func TestResponseHeadersAbsorbed(t *testing.T) {
	auth := AuthorizationData{DSUserID: "123", SessionID: "123:abc:9", ShouldUseHeaderOverCookies: true}
	raw, err := json.Marshal(auth)
	require.NoError(t, err)
	header := "Bearer IGT:2:" + base64.StdEncoding.EncodeToString(raw)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ig-set-authorization", header)
		w.Header().Set("ig-set-x-mid", "XMIDVALUE")
		w.Header().Set("ig-set-ig-u-rur", "PRN")
		w.Header().Set("x-ig-set-www-claim", "hmac.AR0")
		okJSON(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err = c.PrivateRequest("accounts/login/", AsLogin())
	require.NoError(t, err)

	assert.Equal(t, auth, c.GetSettings().AuthorizationData)
	assert.Equal(t, "XMIDVALUE", c.Mid())
	assert.Equal(t, "PRN", c.GetSettings().IgURur)
	assert.Equal(t, "hmac.AR0", c.GetSettings().IgWwwClaim)
	assert.Equal(t, int64(123), c.UserID())
	assert.True(t, c.IsLoggedIn())
}

func TestCountersAdvance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	for i := 0; i < 3; i++ {
		_, err := c.PrivateRequest("feed/timeline/")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.PrivateRequestsCount())
	assert.Greater(t, c.TotalResponseBytes(), int64(0))
}
