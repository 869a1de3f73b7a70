package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedPayload recovers the JSON object from a signed_body form value.
func signedPayload(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	require.NoError(t, r.ParseForm())
	signed := r.PostFormValue("signed_body")
	require.True(t, strings.HasPrefix(signed, "SIGNATURE."))
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(signed, "SIGNATURE.")), &payload))
	return payload
}

func authorizationHeaderFor(t *testing.T, userID string) string {
	t.Helper()
	raw, err := json.Marshal(AuthorizationData{
		DSUserID:                   userID,
		SessionID:                  userID + ":session:27",
		ShouldUseHeaderOverCookies: true,
	})
	require.NoError(t, err)
	return "Bearer IGT:2:" + base64.StdEncoding.EncodeToString(raw)
}

// loginMux wires the warm-up and crypto endpoints every login test needs.
func loginMux(t *testing.T, pubB64 string, login http.HandlerFunc) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/qe/sync/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ig-set-password-encryption-key-id", "205")
		w.Header().Set("ig-set-password-encryption-pub-key", pubB64)
		okJSON(w, nil)
	})
	mux.HandleFunc("/accounts/contact_point_prefill/", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, nil)
	})
	mux.HandleFunc("/launcher/sync/", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, nil)
	})
	mux.HandleFunc("/feed/reels_tray/", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, nil)
	})
	mux.HandleFunc("/feed/timeline/", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, nil)
	})
	mux.HandleFunc("/accounts/login/", login)
	return mux
}

func TestLoginSuccess(t *testing.T) {
	key, pubB64 := testRSAKey(t)
	var payload map[string]any
	mux := loginMux(t, pubB64, func(w http.ResponseWriter, r *http.Request) {
		payload = signedPayload(t, r)
		w.Header().Set("ig-set-authorization", authorizationHeaderFor(t, "8530598273"))
		okJSON(w, map[string]any{"logged_in_user": map[string]any{"pk": float64(8530598273)}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.Username = "alice"
	c.Password = "s3cr3t"
	require.NoError(t, c.Login())

	assert.True(t, c.IsLoggedIn())
	assert.Equal(t, int64(8530598273), c.UserID())
	assert.Equal(t, "8530598273:session:27", c.SessionID())

	assert.Equal(t, "alice", payload["username"])
	assert.Equal(t, GenerateJazoest(c.IDs.PhoneID), payload["jazoest"])
	assert.Equal(t, c.IDs.PhoneID, payload["phone_id"])
	assert.Equal(t, c.IDs.AndroidDeviceID, payload["device_id"])

	envelope, _ := payload["enc_password"].(string)
	require.True(t, strings.HasPrefix(envelope, "#PWD_INSTAGRAM:4:"))
	_, password := openEnvelope(t, envelope, key)
	assert.Equal(t, "s3cr3t", password)
}

func TestLoginIsNoopWhenSessionAlive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.Username = "alice"
	c.Password = "s3cr3t"
	c.SetSettings(sampleSettings())
	require.NoError(t, c.Login())
}

func TestLoginRequiresCredentials(t *testing.T) {
	c := New()
	assert.Error(t, c.Login())
}

func TestLoginTwoFactor(t *testing.T) {
	_, pubB64 := testRSAKey(t)
	var twoFactorPayload map[string]any
	mux := loginMux(t, pubB64, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		fmt.Fprint(w, `{"message":"two_factor_required","error_type":"two_factor_required",
			"two_factor_info":{"two_factor_identifier":"IDENT123"},"status":"fail"}`)
	})
	mux.HandleFunc("/accounts/two_factor_login/", func(w http.ResponseWriter, r *http.Request) {
		twoFactorPayload = signedPayload(t, r)
		w.Header().Set("ig-set-authorization", authorizationHeaderFor(t, "444"))
		okJSON(w, map[string]any{"logged_in_user": map[string]any{"pk": float64(444)}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.Username = "alice"
	c.Password = "s3cr3t"

	err := c.Login()
	var twoFactor *TwoFactorRequired
	require.ErrorAs(t, err, &twoFactor)
	assert.False(t, c.IsLoggedIn())

	require.NoError(t, c.TwoFactorLogin("123 456"))
	assert.True(t, c.IsLoggedIn())
	assert.Equal(t, int64(444), c.UserID())

	assert.Equal(t, "123456", twoFactorPayload["verification_code"])
	assert.Equal(t, "IDENT123", twoFactorPayload["two_factor_identifier"])
	assert.Equal(t, "alice", twoFactorPayload["username"])
}

func TestLoginBadPassword(t *testing.T) {
	_, pubB64 := testRSAKey(t)
	mux := loginMux(t, pubB64, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		fmt.Fprint(w, `{"message":"Incorrect password.","error_type":"bad_password","status":"fail"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.Username = "alice"
	c.Password = "wrong"

	err := c.Login()
	var bad *BadPassword
	require.ErrorAs(t, err, &bad)
	assert.False(t, c.IsLoggedIn())
}

func TestReloginAttemptCap(t *testing.T) {
	_, pubB64 := testRSAKey(t)
	var loginHits atomic.Int32
	mux := loginMux(t, pubB64, func(w http.ResponseWriter, r *http.Request) {
		loginHits.Add(1)
		w.WriteHeader(400)
		fmt.Fprint(w, `{"message":"Incorrect password.","error_type":"bad_password","status":"fail"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.Username = "alice"
	c.Password = "wrong"

	var bad *BadPassword
	require.ErrorAs(t, c.Relogin(), &bad)
	require.ErrorAs(t, c.Relogin(), &bad)

	var exceeded *ReloginAttemptExceeded
	require.ErrorAs(t, c.Relogin(), &exceeded)
	assert.Equal(t, int32(2), loginHits.Load())
}

func TestLoginBySessionID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/999/info/", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, map[string]any{"user": map[string]any{"pk": float64(999), "username": "carol"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	require.NoError(t, c.LoginBySessionID("999%3Aabc%3A5"))

	settings := c.GetSettings()
	assert.Equal(t, "999", settings.AuthorizationData.DSUserID)
	assert.Equal(t, "999%3Aabc%3A5", settings.AuthorizationData.SessionID)
	assert.True(t, settings.AuthorizationData.ShouldUseHeaderOverCookies)
	assert.True(t, c.IsLoggedIn())
	assert.Equal(t, int64(999), c.UserID())
}

func TestLoginBySessionIDFallsBackToWeb(t *testing.T) {
	var webHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/users/999/info/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
		fmt.Fprint(w, `{"message":"forbidden","status":"fail"}`)
	})
	mux.HandleFunc("/api/v1/users/999/info/", func(w http.ResponseWriter, r *http.Request) {
		webHits.Add(1)
		okJSON(w, map[string]any{"user": map[string]any{"pk": float64(999)}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	require.NoError(t, c.LoginBySessionID("999:abc:5"))
	assert.Equal(t, int32(1), webHits.Load())
	assert.True(t, c.IsLoggedIn())
}

func TestLoginBySessionIDRejectsGarbage(t *testing.T) {
	c := New()
	assert.Error(t, c.LoginBySessionID("no-digits-here"))
}

func TestLogoutClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/logout/", func(w http.ResponseWriter, r *http.Request) {
		okJSON(w, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	c.SetSettings(sampleSettings())
	require.True(t, c.IsLoggedIn())

	require.NoError(t, c.Logout())
	assert.False(t, c.IsLoggedIn())
	assert.Empty(t, c.GetSettings().Cookies)
}
