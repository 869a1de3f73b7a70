package client

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	passwordEnvelopeVersion = 4
	passwordKeyEndpoint     = "qe/sync/"
)

// PasswordEncrypt produces the on-the-wire password envelope: a random
// session key encrypted to the server's RSA key, the password sealed under
// AES-256-GCM with the timestamp as associated data, all base64-packed as
// "#PWD_INSTAGRAM:4:{timestamp}:{payload}".
func (c *Client) PasswordEncrypt(password string) (string, error) {
	keyID, pubKey, err := c.passwordPublicKeys()
	if err != nil {
		return "", err
	}
	return EncryptPasswordWithKey(password, keyID, pubKey, time.Now())
}

// EncryptPasswordWithKey builds the envelope for a known key pair. Split out
// so the sealing logic is usable with pinned keys.
func EncryptPasswordWithKey(password string, keyID int, pubKeyB64 string, now time.Time) (string, error) {
	rsaKey, err := parsePublicKey(pubKeyB64)
	if err != nil {
		return "", err
	}

	sessionKey := make([]byte, 32)
	if _, err := rand.Read(sessionKey); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	iv := make([]byte, 12)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	timestamp := strconv.FormatInt(now.Unix(), 10)

	rsaEncrypted, err := rsa.EncryptPKCS1v15(rand.Reader, rsaKey, sessionKey)
	if err != nil {
		return "", fmt.Errorf("rsa encrypt session key: %w", err)
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return "", fmt.Errorf("init aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	sealed := gcm.Seal(nil, iv, []byte(password), []byte(timestamp))
	// Seal appends the tag; the envelope wants it before the ciphertext.
	tagStart := len(sealed) - gcm.Overhead()
	aesEncrypted, tag := sealed[:tagStart], sealed[tagStart:]

	sizeBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(sizeBuf, uint16(len(rsaEncrypted)))

	payload := make([]byte, 0, 2+len(iv)+2+len(rsaEncrypted)+len(tag)+len(aesEncrypted))
	payload = append(payload, 0x01, byte(keyID))
	payload = append(payload, iv...)
	payload = append(payload, sizeBuf...)
	payload = append(payload, rsaEncrypted...)
	payload = append(payload, tag...)
	payload = append(payload, aesEncrypted...)

	return fmt.Sprintf("#PWD_INSTAGRAM:%d:%s:%s",
		passwordEnvelopeVersion, timestamp, base64.StdEncoding.EncodeToString(payload)), nil
}

// passwordPublicKeys fetches the current RSA key id and key from the sync
// endpoint's response headers.
func (c *Client) passwordPublicKeys() (int, string, error) {
	req, err := http.NewRequest(http.MethodGet, c.APIBase+passwordKeyEndpoint, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build key request: %w", err)
	}
	for k, v := range c.baseHeaders() {
		req.Header.Set(k, v)
	}
	resp, err := c.private.Do(req)
	if err != nil {
		return 0, "", &ClientConnectionError{baseErr(
			fmt.Sprintf("%T: %s", err, err.Error()), "", 0, nil, nil)}
	}
	defer resp.Body.Close()
	c.updateCookies(resp.Cookies())
	c.absorbResponseHeaders(resp.Header)

	keyIDRaw := resp.Header.Get("ig-set-password-encryption-key-id")
	pubKey := resp.Header.Get("ig-set-password-encryption-pub-key")
	if keyIDRaw == "" || pubKey == "" {
		return 0, "", &CryptoKeyUnavailable{baseErr(
			"password encryption key headers missing", "", resp.StatusCode, resp, nil)}
	}
	keyID, err := strconv.Atoi(keyIDRaw)
	if err != nil {
		return 0, "", &CryptoKeyUnavailable{baseErr(
			fmt.Sprintf("bad password encryption key id %q", keyIDRaw), "", resp.StatusCode, resp, nil)}
	}
	return keyID, pubKey, nil
}

// parsePublicKey decodes the base64-wrapped PEM public key the server ships.
func parsePublicKey(b64 string) (*rsa.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	der := raw
	if block, _ := pem.Decode(raw); block != nil {
		der = block.Bytes
	}
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaPub, ok := pub.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
		return nil, fmt.Errorf("public key is not RSA")
	}
	if rsaPub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return rsaPub, nil
	}
	return nil, fmt.Errorf("unrecognized public key format")
}
