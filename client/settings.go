package client

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// Settings is the portable session snapshot. Restoring it onto a fresh
// client resurrects the exact device + session without a new login.
type Settings struct {
	UUIDs             UUIDs             `json:"uuids"`
	Mid               string            `json:"mid"`
	IgURur            string            `json:"ig_u_rur"`
	IgWwwClaim        string            `json:"ig_www_claim"`
	AuthorizationData AuthorizationData `json:"authorization_data"`
	Cookies           map[string]string `json:"cookies"`
	LastLogin         float64           `json:"last_login"`
	DeviceSettings    DeviceSettings    `json:"device_settings"`
	UserAgent         string            `json:"user_agent"`
	Country           string            `json:"country"`
	CountryCode       int               `json:"country_code"`
	Locale            string            `json:"locale"`
	TimezoneOffset    int               `json:"timezone_offset"`
}

// GetSettings captures the current identity and session state.
func (c *Client) GetSettings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	cookies := make(map[string]string, len(c.session.Cookies))
	for k, v := range c.session.Cookies {
		cookies[k] = v
	}
	return Settings{
		UUIDs:             c.IDs,
		Mid:               c.session.Mid,
		IgURur:            c.session.IgURur,
		IgWwwClaim:        c.session.IgWwwClaim,
		AuthorizationData: c.session.Authorization,
		Cookies:           cookies,
		LastLogin:         c.session.LastLogin,
		DeviceSettings:    c.Device,
		UserAgent:         c.UserAgent,
		Country:           c.Country,
		CountryCode:       c.CountryCode,
		Locale:            c.Locale,
		TimezoneOffset:    c.TimezoneOffset,
	}
}

// SetSettings restores a snapshot: identity first, then session state, then
// the cookie jars. The user agent is rebuilt only when the snapshot lacks one.
func (c *Client) SetSettings(s Settings) {
	c.mu.Lock()
	if s.UUIDs.UUID != "" {
		c.IDs = s.UUIDs
	}
	if s.DeviceSettings.AppVersion != "" {
		c.Device = s.DeviceSettings
	}
	if s.Locale != "" {
		c.Locale = s.Locale
	}
	if s.Country != "" {
		c.Country = s.Country
	}
	// Numeric fields restore verbatim: 0 is a valid country code and a
	// valid UTC offset, not an absent value.
	c.CountryCode = s.CountryCode
	c.TimezoneOffset = s.TimezoneOffset
	if s.UserAgent != "" {
		c.UserAgent = s.UserAgent
	} else {
		c.UserAgent = BuildUserAgent(c.Device, c.Locale)
	}
	c.session.Mid = s.Mid
	c.session.IgURur = s.IgURur
	c.session.IgWwwClaim = s.IgWwwClaim
	c.session.Authorization = s.AuthorizationData
	c.session.LastLogin = s.LastLogin
	c.session.Cookies = make(map[string]string, len(s.Cookies))
	for k, v := range s.Cookies {
		c.session.Cookies[k] = v
	}
	if tok, ok := c.session.Cookies["csrftoken"]; ok {
		c.csrfToken = tok
	}
	c.mu.Unlock()
	c.restoreCookies()
}

// DumpSettings writes the snapshot to path as indented JSON.
func (c *Client) DumpSettings(path string) error {
	data, err := json.MarshalIndent(c.GetSettings(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// LoadSettings reads a snapshot from path and restores it.
func (c *Client) LoadSettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}
	c.SetSettings(s)
	return nil
}

const (
	settingsSaltSize  = 16
	settingsKDFRounds = 100_000
)

// DumpSettingsEncrypted writes the snapshot encrypted with a key derived
// from passphrase. Layout: salt ‖ nonce ‖ AES-256-GCM ciphertext.
func (c *Client) DumpSettingsEncrypted(path, passphrase string) error {
	plain, err := json.Marshal(c.GetSettings())
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	salt := make([]byte, settingsSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := settingsCipher(passphrase, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	out := append(salt, nonce...)
	out = gcm.Seal(out, nonce, plain, nil)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write encrypted settings: %w", err)
	}
	return nil
}

// LoadSettingsEncrypted reads and restores an encrypted snapshot.
func (c *Client) LoadSettingsEncrypted(path, passphrase string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read encrypted settings: %w", err)
	}
	if len(data) < settingsSaltSize {
		return fmt.Errorf("encrypted settings too short")
	}
	salt, rest := data[:settingsSaltSize], data[settingsSaltSize:]
	gcm, err := settingsCipher(passphrase, salt)
	if err != nil {
		return err
	}
	if len(rest) < gcm.NonceSize() {
		return fmt.Errorf("encrypted settings too short")
	}
	nonce, ct := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return fmt.Errorf("decrypt settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(plain, &s); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}
	c.SetSettings(s)
	return nil
}

func settingsCipher(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, settingsKDFRounds, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
