package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"time"
)

// DeviceSettings is the synthetic mobile fingerprint sent with every private
// request. Once generated it must never change within a stored session.
type DeviceSettings struct {
	AppVersion     string `json:"app_version"`
	AndroidVersion int    `json:"android_version"`
	AndroidRelease string `json:"android_release"`
	DPI            string `json:"dpi"`
	Resolution     string `json:"resolution"`
	Manufacturer   string `json:"manufacturer"`
	Device         string `json:"device"`
	Model          string `json:"model"`
	CPU            string `json:"cpu"`
	VersionCode    string `json:"version_code"`
}

// The catalog holds real (manufacturer, model, os, dpi, resolution, chipset)
// tuples. The server correlates these fields, so profiles are never mixed.
var deviceCatalog = []DeviceSettings{
	{
		Manufacturer:   "OnePlus",
		Device:         "devitron",
		Model:          "6T Dev",
		AndroidVersion: 26,
		AndroidRelease: "8.0.0",
		DPI:            "480dpi",
		Resolution:     "1080x1920",
		CPU:            "qcom",
	},
	{
		Manufacturer:   "Xiaomi",
		Device:         "capricorn",
		Model:          "MI 5s",
		AndroidVersion: 26,
		AndroidRelease: "8.0.0",
		DPI:            "480dpi",
		Resolution:     "1080x1920",
		CPU:            "qcom",
	},
	{
		Manufacturer:   "samsung",
		Device:         "beyond1",
		Model:          "SM-G973F",
		AndroidVersion: 29,
		AndroidRelease: "10.0",
		DPI:            "560dpi",
		Resolution:     "1440x3040",
		CPU:            "exynos9820",
	},
	{
		Manufacturer:   "Google",
		Device:         "oriole",
		Model:          "Pixel 6",
		AndroidVersion: 31,
		AndroidRelease: "12.0",
		DPI:            "420dpi",
		Resolution:     "1080x2400",
		CPU:            "arm64-v8a",
	},
	{
		Manufacturer:   "Xiaomi",
		Device:         "cmi",
		Model:          "Mi 10 Pro",
		AndroidVersion: 30,
		AndroidRelease: "11.0",
		DPI:            "440dpi",
		Resolution:     "1080x2340",
		CPU:            "qcom",
	},
	{
		Manufacturer:   "OnePlus",
		Device:         "lemonadep",
		Model:          "LE2123",
		AndroidVersion: 31,
		AndroidRelease: "12.0",
		DPI:            "450dpi",
		Resolution:     "1440x3216",
		CPU:            "qcom",
	},
	{
		Manufacturer:   "samsung",
		Device:         "o1s",
		Model:          "SM-G991B",
		AndroidVersion: 31,
		AndroidRelease: "12.0",
		DPI:            "480dpi",
		Resolution:     "1080x2400",
		CPU:            "exynos2100",
	},
}

// App versions the server accepts, keyed by Android release. Shipping an
// app version the server never saw on that release is a fingerprint leak.
var appVersionsByRelease = map[string][]string{
	"8.0.0": {"269.0.0.18.75", "270.0.0.14.83"},
	"10.0":  {"269.0.0.18.75", "271.0.0.21.84"},
	"11.0":  {"271.0.0.21.84", "272.0.0.17.84"},
	"12.0":  {"272.0.0.17.84", "273.0.0.16.70"},
}

const defaultVersionCode = "314665256"

const userAgentTemplate = "Instagram %s Android (%d/%s; %s; %s; %s; %s; %s; %s; %s)"

// GenerateDevice picks a coherent device profile from the catalog.
func GenerateDevice() DeviceSettings {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	d := deviceCatalog[r.Intn(len(deviceCatalog))]
	versions := appVersionsByRelease[d.AndroidRelease]
	if len(versions) == 0 {
		versions = []string{"269.0.0.18.75"}
	}
	d.AppVersion = versions[r.Intn(len(versions))]
	d.VersionCode = defaultVersionCode
	return d
}

// BuildUserAgent renders the mobile user agent for a device and locale.
func BuildUserAgent(d DeviceSettings, locale string) string {
	return fmt.Sprintf(
		userAgentTemplate,
		d.AppVersion,
		d.AndroidVersion,
		d.AndroidRelease,
		d.DPI,
		d.Resolution,
		d.Manufacturer,
		d.Device,
		d.Model,
		d.CPU,
		locale,
	)
}

// GenerateJazoest computes the login checksum over the phone id characters.
func GenerateJazoest(phoneID string) string {
	sum := 0
	for _, c := range phoneID {
		sum += int(c)
	}
	return "2" + strconv.Itoa(sum)
}

// GenerateAndroidDeviceID returns an id in the "android-" + 16 hex format.
func GenerateAndroidDeviceID() string {
	h := sha256.Sum256([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
	return "android-" + hex.EncodeToString(h[:])[:16]
}

// GenerateMutationToken returns the token used by direct send and upload.
func GenerateMutationToken() string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return strconv.FormatInt(6800011111111111111+r.Int63n(88888888888888880), 10)
}

// GenerateUserBreadcrumb emulates the typing-telemetry blob some write
// endpoints expect alongside text input of the given length.
func GenerateUserBreadcrumb(size int) string {
	const key = "iN4$aGr0m"
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	dt := time.Now().UnixMilli()
	elapsed := int64(r.Intn(1000)+500) + int64(size)*int64(r.Intn(1000)+500)
	count := size / (r.Intn(3) + 3)
	if count < 1 {
		count = 1
	}
	data := fmt.Sprintf("%d %d %d %d", size, elapsed, count, dt)
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return fmt.Sprintf("%s\n%s\n",
		base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		base64.StdEncoding.EncodeToString([]byte(data)),
	)
}

// TimezoneOffset returns the local offset from UTC in seconds.
func TimezoneOffset() int {
	_, offset := time.Now().Zone()
	return offset
}
