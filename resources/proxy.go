package resources

import (
	"fmt"
	"math/rand"
	"net/url"
)

// ProxyConfig describes a proxy in provider terms. For sticky-session
// providers the credentials are rewritten into the provider's username
// grammar; "raw" (or empty) passes host/port/credentials through untouched.
type ProxyConfig struct {
	Provider string `yaml:"provider"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Country  string `yaml:"country"`
	// SessionID pins a sticky session; 0 picks a random one.
	SessionID int    `yaml:"session_id"`
	APIKey    string `yaml:"api_key"`
}

// Provider endpoints. Host/port overrides in the config win.
const (
	luminatiHost   = "zproxy.lum-superproxy.io"
	luminatiPort   = 22225
	oxylabsHost    = "pr.oxylabs.io"
	oxylabsPort    = 7777
	scraperapiHost = "proxy-server.scraperapi.com"
	scraperapiPort = 8001
)

// BuildProxyURL renders a ProxyConfig into an http proxy URL.
func BuildProxyURL(cfg ProxyConfig) (string, error) {
	session := cfg.SessionID
	if session == 0 {
		session = rand.Intn(899999) + 100000
	}
	switch cfg.Provider {
	case "luminati":
		if cfg.Username == "" || cfg.Password == "" {
			return "", fmt.Errorf("luminati proxy needs username and password")
		}
		host, port := hostPort(cfg, luminatiHost, luminatiPort)
		user := fmt.Sprintf("%s-session-%d", cfg.Username, session)
		if cfg.Country != "" {
			user = fmt.Sprintf("%s-country-%s-session-%d", cfg.Username, cfg.Country, session)
		}
		return proxyURL(user, cfg.Password, host, port), nil
	case "oxylabs":
		if cfg.Username == "" || cfg.Password == "" {
			return "", fmt.Errorf("oxylabs proxy needs username and password")
		}
		host, port := hostPort(cfg, oxylabsHost, oxylabsPort)
		country := cfg.Country
		if country == "" {
			country = "US"
		}
		user := fmt.Sprintf("customer-%s-sessid-%d-cc-%s", cfg.Username, session, country)
		return proxyURL(user, cfg.Password, host, port), nil
	case "scraperapi":
		if cfg.APIKey == "" {
			return "", fmt.Errorf("scraperapi proxy needs an api key")
		}
		host, port := hostPort(cfg, scraperapiHost, scraperapiPort)
		user := fmt.Sprintf("scraperapi.session_number=%d", session)
		if cfg.Country != "" {
			user = fmt.Sprintf("scraperapi.country_code=%s.session_number=%d", cfg.Country, session)
		}
		return proxyURL(user, cfg.APIKey, host, port), nil
	case "", "raw":
		if cfg.Host == "" || cfg.Port == 0 {
			return "", fmt.Errorf("raw proxy needs host and port")
		}
		if cfg.Username != "" {
			return proxyURL(cfg.Username, cfg.Password, cfg.Host, cfg.Port), nil
		}
		return fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port), nil
	default:
		return "", fmt.Errorf("unknown proxy provider %q", cfg.Provider)
	}
}

func hostPort(cfg ProxyConfig, defHost string, defPort int) (string, int) {
	host, port := defHost, defPort
	if cfg.Host != "" {
		host = cfg.Host
	}
	if cfg.Port != 0 {
		port = cfg.Port
	}
	return host, port
}

func proxyURL(user, password, host string, port int) string {
	return fmt.Sprintf("http://%s:%s@%s:%d",
		url.QueryEscape(user), url.QueryEscape(password), host, port)
}
