package resources

import (
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"igclient/client"
)

// Session is the slice of the engine the endpoint handlers need. The
// concrete *client.Client satisfies it; tests substitute a fake.
type Session interface {
	PrivateRequest(endpoint string, opts ...client.RequestOption) (map[string]any, error)
	PublicRequestJSON(target string, opts ...client.RequestOption) (map[string]any, error)
	PublicA1Request(path string, params url.Values) (map[string]any, error)
	PublicGraphQLRequest(queryHash string, variables map[string]any) (map[string]any, error)
	PasswordEncrypt(password string) (string, error)
	UserID() int64
	RankToken() string
	CSRFToken() string
	SetProxy(proxyURL string) error
}

// Facade bundles the per-domain endpoint handlers over one session and owns
// the read caches they share.
type Facade struct {
	session Session
	log     zerolog.Logger

	mu         sync.Mutex
	userCache  map[int64]User
	mediaCache map[string]MediaItem

	Users       *Users
	Media       *Media
	Hashtags    *Hashtags
	Locations   *Locations
	Direct      *Direct
	Stories     *Stories
	Highlights  *Highlights
	Collections *Collections
	Tracks      *Tracks
	Account     *Account
}

// New builds a facade over a session.
func New(session Session, log zerolog.Logger) *Facade {
	f := &Facade{
		session:    session,
		log:        log,
		userCache:  make(map[int64]User),
		mediaCache: make(map[string]MediaItem),
	}
	f.Users = &Users{f: f}
	f.Media = &Media{f: f}
	f.Hashtags = &Hashtags{f: f}
	f.Locations = &Locations{f: f}
	f.Direct = &Direct{f: f}
	f.Stories = &Stories{f: f}
	f.Highlights = &Highlights{f: f}
	f.Collections = &Collections{f: f}
	f.Tracks = &Tracks{f: f}
	f.Account = &Account{f: f}
	return f
}

// SetProxy rewrites a provider descriptor into a concrete proxy URL and
// installs it on both HTTP clients.
func (f *Facade) SetProxy(cfg ProxyConfig) error {
	proxyURL, err := BuildProxyURL(cfg)
	if err != nil {
		return err
	}
	f.log.Debug().Str("provider", cfg.Provider).Msg("installing proxy")
	return f.session.SetProxy(proxyURL)
}

func (f *Facade) cachedUser(pk int64) (User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.userCache[pk]
	return u, ok
}

func (f *Facade) cacheUser(u User) {
	if u.Pk == 0 {
		return
	}
	f.mu.Lock()
	f.userCache[u.Pk] = u
	f.mu.Unlock()
}

func (f *Facade) cachedMedia(id string) (MediaItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mediaCache[id]
	return m, ok
}

func (f *Facade) cacheMedia(m MediaItem) {
	if m.ID == "" {
		return
	}
	f.mu.Lock()
	f.mediaCache[m.ID] = m
	f.mu.Unlock()
}

// dropMedia removes a media id from the cache after a mutation.
func (f *Facade) dropMedia(id string) {
	f.mu.Lock()
	delete(f.mediaCache, id)
	f.mu.Unlock()
}
