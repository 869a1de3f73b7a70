package resources

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"igclient/client"
)

// Users serves profile lookups. Private endpoints are preferred; the web
// surface is the fallback when the mobile one refuses.
type Users struct {
	f *Facade
}

// Info fetches a profile by numeric id, serving from cache when possible.
func (u *Users) Info(pk int64) (User, error) {
	if cached, ok := u.f.cachedUser(pk); ok {
		return cached, nil
	}
	return u.infoV1(pk)
}

func (u *Users) infoV1(pk int64) (User, error) {
	result, err := u.f.session.PrivateRequest(fmt.Sprintf("users/%d/info/", pk))
	if err != nil {
		return User{}, err
	}
	return u.parseUser(result)
}

// InfoByUsername resolves a profile by handle.
func (u *Users) InfoByUsername(username string) (User, error) {
	result, err := u.f.session.PrivateRequest(fmt.Sprintf("users/%s/usernameinfo/", username))
	if err != nil {
		if _, ok := err.(*client.ClientNotFoundError); ok {
			return User{}, &client.UserNotFound{ClientError: client.ClientError{Message: "user not found"}}
		}
		return User{}, err
	}
	return u.parseUser(result)
}

// InfoByUsernameWeb resolves a profile through the public web surface.
func (u *Users) InfoByUsernameWeb(username string) (User, error) {
	params := url.Values{"username": {username}}
	result, err := u.f.session.PublicRequestJSON("api/v1/users/web_profile_info/", client.WithParams(params))
	if err != nil {
		return User{}, err
	}
	data, _ := result["data"].(map[string]any)
	raw, ok := data["user"].(map[string]any)
	if !ok {
		return User{}, &client.UserNotFound{ClientError: client.ClientError{Message: "user not found"}}
	}
	var user User
	if err := decodeInto(raw, &user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	if user.Pk == 0 {
		if idStr, ok := raw["id"].(string); ok {
			user.Pk, _ = strconv.ParseInt(idStr, 10, 64)
		}
	}
	u.f.cacheUser(user)
	return user, nil
}

// InfoMany fetches several profiles with bounded concurrency. Results keep
// input order; the first failure cancels the rest.
func (u *Users) InfoMany(pks []int64, concurrency int) ([]User, error) {
	if concurrency < 1 {
		concurrency = 4
	}
	users := make([]User, len(pks))
	var g errgroup.Group
	g.SetLimit(concurrency)
	var mu sync.Mutex
	for i, pk := range pks {
		g.Go(func() error {
			user, err := u.Info(pk)
			if err != nil {
				return fmt.Errorf("user %d: %w", pk, err)
			}
			mu.Lock()
			users[i] = user
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return users, nil
}

// Search finds accounts matching a query.
func (u *Users) Search(query string) ([]User, error) {
	params := url.Values{
		"q":          {query},
		"rank_token": {u.f.session.RankToken()},
	}
	result, err := u.f.session.PrivateRequest("users/search/", client.WithParams(params))
	if err != nil {
		return nil, err
	}
	rawUsers, _ := result["users"].([]any)
	users := make([]User, 0, len(rawUsers))
	for _, raw := range rawUsers {
		var user User
		if err := decodeInto(raw, &user); err != nil {
			continue
		}
		u.f.cacheUser(user)
		users = append(users, user)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].FollowerCount > users[j].FollowerCount
	})
	return users, nil
}

func (u *Users) parseUser(result map[string]any) (User, error) {
	raw, ok := result["user"].(map[string]any)
	if !ok {
		return User{}, &client.UserNotFound{ClientError: client.ClientError{Message: "user not found"}}
	}
	var user User
	if err := decodeInto(raw, &user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	u.f.cacheUser(user)
	return user, nil
}
