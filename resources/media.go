package resources

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"igclient/client"
)

// Media serves post lookups and mutations.
type Media struct {
	f *Facade
}

// Info fetches a post by id, serving from cache when possible.
func (m *Media) Info(mediaID string) (MediaItem, error) {
	if cached, ok := m.f.cachedMedia(mediaID); ok {
		return cached, nil
	}
	result, err := m.f.session.PrivateRequest(fmt.Sprintf("media/%s/info/", mediaID))
	if err != nil {
		if _, ok := err.(*client.ClientNotFoundError); ok {
			return MediaItem{}, &client.MediaNotFound{ClientError: client.ClientError{Message: "media not found"}}
		}
		return MediaItem{}, err
	}
	item, err := firstMediaItem(result)
	if err != nil {
		return MediaItem{}, err
	}
	m.f.cacheMedia(item)
	return item, nil
}

// Delete removes a post. Deleting a post that is already gone reports
// MediaNotFound; either way the cache entry is dropped.
func (m *Media) Delete(mediaID string) (bool, error) {
	defer m.f.dropMedia(mediaID)
	data := map[string]any{
		"igtv_feed_preview": "false",
		"media_id":          mediaID,
		"_uid":              strconv.FormatInt(m.f.session.UserID(), 10),
		"_uuid":             uuid.New().String(),
	}
	result, err := m.f.session.PrivateRequest(
		fmt.Sprintf("media/%s/delete/", mediaID), client.WithData(data))
	if err != nil {
		switch err.(type) {
		case *client.MediaUnavailable, *client.ClientNotFoundError:
			return false, &client.MediaNotFound{ClientError: client.ClientError{Message: "media not found"}}
		}
		return false, err
	}
	did, _ := result["did_delete"].(bool)
	return did, nil
}

// EditCaption replaces a post's caption and invalidates the cache entry.
func (m *Media) EditCaption(mediaID, caption string) (MediaItem, error) {
	data := map[string]any{
		"caption_text": caption,
		"_uid":         strconv.FormatInt(m.f.session.UserID(), 10),
		"_uuid":        uuid.New().String(),
	}
	result, err := m.f.session.PrivateRequest(
		fmt.Sprintf("media/%s/edit_media/", mediaID), client.WithData(data))
	if err != nil {
		return MediaItem{}, err
	}
	m.f.dropMedia(mediaID)
	item, err := firstMediaItem(result)
	if err != nil {
		return MediaItem{}, err
	}
	m.f.cacheMedia(item)
	return item, nil
}

// Like marks a post as liked.
func (m *Media) Like(mediaID string) error {
	return m.likeAction(mediaID, "like")
}

// Unlike removes a like.
func (m *Media) Unlike(mediaID string) error {
	return m.likeAction(mediaID, "unlike")
}

func (m *Media) likeAction(mediaID, action string) error {
	data := map[string]any{
		"inventory_source": "media_or_ad",
		"delivery_class":   "organic",
		"media_id":         mediaID,
		"radio_type":       "wifi-none",
		"_uid":             strconv.FormatInt(m.f.session.UserID(), 10),
		"_uuid":            uuid.New().String(),
		"container_module": "feed_timeline",
	}
	_, err := m.f.session.PrivateRequest(
		fmt.Sprintf("media/%s/%s/", mediaID, action),
		client.WithData(data), client.WithExtraSig("d=0"))
	return err
}

// Comment posts a comment, attaching the typing-telemetry blob the write
// endpoint expects.
func (m *Media) Comment(mediaID, text string) error {
	data := map[string]any{
		"delivery_class":    "organic",
		"feed_position":     "0",
		"container_module":  "self_comments_v2_feed_contextual_self_profile",
		"user_breadcrumb":   client.GenerateUserBreadcrumb(len(text)),
		"idempotence_token": uuid.New().String(),
		"comment_text":      text,
	}
	_, err := m.f.session.PrivateRequest(
		fmt.Sprintf("media/%s/comment/", mediaID), client.WithData(data))
	return err
}

// Likers lists the accounts that liked a post.
func (m *Media) Likers(mediaID string) ([]User, error) {
	result, err := m.f.session.PrivateRequest(fmt.Sprintf("media/%s/likers/", mediaID))
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
		m.f.cacheUser(user)
		users = append(users, user)
	}
	return users, nil
}

func firstMediaItem(result map[string]any) (MediaItem, error) {
	items, _ := result["items"].([]any)
	if len(items) == 0 {
		if raw, ok := result["media"].(map[string]any); ok {
			var item MediaItem
			if err := decodeInto(raw, &item); err != nil {
				return MediaItem{}, fmt.Errorf("decode media: %w", err)
			}
			return item, nil
		}
		return MediaItem{}, &client.MediaNotFound{ClientError: client.ClientError{Message: "media not found"}}
	}
	var item MediaItem
	if err := decodeInto(items[0], &item); err != nil {
		return MediaItem{}, fmt.Errorf("decode media: %w", err)
	}
	return item, nil
}
