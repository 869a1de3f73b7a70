package resources

import (
	"fmt"
	"net/url"
	"strconv"

	"igclient/client"
)

// Stories serves the ephemeral reel surface.
type Stories struct {
	f *Facade
}

// UserStories fetches the active story slides of one account.
func (s *Stories) UserStories(pk int64) ([]StoryItem, error) {
	result, err := s.f.session.PrivateRequest(fmt.Sprintf("feed/user/%d/story/", pk))
	if err != nil {
		return nil, err
	}
	reel, _ := result["reel"].(map[string]any)
	return decodeStoryItems(reel)
}

// ReelsMedia fetches story reels for several owners in one call.
func (s *Stories) ReelsMedia(pks []int64) (map[string][]StoryItem, error) {
	ids := make([]string, len(pks))
	for i, pk := range pks {
		ids[i] = strconv.FormatInt(pk, 10)
	}
	params := url.Values{}
	for _, id := range ids {
		params.Add("user_ids", id)
	}
	result, err := s.f.session.PrivateRequest("feed/reels_media/", client.WithParams(params))
	if err != nil {
		return nil, err
	}
	reels, _ := result["reels"].(map[string]any)
	out := make(map[string][]StoryItem, len(reels))
	for owner, raw := range reels {
		reel, _ := raw.(map[string]any)
		items, err := decodeStoryItems(reel)
		if err != nil {
			return nil, err
		}
		out[owner] = items
	}
	return out, nil
}

func decodeStoryItems(reel map[string]any) ([]StoryItem, error) {
	rawItems, _ := reel["items"].([]any)
	items := make([]StoryItem, 0, len(rawItems))
	for _, raw := range rawItems {
		var item StoryItem
		if err := decodeInto(raw, &item); err != nil {
			return nil, fmt.Errorf("decode story item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}
