package resources

import (
	"fmt"
	"strings"

	"igclient/client"
)

// Highlights serves pinned story reels.
type Highlights struct {
	f *Facade
}

// UserHighlights lists the highlight tray of an account.
func (h *Highlights) UserHighlights(pk int64) ([]Highlight, error) {
	result, err := h.f.session.PrivateRequest(fmt.Sprintf("highlights/%d/highlights_tray/", pk))
	if err != nil {
		return nil, err
	}
	rawTray, _ := result["tray"].([]any)
	highlights := make([]Highlight, 0, len(rawTray))
	for _, raw := range rawTray {
		var hl Highlight
		if err := decodeInto(raw, &hl); err != nil {
			return nil, fmt.Errorf("decode highlight: %w", err)
		}
		highlights = append(highlights, hl)
	}
	return highlights, nil
}

// Info fetches one highlight reel with its items.
func (h *Highlights) Info(highlightID string) (Highlight, []StoryItem, error) {
	reelID := highlightID
	if !strings.HasPrefix(reelID, "highlight:") {
		reelID = "highlight:" + reelID
	}
	data := map[string]any{
		"exclude_media_ids":  "[]",
		"supported_capabilities_new": "[]",
		"source":             "profile",
		"user_ids":           fmt.Sprintf(`["%s"]`, reelID),
	}
	result, err := h.f.session.PrivateRequest("feed/reels_media/", client.WithData(data))
	if err != nil {
		return Highlight{}, nil, err
	}
	reels, _ := result["reels"].(map[string]any)
	reel, ok := reels[reelID].(map[string]any)
	if !ok {
		return Highlight{}, nil, &client.HighlightNotFound{ClientError: client.ClientError{Message: "highlight not found"}}
	}
	var hl Highlight
	if err := decodeInto(reel, &hl); err != nil {
		return Highlight{}, nil, fmt.Errorf("decode highlight: %w", err)
	}
	items, err := decodeStoryItems(reel)
	if err != nil {
		return Highlight{}, nil, err
	}
	return hl, items, nil
}
