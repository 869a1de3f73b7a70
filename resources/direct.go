package resources

import (
	"fmt"
	"strconv"
	"strings"

	"igclient/client"
)

// Direct serves the messaging surface. Broadcast sends are unsigned forms,
// unlike the rest of the private API.
type Direct struct {
	f *Facade
}

// SendText delivers a text message to users (a fresh thread) or to existing
// threads. At least one recipient is required.
func (d *Direct) SendText(text string, userIDs []int64, threadIDs []string) (DirectMessage, error) {
	if len(userIDs) == 0 && len(threadIDs) == 0 {
		return DirectMessage{}, fmt.Errorf("at least one recipient required")
	}
	token := client.GenerateMutationToken()
	data := map[string]any{
		"action":              "send_item",
		"is_shh_mode":         "0",
		"send_attribution":    "direct_thread",
		"client_context":      token,
		"mutation_token":      token,
		"nav_chain":           "1qT:feed_timeline:1,1qT:feed_timeline:2,1qT:feed_timeline:3,7Az:direct_inbox:4,7Az:direct_inbox:5,5rG:direct_thread:7",
		"offline_threading_id": token,
		"text":                text,
	}
	if len(userIDs) > 0 {
		ids := make([]string, len(userIDs))
		for i, id := range userIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		data["recipient_users"] = "[[" + strings.Join(ids, ",") + "]]"
	} else {
		data["thread_ids"] = `["` + strings.Join(threadIDs, `","`) + `"]`
	}
	result, err := d.f.session.PrivateRequest(
		"direct_v2/threads/broadcast/text/", client.WithData(data), client.Unsigned())
	if err != nil {
		return DirectMessage{}, err
	}
	payload, _ := result["payload"].(map[string]any)
	var msg DirectMessage
	if err := decodeInto(payload, &msg); err != nil {
		return DirectMessage{}, fmt.Errorf("decode direct payload: %w", err)
	}
	return msg, nil
}

// ThreadByID fetches a thread's metadata.
func (d *Direct) ThreadByID(threadID string) (map[string]any, error) {
	result, err := d.f.session.PrivateRequest(fmt.Sprintf("direct_v2/threads/%s/", threadID))
	if err != nil {
		if _, ok := err.(*client.ClientNotFoundError); ok {
			return nil, &client.DirectThreadNotFound{ClientError: client.ClientError{Message: "direct thread not found"}}
		}
		return nil, err
	}
	thread, ok := result["thread"].(map[string]any)
	if !ok {
		return nil, &client.DirectThreadNotFound{ClientError: client.ClientError{Message: "direct thread not found"}}
	}
	return thread, nil
}
