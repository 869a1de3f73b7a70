package resources

import (
	"fmt"
	"net/url"

	"igclient/client"
)

// Hashtags serves tag lookups.
type Hashtags struct {
	f *Facade
}

// Info fetches a hashtag summary by name.
func (h *Hashtags) Info(name string) (Hashtag, error) {
	result, err := h.f.session.PrivateRequest(fmt.Sprintf("tags/%s/info/", name))
	if err != nil {
		if _, ok := err.(*client.ClientNotFoundError); ok {
			return Hashtag{}, &client.HashtagNotFound{ClientError: client.ClientError{Message: "hashtag not found"}}
		}
		return Hashtag{}, err
	}
	var tag Hashtag
	if err := decodeInto(result, &tag); err != nil {
		return Hashtag{}, fmt.Errorf("decode hashtag: %w", err)
	}
	return tag, nil
}

// InfoWeb fetches a hashtag through the public web surface.
func (h *Hashtags) InfoWeb(name string) (Hashtag, error) {
	result, err := h.f.session.PublicA1Request("explore/tags/"+name+"/", url.Values{})
	if err != nil {
		return Hashtag{}, err
	}
	raw, ok := result["hashtag"].(map[string]any)
	if !ok {
		return Hashtag{}, &client.HashtagNotFound{ClientError: client.ClientError{Message: "hashtag not found"}}
	}
	var tag Hashtag
	if err := decodeInto(raw, &tag); err != nil {
		return Hashtag{}, fmt.Errorf("decode hashtag: %w", err)
	}
	return tag, nil
}
