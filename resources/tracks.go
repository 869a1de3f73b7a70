package resources

import (
	"fmt"

	"igclient/client"
)

// Tracks serves the clips music catalog.
type Tracks struct {
	f *Facade
}

// InfoByCanonicalID fetches a music track by its canonical id.
func (t *Tracks) InfoByCanonicalID(canonicalID string) (Track, error) {
	result, err := t.f.session.PrivateRequest(fmt.Sprintf("music/track/%s/info/", canonicalID))
	if err != nil {
		if _, ok := err.(*client.ClientNotFoundError); ok {
			return Track{}, &client.TrackNotFound{ClientError: client.ClientError{Message: "track not found"}}
		}
		return Track{}, err
	}
	raw, ok := result["track"].(map[string]any)
	if !ok {
		return Track{}, &client.TrackNotFound{ClientError: client.ClientError{Message: "track not found"}}
	}
	var track Track
	if err := decodeInto(raw, &track); err != nil {
		return Track{}, fmt.Errorf("decode track: %w", err)
	}
	return track, nil
}
