package resources

import (
	"fmt"
	"net/url"

	"igclient/client"
)

// Collections serves the saved-media folders of the logged-in account.
type Collections struct {
	f *Facade
}

// List returns all collections, following pagination.
func (c *Collections) List() ([]Collection, error) {
	params := url.Values{
		"collection_types": {`["ALL_MEDIA_AUTO_COLLECTION","MEDIA","AUDIO_AUTO_COLLECTION"]`},
	}
	var collections []Collection
	for {
		result, err := c.f.session.PrivateRequest("collections/list/", client.WithParams(params))
		if err != nil {
			return nil, err
		}
		rawItems, _ := result["items"].([]any)
		for _, raw := range rawItems {
			var col Collection
			if err := decodeInto(raw, &col); err != nil {
				return nil, fmt.Errorf("decode collection: %w", err)
			}
			collections = append(collections, col)
		}
		more, _ := result["more_available"].(bool)
		maxID, _ := result["next_max_id"].(string)
		if !more || maxID == "" {
			return collections, nil
		}
		params.Set("max_id", maxID)
	}
}

// ByName finds a collection by its display name.
func (c *Collections) ByName(name string) (Collection, error) {
	collections, err := c.List()
	if err != nil {
		return Collection{}, err
	}
	for _, col := range collections {
		if col.Name == name {
			return col, nil
		}
	}
	return Collection{}, &client.CollectionNotFound{ClientError: client.ClientError{Message: fmt.Sprintf("collection %q not found", name)}}
}
