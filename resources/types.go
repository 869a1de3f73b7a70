package resources

import "encoding/json"

// User is the profile shape shared by the private and web surfaces.
type User struct {
	Pk             int64  `json:"pk"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	IsPrivate      bool   `json:"is_private"`
	IsVerified     bool   `json:"is_verified"`
	ProfilePicURL  string `json:"profile_pic_url"`
	MediaCount     int    `json:"media_count"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	Biography      string `json:"biography"`
	ExternalURL    string `json:"external_url"`
}

// MediaItem is a feed post in any of its shapes (photo, video, album, clip).
type MediaItem struct {
	ID           string `json:"id"`
	Pk           int64  `json:"pk"`
	Code         string `json:"code"`
	TakenAt      int64  `json:"taken_at"`
	MediaType    int    `json:"media_type"`
	ProductType  string `json:"product_type"`
	LikeCount    int    `json:"like_count"`
	CommentCount int    `json:"comment_count"`
	User         User   `json:"user"`
	Caption      struct {
		Text string `json:"text"`
	} `json:"caption"`
}

// Hashtag summary as served by the tag info endpoint.
type Hashtag struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	MediaCount int    `json:"media_count"`
}

// Location as served by the location info endpoint.
type Location struct {
	Pk      int64   `json:"pk"`
	Name    string  `json:"name"`
	Address string  `json:"address"`
	City    string  `json:"city"`
	Lng     float64 `json:"lng"`
	Lat     float64 `json:"lat"`
}

// StoryItem is one reel slide.
type StoryItem struct {
	ID        string `json:"id"`
	Pk        int64  `json:"pk"`
	TakenAt   int64  `json:"taken_at"`
	MediaType int    `json:"media_type"`
	User      User   `json:"user"`
	ExpiringAt int64 `json:"expiring_at"`
}

// Highlight is a pinned story reel.
type Highlight struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	MediaCount int    `json:"media_count"`
}

// Collection is a saved-media folder.
type Collection struct {
	ID         string `json:"collection_id"`
	Name       string `json:"collection_name"`
	MediaCount int    `json:"collection_media_count"`
}

// Track is a music track usable in clips.
type Track struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	DisplayArtist string `json:"display_artist"`
	AudioURL     string `json:"progressive_download_url"`
}

// DirectMessage is the acknowledgment of a sent direct item.
type DirectMessage struct {
	ItemID   string `json:"item_id"`
	ThreadID string `json:"thread_id"`
}

// decodeInto converts a decoded JSON object into a typed struct by
// round-tripping through the encoder. Endpoint payloads are small, so the
// extra pass costs nothing measurable.
func decodeInto(src any, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
