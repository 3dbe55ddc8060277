package dataapi

// VideoListResponse is the payload of GET /videos.
type VideoListResponse struct {
	Kind     string      `json:"kind"`
	ETag     string      `json:"etag"`
	Items    []VideoItem `json:"items"`
	PageInfo struct {
		TotalResults   int `json:"totalResults"`
		ResultsPerPage int `json:"resultsPerPage"`
	} `json:"pageInfo"`
}

// VideoItem is one video resource with the parts this client requests.
type VideoItem struct {
	ID               string           `json:"id"`
	Snippet          Snippet          `json:"snippet"`
	ContentDetails   ContentDetails   `json:"contentDetails"`
	Statistics       Statistics       `json:"statistics"`
	RecordingDetails RecordingDetails `json:"recordingDetails"`
}

// Snippet holds the descriptive fields of a video.
type Snippet struct {
	PublishedAt          string               `json:"publishedAt"`
	ChannelID            string               `json:"channelId"`
	Title                string               `json:"title"`
	ChannelTitle         string               `json:"channelTitle"`
	DefaultLanguage      string               `json:"defaultLanguage"`
	DefaultAudioLanguage string               `json:"defaultAudioLanguage"`
	Thumbnails           map[string]Thumbnail `json:"thumbnails"`
}

// Thumbnail is one rendition of the video thumbnail.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ContentDetails holds the duration as an ISO-8601 string.
type ContentDetails struct {
	Duration string `json:"duration"`
}

// Statistics are returned as decimal strings; counts hidden by the owner are absent.
type Statistics struct {
	ViewCount     string `json:"viewCount"`
	LikeCount     string `json:"likeCount"`
	DislikeCount  string `json:"dislikeCount"`
	FavoriteCount string `json:"favoriteCount"`
	CommentCount  string `json:"commentCount"`
}

// RecordingDetails carries the optional recording location.
type RecordingDetails struct {
	LocationDescription string `json:"locationDescription"`
	RecordingDate       string `json:"recordingDate"`
}

// errorResponse is the error envelope of the Google APIs.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
			Domain  string `json:"domain"`
			Reason  string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// BestThumbnail returns the highest resolution thumbnail URL available.
func (s Snippet) BestThumbnail() string {
	for _, k := range []string{"maxres", "standard", "high", "medium", "default"} {
		if t, ok := s.Thumbnails[k]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}
