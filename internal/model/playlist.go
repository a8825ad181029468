package model

// Video is one entry produced by playlist extraction
type Video struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
	Duration  string `json:"duration,omitempty"`
}

// Playlist is the ordered result of extracting a playlist (or a single item
// routed through playlist syntax)
type Playlist struct {
	ID     string   `json:"id,omitempty"`
	Title  string   `json:"title,omitempty"`
	URL    string   `json:"url"`
	Videos []*Video `json:"videos"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(url string) *Playlist {
	return &Playlist{
		URL:    url,
		Videos: make([]*Video, 0),
	}
}

// AddVideo appends a video, keeping extraction order
func (p *Playlist) AddVideo(video *Video) {
	p.Videos = append(p.Videos, video)
}

// Len returns the number of videos
func (p *Playlist) Len() int {
	return len(p.Videos)
}

// Requests builds one download request per selected video, in playlist order.
// Every video is selected when ids is empty. Unknown ids are ignored.
func (p *Playlist) Requests(base Request, ids ...string) []Request {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}

	reqs := make([]Request, 0, len(p.Videos))
	for _, v := range p.Videos {
		if len(ids) > 0 && !selected[v.ID] {
			continue
		}
		r := base
		r.URL = v.URL
		r.Title = v.Title
		r.VideoID = v.ID
		if r.Collection == "" {
			r.Collection = p.Title
		}
		reqs = append(reqs, r)
	}
	return reqs
}
