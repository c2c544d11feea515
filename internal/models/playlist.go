package models

import (
	"time"
)

// Video: a single entry inside a playlist. Identity comes from the remote
// side and never changes; sync keeps the download state of known ids.
type Video struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Uploader   string   `json:"uploader"`
	Duration   *float64 `json:"duration"`
	Thumbnail  string   `json:"thumbnail"`
	URL        string   `json:"url"`
	Downloaded bool     `json:"downloaded"`
	FilePath   string   `json:"file_path,omitempty"`
	Quality    string   `json:"quality,omitempty"`
	AudioOnly  bool     `json:"audio_only,omitempty"`
}

// Playlist: ordered videos mirroring the remote playlist order.
type Playlist struct {
	ID     string    `json:"id"`
	URL    string    `json:"url"`
	Title  string    `json:"title"`
	Videos []*Video  `json:"videos"`
	Added  time.Time `json:"added"`
	Synced time.Time `json:"synced"`
}

// FindVideo returns the video with the given id, or nil.
func (p *Playlist) FindVideo(videoID string) *Video {
	for _, v := range p.Videos {
		if v.ID == videoID {
			return v
		}
	}
	return nil
}

// PlaylistInfo is what the metadata fetcher resolves for a source URL.
type PlaylistInfo struct {
	Title  string
	Videos []*Video
}
