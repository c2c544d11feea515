package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"ytsync-server/internal/models"
)

// PlaylistFetcher resolves a source URL into a title plus ordered video
// summaries. Behind an interface so handlers can be tested without the
// external tool.
type PlaylistFetcher interface {
	FetchPlaylistInfo(ctx context.Context, url string) (*models.PlaylistInfo, error)
}

// YtdlpFetcher shells out to yt-dlp in flat-playlist mode.
type YtdlpFetcher struct {
	YtdlpPath string
}

// flatEntry mirrors the fields we need from yt-dlp -J output. Missing
// optional fields get defaults instead of failing the fetch.
type flatEntry struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Uploader  string   `json:"uploader"`
	Duration  *float64 `json:"duration"`
	Thumbnail string   `json:"thumbnail"`
}

type flatPlaylist struct {
	flatEntry
	Entries            []*flatEntry `json:"entries"`
	WebpageURLBasename string       `json:"webpage_url_basename"`
}

// FetchPlaylistInfo runs yt-dlp --flat-playlist -J against the URL. A
// plain video URL comes back without entries; it is treated as a
// one-item playlist.
func (f *YtdlpFetcher) FetchPlaylistInfo(ctx context.Context, url string) (*models.PlaylistInfo, error) {
	cmd := exec.CommandContext(ctx, f.YtdlpPath, "--flat-playlist", "-J", "--no-warnings", url)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "yt-dlp failed"
		}
		return nil, fmt.Errorf("%s", msg)
	}

	return parsePlaylistJSON(out)
}

// parsePlaylistJSON decodes yt-dlp -J output into a playlist summary.
func parsePlaylistJSON(out []byte) (*models.PlaylistInfo, error) {
	var data flatPlaylist
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("yt-dlp output decode: %w", err)
	}

	entries := data.Entries
	if len(entries) == 0 {
		entries = []*flatEntry{&data.flatEntry}
	}

	videos := make([]*models.Video, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.ID == "" {
			continue
		}
		title := e.Title
		if title == "" {
			title = "Unknown"
		}
		videos = append(videos, &models.Video{
			ID:        e.ID,
			Title:     title,
			Uploader:  e.Uploader,
			Duration:  e.Duration,
			Thumbnail: e.Thumbnail,
			URL:       fmt.Sprintf(WatchURLTemplate, e.ID),
		})
	}

	title := data.Title
	if title == "" {
		title = data.WebpageURLBasename
	}
	if title == "" {
		title = "Playlist"
	}

	return &models.PlaylistInfo{Title: title, Videos: videos}, nil
}

// CheckYtdlp reports whether the external tool is on PATH.
func CheckYtdlp(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}
