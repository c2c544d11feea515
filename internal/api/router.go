package api

import (
	"net/http"
)

// NewRouter setup routes and apply global middleware
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", h.Status)

	mux.HandleFunc("/api/playlists", h.Playlists)
	mux.HandleFunc("/api/playlist/add", h.PlaylistAdd)
	mux.HandleFunc("/api/playlist/sync", h.PlaylistSync)
	mux.HandleFunc("/api/playlist/", h.Playlist)

	mux.HandleFunc("/api/video/add", h.VideoAdd)
	mux.HandleFunc("/api/video/remove", h.VideoRemove)
	mux.HandleFunc("/api/video/delete-file", h.VideoDeleteFile)
	mux.HandleFunc("/api/video/formats", h.VideoFormats)

	mux.HandleFunc("/api/download", h.Download)
	mux.HandleFunc("/api/jobs", h.Jobs)
	mux.HandleFunc("/api/jobs/clear", h.JobsClear)

	mux.HandleFunc("/api/settings", h.Settings)
	mux.HandleFunc("/api/settings/update", h.SettingsUpdate)

	mux.HandleFunc("/api/stream/", h.Stream)
	mux.HandleFunc("/api/thumb/", h.Thumb)
	mux.HandleFunc("/api/thumbs/prefetch", h.ThumbsPrefetch)

	// Wrap everything with our robust CORS logic
	return CORSMiddleware(mux)
}
