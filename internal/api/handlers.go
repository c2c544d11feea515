package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kkdai/youtube/v2"

	"ytsync-server/internal/catalog"
	"ytsync-server/internal/config"
	"ytsync-server/internal/downloader"
	"ytsync-server/internal/jobs"
	"ytsync-server/internal/models"
	"ytsync-server/internal/thumbs"
)

var videoIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// mimeMap covers the containers yt-dlp produces; anything else falls
// back to ServeFile's own sniffing.
var mimeMap = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

type Handler struct {
	Manager *jobs.Manager
	Store   *catalog.Store
	Fetcher downloader.PlaylistFetcher
	Thumbs  *thumbs.Cache
	Cfg     *config.Config
}

func NewHandler(m *jobs.Manager, store *catalog.Store, fetcher downloader.PlaylistFetcher, tc *thumbs.Cache, cfg *config.Config) *Handler {
	return &Handler{Manager: m, Store: store, Fetcher: fetcher, Thumbs: tc, Cfg: cfg}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Status reports tool availability and live job counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	running, queued := h.Manager.Counts()
	data := h.Store.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"ytdlp":        downloader.CheckYtdlp(h.Cfg.YtdlpPath),
		"download_dir": h.Cfg.DownloadDir,
		"active_jobs":  running,
		"queued_jobs":  queued,
		"threads":      data.Settings.Threads,
	})
}

// Playlists lists every playlist in the catalog.
func (h *Handler) Playlists(w http.ResponseWriter, r *http.Request) {
	data := h.Store.Load()
	list := make([]*models.Playlist, 0, len(data.Playlists))
	for _, pl := range data.Playlists {
		list = append(list, pl)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Added.Before(list[j].Added) })
	writeJSON(w, http.StatusOK, map[string]any{"playlists": list})
}

// Playlist handles GET (fetch one) and DELETE on /api/playlist/{id}.
func (h *Handler) Playlist(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/playlist/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Playlist id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		data := h.Store.Load()
		pl, ok := data.Playlists[id]
		if !ok {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		writeJSON(w, http.StatusOK, pl)

	case http.MethodDelete:
		found := false
		h.Store.Update(func(data *models.Catalog) error {
			if _, ok := data.Playlists[id]; ok {
				delete(data.Playlists, id)
				found = true
			}
			return nil
		})
		if !found {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// PlaylistAdd resolves a URL into a new playlist and persists it.
func (h *Handler) PlaylistAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "URL required")
		return
	}

	info, err := h.Fetcher.FetchPlaylistInfo(r.Context(), body.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now()
	pl := &models.Playlist{
		ID:     uuid.New().String()[:8],
		URL:    body.URL,
		Title:  info.Title,
		Videos: info.Videos,
		Added:  now,
		Synced: now,
	}
	h.Store.Update(func(data *models.Catalog) error {
		data.Playlists[pl.ID] = pl
		return nil
	})
	writeJSON(w, http.StatusOK, pl)
}

// PlaylistSync re-fetches a playlist's remote state. Remote order wins;
// videos the remote still reports keep their download state, new ids
// come in fresh.
func (h *Handler) PlaylistSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	data := h.Store.Load()
	pl, ok := data.Playlists[body.ID]
	if !ok {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}

	info, err := h.Fetcher.FetchPlaylistInfo(r.Context(), pl.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var synced *models.Playlist
	h.Store.Update(func(data *models.Catalog) error {
		pl, ok := data.Playlists[body.ID]
		if !ok {
			return nil
		}
		existing := map[string]*models.Video{}
		for _, v := range pl.Videos {
			existing[v.ID] = v
		}
		merged := make([]*models.Video, 0, len(info.Videos))
		for _, v := range info.Videos {
			if known, ok := existing[v.ID]; ok {
				merged = append(merged, known)
			} else {
				merged = append(merged, v)
			}
		}
		pl.Videos = merged
		pl.Title = info.Title
		pl.Synced = time.Now()
		synced = pl
		return nil
	})
	if synced == nil {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}
	writeJSON(w, http.StatusOK, synced)
}

// VideoAdd fetches a URL and appends its videos to an existing
// playlist, skipping ids already present.
func (h *Handler) VideoAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var body struct {
		PlaylistID string `json:"playlist_id"`
		URL        string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	body.URL = strings.TrimSpace(body.URL)

	data := h.Store.Load()
	if _, ok := data.Playlists[body.PlaylistID]; !ok {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}

	info, err := h.Fetcher.FetchPlaylistInfo(r.Context(), body.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var added []*models.Video
	h.Store.Update(func(data *models.Catalog) error {
		pl, ok := data.Playlists[body.PlaylistID]
		if !ok {
			return nil
		}
		existing := map[string]bool{}
		for _, v := range pl.Videos {
			existing[v.ID] = true
		}
		for _, v := range info.Videos {
			if !existing[v.ID] {
				pl.Videos = append(pl.Videos, v)
				added = append(added, v)
			}
		}
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]any{"added": added})
}

// VideoRemove drops a single video entry from a playlist.
func (h *Handler) VideoRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var body struct {
		PlaylistID string `json:"playlist_id"`
		VideoID    string `json:"video_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	found := false
	h.Store.Update(func(data *models.Catalog) error {
		pl, ok := data.Playlists[body.PlaylistID]
		if !ok {
			return nil
		}
		found = true
		kept := pl.Videos[:0]
		for _, v := range pl.Videos {
			if v.ID != body.VideoID {
				kept = append(kept, v)
			}
		}
		pl.Videos = kept
		return nil
	})
	if !found {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (s *stringList) UnmarshalJSON(raw []byte) error {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		*s = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// VideoDeleteFile removes downloaded files from disk and resets the
// videos' download state in the catalog.
func (h *Handler) VideoDeleteFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var body struct {
		PlaylistID string     `json:"playlist_id"`
		VideoIDs   stringList `json:"video_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if body.PlaylistID == "" || len(body.VideoIDs) == 0 {
		writeError(w, http.StatusBadRequest, "playlist_id and video_ids required")
		return
	}

	wanted := map[string]bool{}
	for _, id := range body.VideoIDs {
		wanted[id] = true
	}

	deleted := 0
	found := false
	h.Store.Update(func(data *models.Catalog) error {
		pl, ok := data.Playlists[body.PlaylistID]
		if !ok {
			return nil
		}
		found = true
		for _, v := range pl.Videos {
			if !wanted[v.ID] || v.FilePath == "" {
				continue
			}
			if err := os.Remove(v.FilePath); err == nil {
				deleted++
			}
			v.Downloaded = false
			v.FilePath = ""
			v.Quality = ""
			v.AudioOnly = false
		}
		return nil
	})
	if !found {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// Download validates the request and enqueues one job per video id.
// Bad parameters never reach the job system.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req models.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.PlaylistID == "" || len(req.VideoIDs) == 0 {
		writeError(w, http.StatusBadRequest, "playlist_id and video_ids required")
		return
	}
	if req.Quality == "" {
		req.Quality = "best"
	}

	data := h.Store.Load()
	titles := map[string]string{}
	if pl, ok := data.Playlists[req.PlaylistID]; ok {
		for _, v := range pl.Videos {
			titles[v.ID] = v.Title
		}
	}

	jobIDs := make([]string, 0, len(req.VideoIDs))
	for _, vid := range req.VideoIDs {
		title, ok := titles[vid]
		if !ok {
			title = vid
		}
		jobIDs = append(jobIDs, h.Manager.Enqueue(req.PlaylistID, vid, title, req.Quality, req.AudioOnly))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobIDs})
}

// Jobs lists every job snapshot in enqueue order.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.Manager.List()})
}

// JobsClear drops all terminal jobs from the table.
func (h *Handler) JobsClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": h.Manager.ClearFinished()})
}

// Settings handles GET /api/settings.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.Load().Settings)
}

// SettingsUpdate merges the provided fields into the stored settings.
func (h *Handler) SettingsUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var body struct {
		Threads     *int    `json:"threads"`
		DownloadDir *string `json:"download_dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var updated models.Settings
	h.Store.Update(func(data *models.Catalog) error {
		if body.Threads != nil && *body.Threads > 0 {
			data.Settings.Threads = *body.Threads
		}
		if body.DownloadDir != nil && *body.DownloadDir != "" {
			data.Settings.DownloadDir = *body.DownloadDir
		}
		updated = data.Settings
		return nil
	})
	writeJSON(w, http.StatusOK, updated)
}

// Stream serves a downloaded media file. http.ServeFile handles Range
// requests, so players can seek.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 4 { // api/stream/{pl}/{vid}
		writeError(w, http.StatusBadRequest, "Bad stream URL")
		return
	}
	plID, vidID := parts[2], parts[3]

	data := h.Store.Load()
	pl, ok := data.Playlists[plID]
	if !ok {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}
	video := pl.FindVideo(vidID)
	if video == nil || video.FilePath == "" {
		writeError(w, http.StatusNotFound, "Not downloaded")
		return
	}
	if _, err := os.Stat(video.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "File missing on disk")
		return
	}

	if mime, ok := mimeMap[strings.ToLower(filepath.Ext(video.FilePath))]; ok {
		w.Header().Set("Content-Type", mime)
	}
	http.ServeFile(w, r, video.FilePath)
}

// Thumb serves a cached thumbnail, fetching it upstream on first use.
func (h *Handler) Thumb(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	path, err := h.Thumbs.Get(videoID)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

// ThumbsPrefetch warms the thumbnail cache for a comma-separated id
// list in the background.
func (h *Handler) ThumbsPrefetch(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	h.Thumbs.Prefetch(ids)
	writeJSON(w, http.StatusOK, map[string]int{"queued": len(ids)})
}

// VideoFormats probes the available quality labels for a single video.
func (h *Handler) VideoFormats(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("video_id")
	if !videoIDRegex.MatchString(videoID) {
		writeError(w, http.StatusBadRequest, "Invalid Video ID")
		return
	}

	client := youtube.Client{}
	video, err := client.GetVideoContext(r.Context(), videoID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not fetch video info")
		return
	}

	qualityMap := make(map[int]string)
	for _, f := range video.Formats {
		if strings.Contains(f.MimeType, "video") && f.QualityLabel != "" {
			if height := parseHeight(f.QualityLabel); height > 0 {
				qualityMap[height] = formatQualityLabel(f.QualityLabel)
			}
		}
	}

	var heights []int
	for height := range qualityMap {
		heights = append(heights, height)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	qualities := make([]string, 0, len(heights))
	for _, height := range heights {
		qualities = append(qualities, qualityMap[height])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"qualities": qualities,
		"title":     video.Title,
	})
}

var qualityLabelRe = regexp.MustCompile(`^(\d+p)(\d+)?$`)

// formatQualityLabel turns "1080p60" into "1080p 60fps".
func formatQualityLabel(q string) string {
	matches := qualityLabelRe.FindStringSubmatch(q)
	if len(matches) > 1 {
		if len(matches) > 2 && matches[2] != "" {
			return fmt.Sprintf("%s %sfps", matches[1], matches[2])
		}
		return matches[1]
	}
	return q
}

func parseHeight(q string) int {
	digits := ""
	for _, c := range q {
		if c >= '0' && c <= '9' {
			digits += string(c)
		} else if digits != "" {
			break
		}
	}
	val, _ := strconv.Atoi(digits)
	return val
}
