package downloader

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// mediaExtensions are the container formats yt-dlp can leave behind.
// Sidecars (.info.json, .part) never match.
var mediaExtensions = map[string]bool{
	".mp4":  true,
	".mp3":  true,
	".webm": true,
	".mkv":  true,
	".m4a":  true,
}

// FindOutputFile is the fallback resolution strategy when the subprocess
// never announced a destination: scan the output directory for media
// files whose name contains the video id, newest first.
func FindOutputFile(outDir, videoID string) string {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return ""
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate

	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), videoID) {
			continue
		}
		if !mediaExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(outDir, entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}

	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})
	return candidates[0].path
}
