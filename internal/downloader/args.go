package downloader

import (
	"fmt"
	"path/filepath"
)

// WatchURLTemplate builds the canonical watch URL for a video id.
const WatchURLTemplate = "https://www.youtube.com/watch?v=%s"

// formatMap: quality tier -> yt-dlp format selector. Unknown tiers fall
// back to "best".
var formatMap = map[string]string{
	"best":  "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
	"1080p": "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080]",
	"720p":  "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/best[height<=720]",
	"480p":  "bestvideo[height<=480][ext=mp4]+bestaudio[ext=m4a]/best[height<=480]",
	"360p":  "bestvideo[height<=360][ext=mp4]+bestaudio[ext=m4a]/best[height<=360]",
}

// BuildArgs assembles the fixed yt-dlp invocation for one video.
// The output template embeds title and id so the file can be found
// again if the destination line is missed.
func BuildArgs(videoID, quality string, audioOnly bool, outDir, ffmpegLocation string) []string {
	url := fmt.Sprintf(WatchURLTemplate, videoID)
	args := []string{"--no-playlist"}

	if audioOnly {
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", "0")
	} else {
		sel, ok := formatMap[quality]
		if !ok {
			sel = formatMap["best"]
		}
		args = append(args, "-f", sel, "--merge-output-format", "mp4")
	}

	tmpl := filepath.Join(outDir, "%(title)s [%(id)s].%(ext)s")
	if ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", ffmpegLocation)
	}
	args = append(args,
		"-o", tmpl,
		"--write-info-json", "--no-write-playlist-metafiles",
		"--progress", "--newline",
		url,
	)
	return args
}
