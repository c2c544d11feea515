package downloader

import (
	"regexp"
	"strconv"
	"strings"
)

// Progress is one structured signal extracted from a yt-dlp output line.
type Progress struct {
	Pct   float64
	Size  string
	Speed string
	ETA   string
}

var (
	progressRe = regexp.MustCompile(`\[download\]\s+([\d.]+)%\s+of\s+~?\s*([\d.]+\s*\S+)\s+at\s+([\d.]+\s*\S+/s)\s+ETA\s+([\d:]+)`)
	destRe     = regexp.MustCompile(`(?:Destination:|Merging formats into)\s+"?([^"\n]+)"?`)
)

// ParseLine extracts a progress signal from one line of yt-dlp output.
// Lines that match nothing simply carry no signal; that is not an error.
func ParseLine(line string) (Progress, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Progress{}, false
	}
	return Progress{
		Pct:   pct,
		Size:  strings.TrimSpace(m[2]),
		Speed: strings.TrimSpace(m[3]),
		ETA:   strings.TrimSpace(m[4]),
	}, true
}

// ParseDestination extracts the announced output file path from a
// destination or format-merge line.
func ParseDestination(line string) (string, bool) {
	m := destRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	path := strings.TrimSpace(m[1])
	path = strings.Trim(path, `"'`)
	return path, true
}
