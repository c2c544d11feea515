package downloader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// LineStreamer runs the external extraction tool and feeds its combined
// output to onLine, one line at a time. The free-text stream is the only
// progress channel yt-dlp offers.
type LineStreamer interface {
	Stream(ctx context.Context, args []string, onLine func(line string)) error
}

// Engine is the real subprocess-backed streamer.
type Engine struct {
	YtdlpPath string
}

func NewEngine(ytdlpPath string) *Engine {
	return &Engine{YtdlpPath: ytdlpPath}
}

// Stream launches yt-dlp and blocks until it exits, streaming merged
// stdout/stderr line-by-line. Most of a job's wall-clock time is spent
// blocked in the scanner read here.
func (e *Engine) Stream(ctx context.Context, args []string, onLine func(line string)) error {
	cmd := exec.CommandContext(ctx, e.YtdlpPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	// Merge stderr into the same pipe; yt-dlp interleaves progress and
	// diagnostics across both.
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", e.YtdlpPath, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(strings.TrimRight(scanner.Text(), "\r"))
	}

	if scanErr := scanner.Err(); scanErr != nil {
		// The scanner gave up (e.g. a line over the buffer cap). Keep
		// draining the pipe so the child can exit instead of blocking
		// on a full pipe forever, then report the read failure.
		io.Copy(io.Discard, stdout)
		cmd.Wait()
		return fmt.Errorf("read output: %w", scanErr)
	}

	return cmd.Wait()
}
