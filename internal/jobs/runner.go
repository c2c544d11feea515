package jobs

import (
	"context"
	"errors"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"ytsync-server/internal/downloader"
	"ytsync-server/internal/models"
)

// run drives one job through its whole lifecycle:
// queued → running → done|error. Mutates only this job's record (via the
// manager) and, on success, the catalog — never the other way around.
func (p *Pool) run(ctx context.Context, id string) {
	p.manager.markRunning(id)

	job, ok := p.manager.Get(id)
	if !ok {
		return
	}

	// Validation gate: the playlist may have been deleted between
	// enqueue and execution. No subprocess in that case.
	data := p.store.Load()
	if _, exists := data.Playlists[job.PlaylistID]; !exists {
		p.manager.markError(id, "Playlist not found")
		return
	}

	outDir := filepath.Join(p.downloadDir, job.PlaylistID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		p.manager.markError(id, err.Error())
		return
	}

	args := downloader.BuildArgs(job.VideoID, job.Quality, job.AudioOnly, outDir, p.ffmpegLocation)
	log.Printf("[Job %s] Running: yt-dlp %s", id, strings.Join(args, " "))

	var outputFile string
	err := p.streamer.Stream(ctx, args, func(line string) {
		if dest, found := p.manager.applyLine(id, line); found {
			outputFile = dest
		}
	})

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			hint := p.manager.lastLogHint(id)
			if hint == "" {
				hint = "yt-dlp error"
			}
			p.manager.markError(id, hint)
		} else {
			p.manager.markError(id, err.Error())
		}
		return
	}

	if outputFile == "" || !fileExists(outputFile) {
		outputFile = downloader.FindOutputFile(outDir, job.VideoID)
	}

	p.manager.markDone(id, outputFile)
	p.reconcile(job, outputFile)
}

// reconcile writes the download result back into the catalog. Best
// effort: if the playlist or video vanished mid-job the update is
// silently skipped and the job still reports done. A video is marked
// downloaded only with a real file path; if even the fallback scan
// came up empty the catalog stays untouched.
func (p *Pool) reconcile(job *models.Job, outputFile string) {
	if outputFile == "" {
		return
	}
	err := p.store.Update(func(data *models.Catalog) error {
		pl, ok := data.Playlists[job.PlaylistID]
		if !ok {
			return nil
		}
		if v := pl.FindVideo(job.VideoID); v != nil {
			v.Downloaded = true
			v.FilePath = outputFile
			v.Quality = job.Quality
			v.AudioOnly = job.AudioOnly
		}
		return nil
	})
	if err != nil {
		log.Printf("⚠️ Job %s: catalog update failed: %v", job.ID, err)
	}
}

// applyLine folds one subprocess output line into the job record:
// rolling log, progress signal, phase heuristics. Returns a captured
// destination path when the line announces one. Unrecognized lines just
// land in the log.
func (m *Manager) applyLine(id, line string) (dest string, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return "", false
	}

	job.Log = append(job.Log, line)
	if len(job.Log) > models.MaxLogLines {
		job.Log = job.Log[len(job.Log)-models.MaxLogLines:]
	}

	parsed, hasProgress := downloader.ParseLine(line)
	if hasProgress {
		job.Progress = parsed.Pct
		job.Speed = parsed.Speed
		job.ETA = parsed.ETA
		job.Size = parsed.Size
	}

	low := strings.ToLower(line)
	if strings.Contains(line, "[download]") {
		switch {
		case strings.Contains(low, "audio"):
			job.Phase = models.PhaseAudio
		case strings.Contains(low, "video"):
			job.Phase = models.PhaseVideo
		case hasProgress && (job.Phase == models.PhaseStarting || job.Phase == models.PhaseQueued):
			job.Phase = models.PhaseDownloading
		}
	}
	if strings.Contains(low, "[merger]") {
		job.Phase = models.PhaseMerging
		job.Progress = 99.0
		job.Speed = ""
		job.ETA = ""
	}
	if strings.Contains(low, "[extractaudio]") {
		job.Phase = models.PhaseConverting
		job.Progress = 99.0
		job.Speed = ""
		job.ETA = ""
	}

	return downloader.ParseDestination(line)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
