package jobs

import (
	"context"
	"log"

	"ytsync-server/internal/catalog"
	"ytsync-server/internal/downloader"
)

// Pool runs a fixed set of long-lived workers over the admission queue.
// The pool size is the system's only backpressure: at most N extraction
// subprocesses run at once, everything else waits in queued state with
// a visible position. No priorities, no work stealing.
type Pool struct {
	manager        *Manager
	store          *catalog.Store
	streamer       downloader.LineStreamer
	downloadDir    string
	ffmpegLocation string
}

func NewPool(m *Manager, store *catalog.Store, streamer downloader.LineStreamer, downloadDir, ffmpegLocation string) *Pool {
	return &Pool{
		manager:        m,
		store:          store,
		streamer:       streamer,
		downloadDir:    downloadDir,
		ffmpegLocation: ffmpegLocation,
	}
}

// Start launches n workers. Each blocks on the queue, runs one job to
// completion, then loops; a failed job never takes its worker down.
func (p *Pool) Start(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.manager.queue:
			p.safeRun(ctx, id)
		}
	}
}

// safeRun shields the worker loop from anything a single job does,
// panics included.
func (p *Pool) safeRun(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Job %s panicked: %v", id, r)
			p.manager.markError(id, "internal error")
		}
	}()
	p.run(ctx, id)
}
