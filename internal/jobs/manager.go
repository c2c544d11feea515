package jobs

import (
	"strings"
	"sync"
	"time"

	"ytsync-server/internal/models"

	"github.com/google/uuid"
)

// Manager is the in-memory job table plus the FIFO admission queue.
// One mutex guards every mutation and the queue-position recompute.
// It is deliberately separate from the catalog store's lock: a running
// job touches this table on every output line but the catalog only
// once, on success, and coupling them would serialize unrelated work.
type Manager struct {
	mu    sync.Mutex
	jobs  map[string]*models.Job
	order []string // insertion order, keeps queue positions contiguous
	queue chan string
}

// queueCapacity bounds how many jobs can wait for a worker. Practical
// playlist sizes stay far below this.
const queueCapacity = 4096

func NewManager() *Manager {
	return &Manager{
		jobs:  make(map[string]*models.Job),
		queue: make(chan string, queueCapacity),
	}
}

// Enqueue registers a new queued job and pushes its id onto the
// admission queue. Returns the job id.
func (m *Manager) Enqueue(playlistID, videoID, title, quality string, audioOnly bool) string {
	id := uuid.New().String()[:8]

	m.mu.Lock()
	m.jobs[id] = &models.Job{
		ID:         id,
		PlaylistID: playlistID,
		VideoID:    videoID,
		Title:      title,
		Quality:    quality,
		AudioOnly:  audioOnly,
		Status:     models.StatusQueued,
		Phase:      models.PhaseQueued,
		Log:        []string{},
	}
	m.order = append(m.order, id)
	m.recomputePositions()
	m.mu.Unlock()

	m.queue <- id
	return id
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (*models.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// List returns snapshots of all jobs in enqueue order.
func (m *Manager) List() []*models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Job, 0, len(m.order))
	for _, id := range m.order {
		if job, ok := m.jobs[id]; ok {
			out = append(out, job.Clone())
		}
	}
	return out
}

// ClearFinished drops all terminal jobs and returns how many went.
func (m *Manager) ClearFinished() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := 0
	kept := m.order[:0]
	for _, id := range m.order {
		job, ok := m.jobs[id]
		if ok && job.Status.IsTerminal() {
			delete(m.jobs, id)
			cleared++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	m.recomputePositions()
	return cleared
}

// Counts returns how many jobs are running and queued right now.
func (m *Manager) Counts() (running, queued int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		switch job.Status {
		case models.StatusRunning:
			running++
		case models.StatusQueued:
			queued++
		}
	}
	return
}

// recomputePositions reassigns 1..n to the still-queued jobs in enqueue
// order. Called under the lock after every status change; an O(n) pass
// keeps the positions contiguous without a separate counter.
func (m *Manager) recomputePositions() {
	pos := 1
	for _, id := range m.order {
		job, ok := m.jobs[id]
		if !ok {
			continue
		}
		if job.Status == models.StatusQueued {
			job.QueuePos = pos
			pos++
		}
	}
}

// markRunning flips a job to running and stamps the start time.
func (m *Manager) markRunning(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.Status = models.StatusRunning
	job.Started = &now
	job.Phase = models.PhaseStarting
	job.QueuePos = 0
	m.recomputePositions()
}

// markDone records a successful finish and the resolved file path.
func (m *Manager) markDone(id, file string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.Status = models.StatusDone
	job.Progress = 100
	job.Speed = ""
	job.ETA = ""
	job.Phase = models.PhaseDone
	job.File = file
	job.Finished = &now
	m.recomputePositions()
}

// markError records a terminal failure with a human-readable message.
func (m *Manager) markError(id, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.Status = models.StatusError
	job.Error = msg
	job.Finished = &now
	m.recomputePositions()
}

// lastLogHint picks the most recent non-blank log line as the error
// message; yt-dlp usually prints the real failure last.
func (m *Manager) lastLogHint(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ""
	}
	for i := len(job.Log) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(job.Log[i]); line != "" {
			return line
		}
	}
	return ""
}
