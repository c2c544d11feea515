package models

import (
	"time"
)

// JobStatus is the coarse lifecycle state of a download job.
type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusError   JobStatus = "error"
)

// IsTerminal reports whether a job has finished for good.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// Job phases: finer-grained substatus while a job is running.
const (
	PhaseQueued      = "queued"
	PhaseStarting    = "starting"
	PhaseDownloading = "downloading"
	PhaseAudio       = "audio"
	PhaseVideo       = "video"
	PhaseMerging     = "merging"
	PhaseConverting  = "converting"
	PhaseDone        = "done"
)

// MaxLogLines caps a job's rolling output log; oldest lines drop first.
const MaxLogLines = 60

// Job: tracks one download of a single video, end to end.
// Jobs live in memory only — a restart clears them; the catalog keeps
// the durable downloaded/file_path state.
type Job struct {
	ID         string     `json:"id"`
	PlaylistID string     `json:"playlist_id"`
	VideoID    string     `json:"video_id"`
	Title      string     `json:"title"`
	Quality    string     `json:"quality"`
	AudioOnly  bool       `json:"audio_only"`
	Status     JobStatus  `json:"status"`
	QueuePos   int        `json:"queue_pos"`
	Progress   float64    `json:"progress"`
	Speed      string     `json:"speed"`
	ETA        string     `json:"eta"`
	Size       string     `json:"size"`
	Phase      string     `json:"phase"`
	Log        []string   `json:"log"`
	Started    *time.Time `json:"started"`
	Finished   *time.Time `json:"finished"`
	File       string     `json:"file,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Clone returns a deep copy safe to hand out without the table's lock.
func (j *Job) Clone() *Job {
	c := *j
	c.Log = append([]string(nil), j.Log...)
	return &c
}

type DownloadRequest struct {
	PlaylistID string   `json:"playlist_id"`
	VideoIDs   []string `json:"video_ids"`
	Quality    string   `json:"quality"`
	AudioOnly  bool     `json:"audio_only"`
}
