package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ytsync-server/internal/catalog"
	"ytsync-server/internal/models"
)

// fakeStreamer stands in for the yt-dlp subprocess. It emits scripted
// lines per video id and can hold jobs "running" until released.
type fakeStreamer struct {
	mu        sync.Mutex
	active    int
	maxActive int
	started   []string

	lines   map[string][]string
	errs    map[string]error
	panics  map[string]bool
	release chan struct{} // nil = finish immediately
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		lines:  map[string][]string{},
		errs:   map[string]error{},
		panics: map[string]bool{},
	}
}

// videoIDFromArgs digs the video id out of the trailing watch URL.
func videoIDFromArgs(args []string) string {
	url := args[len(args)-1]
	return url[strings.LastIndex(url, "=")+1:]
}

func (f *fakeStreamer) Stream(ctx context.Context, args []string, onLine func(string)) error {
	vid := videoIDFromArgs(args)

	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.started = append(f.started, vid)
	release := f.release
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.panics[vid] {
		panic("scripted panic")
	}

	for _, line := range f.lines[vid] {
		onLine(line)
	}

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return f.errs[vid]
}

type poolFixture struct {
	manager  *Manager
	store    *catalog.Store
	streamer *fakeStreamer
	pool     *Pool
	dir      string
}

func newPoolFixture(t *testing.T, videoIDs ...string) *poolFixture {
	t.Helper()
	dir := t.TempDir()
	store := catalog.NewStore(filepath.Join(dir, "data.json"), dir, 3)

	videos := make([]*models.Video, 0, len(videoIDs))
	for _, id := range videoIDs {
		videos = append(videos, &models.Video{ID: id, Title: "Video " + id})
	}
	if err := store.Update(func(data *models.Catalog) error {
		data.Playlists["pl1"] = &models.Playlist{ID: "pl1", Title: "P", Videos: videos}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	manager := NewManager()
	streamer := newFakeStreamer()
	return &poolFixture{
		manager:  manager,
		store:    store,
		streamer: streamer,
		pool:     NewPool(manager, store, streamer, dir, ""),
		dir:      dir,
	}
}

func waitStatus(t *testing.T, m *Manager, id string, want models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := m.Get(id); ok && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := m.Get(id)
	t.Fatalf("job %s never reached %s, last: %+v", id, want, job)
	return nil
}

func TestPool_ConcurrencyBound(t *testing.T) {
	fx := newPoolFixture(t, "vid0", "vid1", "vid2", "vid3", "vid4")
	fx.streamer.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 2)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, fx.manager.Enqueue("pl1", fmt.Sprintf("vid%d", i), "T", "best", false))
	}

	waitStatus(t, fx.manager, ids[0], models.StatusRunning)
	waitStatus(t, fx.manager, ids[1], models.StatusRunning)

	// Give the pool a chance to (wrongly) start more.
	time.Sleep(50 * time.Millisecond)

	running, queued := fx.manager.Counts()
	if running != 2 || queued != 3 {
		t.Fatalf("running=%d queued=%d, want 2/3", running, queued)
	}

	fx.streamer.mu.Lock()
	maxActive := fx.streamer.maxActive
	fx.streamer.mu.Unlock()
	if maxActive > 2 {
		t.Errorf("maxActive = %d, want <= pool size 2", maxActive)
	}

	// The waiting jobs expose contiguous positions 1..3.
	pos := map[int]bool{}
	for _, id := range ids[2:] {
		job, _ := fx.manager.Get(id)
		if job.Status != models.StatusQueued {
			t.Errorf("job %s status = %s, want queued", id, job.Status)
		}
		pos[job.QueuePos] = true
	}
	for want := 1; want <= 3; want++ {
		if !pos[want] {
			t.Errorf("missing queue position %d (have %v)", want, pos)
		}
	}

	close(fx.streamer.release)
	for _, id := range ids {
		waitStatus(t, fx.manager, id, models.StatusDone)
	}
}

func TestPool_FIFOAdmission(t *testing.T) {
	fx := newPoolFixture(t, "vid0", "vid1", "vid2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, fx.manager.Enqueue("pl1", fmt.Sprintf("vid%d", i), "T", "best", false))
	}
	for _, id := range ids {
		waitStatus(t, fx.manager, id, models.StatusDone)
	}

	fx.streamer.mu.Lock()
	started := append([]string(nil), fx.streamer.started...)
	fx.streamer.mu.Unlock()

	want := []string{"vid0", "vid1", "vid2"}
	if len(started) != len(want) {
		t.Fatalf("started %v, want %v", started, want)
	}
	for i := range want {
		if started[i] != want[i] {
			t.Fatalf("admission order %v, want %v", started, want)
		}
	}
}

func TestPool_PlaylistGone_NoSubprocess(t *testing.T) {
	fx := newPoolFixture(t, "vid0")

	id := fx.manager.Enqueue("missing-pl", "vid0", "T", "best", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	job := waitStatus(t, fx.manager, id, models.StatusError)
	if job.Error != "Playlist not found" {
		t.Errorf("error = %q, want Playlist not found", job.Error)
	}
	if job.Started == nil || job.Finished == nil {
		t.Error("terminal job must carry both timestamps")
	}

	fx.streamer.mu.Lock()
	defer fx.streamer.mu.Unlock()
	if len(fx.streamer.started) != 0 {
		t.Error("no subprocess may launch for a vanished playlist")
	}
}

func TestPool_SubprocessFailure_LastLineHint(t *testing.T) {
	fx := newPoolFixture(t, "vid0", "vid1")
	fx.streamer.lines["vid0"] = []string{
		"[youtube] vid0: Downloading webpage",
		"ERROR: Video unavailable",
		"",
	}
	fx.streamer.errs["vid0"] = &exec.ExitError{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	failed := fx.manager.Enqueue("pl1", "vid0", "T", "best", false)
	next := fx.manager.Enqueue("pl1", "vid1", "T", "best", false)

	job := waitStatus(t, fx.manager, failed, models.StatusError)
	if job.Error != "ERROR: Video unavailable" {
		t.Errorf("error = %q, want last non-blank log line", job.Error)
	}

	// The worker survives and picks up the next job.
	waitStatus(t, fx.manager, next, models.StatusDone)
}

func TestPool_LaunchFailure_ErrorMessage(t *testing.T) {
	fx := newPoolFixture(t, "vid0")
	fx.streamer.errs["vid0"] = errors.New(`launch yt-dlp: executable file not found in $PATH`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	id := fx.manager.Enqueue("pl1", "vid0", "T", "best", false)
	job := waitStatus(t, fx.manager, id, models.StatusError)
	if !strings.Contains(job.Error, "executable file not found") {
		t.Errorf("error = %q, want launch error text", job.Error)
	}
}

func TestPool_PanicIsolated(t *testing.T) {
	fx := newPoolFixture(t, "vid0", "vid1")
	fx.streamer.panics["vid0"] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	bad := fx.manager.Enqueue("pl1", "vid0", "T", "best", false)
	good := fx.manager.Enqueue("pl1", "vid1", "T", "best", false)

	job := waitStatus(t, fx.manager, bad, models.StatusError)
	if job.Error != "internal error" {
		t.Errorf("error = %q", job.Error)
	}
	waitStatus(t, fx.manager, good, models.StatusDone)
}

func TestPool_Success_DestinationCapture_AndReconcile(t *testing.T) {
	fx := newPoolFixture(t, "vid0")

	outDir := filepath.Join(fx.dir, "pl1")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatal(err)
	}
	outFile := filepath.Join(outDir, "Video vid0 [vid0].mp4")
	if err := os.WriteFile(outFile, []byte("media"), 0644); err != nil {
		t.Fatal(err)
	}

	fx.streamer.lines["vid0"] = []string{
		"[download]  42.5% of ~10.00MiB at 512.00KiB/s ETA 00:20",
		fmt.Sprintf("[download] Destination: %s", outFile),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	id := fx.manager.Enqueue("pl1", "vid0", "T", "720p", false)
	job := waitStatus(t, fx.manager, id, models.StatusDone)

	if job.File != outFile {
		t.Errorf("job file = %q, want %q", job.File, outFile)
	}
	if job.Progress != 100 || job.Phase != models.PhaseDone {
		t.Errorf("job = %+v", job)
	}

	// Reconciled into the catalog.
	data := fx.store.Load()
	v := data.Playlists["pl1"].FindVideo("vid0")
	if v == nil {
		t.Fatal("video missing from catalog")
	}
	if !v.Downloaded || v.FilePath != outFile {
		t.Errorf("video not reconciled: %+v", v)
	}
	if v.Quality != "720p" || v.AudioOnly {
		t.Errorf("video selection not recorded: %+v", v)
	}
}

func TestPool_Success_FallbackFileScan(t *testing.T) {
	fx := newPoolFixture(t, "vid0")

	outDir := filepath.Join(fx.dir, "pl1")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatal(err)
	}
	outFile := filepath.Join(outDir, "Some Song [vid0].mp3")
	if err := os.WriteFile(outFile, []byte("media"), 0644); err != nil {
		t.Fatal(err)
	}

	// No destination line at all: the runner falls back to scanning
	// the output directory for the video id.
	fx.streamer.lines["vid0"] = []string{"[ExtractAudio] done"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	id := fx.manager.Enqueue("pl1", "vid0", "T", "best", true)
	job := waitStatus(t, fx.manager, id, models.StatusDone)

	if job.File != outFile {
		t.Errorf("job file = %q, want fallback match %q", job.File, outFile)
	}
	if !strings.HasSuffix(job.File, ".mp3") {
		t.Errorf("audio job file = %q, want audio container", job.File)
	}

	v := fx.store.Load().Playlists["pl1"].FindVideo("vid0")
	if v == nil || !v.Downloaded || !v.AudioOnly {
		t.Errorf("audio download not reconciled: %+v", v)
	}
}

func TestPool_Success_NoFileResolved_CatalogUntouched(t *testing.T) {
	fx := newPoolFixture(t, "vid0")

	// No destination line and nothing on disk to fall back to.
	fx.streamer.lines["vid0"] = []string{"[download] 100% of 3.52MiB in 00:02"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	id := fx.manager.Enqueue("pl1", "vid0", "T", "best", false)
	job := waitStatus(t, fx.manager, id, models.StatusDone)
	if job.File != "" {
		t.Errorf("job file = %q, want empty", job.File)
	}

	// A video is downloaded iff it has a file path; with no file the
	// catalog entry must stay pristine.
	v := fx.store.Load().Playlists["pl1"].FindVideo("vid0")
	if v == nil {
		t.Fatal("video missing from catalog")
	}
	if v.Downloaded || v.FilePath != "" || v.Quality != "" {
		t.Errorf("catalog mutated without a file: %+v", v)
	}
}

func TestPool_PlaylistDeletedMidJob_StillDone(t *testing.T) {
	fx := newPoolFixture(t, "vid0")
	fx.streamer.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.pool.Start(ctx, 1)

	id := fx.manager.Enqueue("pl1", "vid0", "T", "best", false)
	waitStatus(t, fx.manager, id, models.StatusRunning)

	// Delete the playlist while the subprocess is "running".
	if err := fx.store.Update(func(data *models.Catalog) error {
		delete(data.Playlists, "pl1")
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	close(fx.streamer.release)

	// Best effort: the job still completes, reconciliation is skipped.
	job := waitStatus(t, fx.manager, id, models.StatusDone)
	if job.Error != "" {
		t.Errorf("unexpected error: %q", job.Error)
	}
	if _, ok := fx.store.Load().Playlists["pl1"]; ok {
		t.Error("playlist should stay deleted")
	}
}
