package catalog

import (
	"encoding/json"
	"log"
	"os"
	"sync"

	"ytsync-server/internal/models"
)

// Store owns the durable catalog file. Every mutation goes through
// Update, which holds the store lock for the whole load-modify-save
// cycle so concurrent writers can't clobber each other. This lock is
// never shared with (or nested inside) the job table's lock.
type Store struct {
	mu          sync.Mutex
	path        string
	downloadDir string
	threads     int
}

func NewStore(path, downloadDir string, threads int) *Store {
	return &Store{
		path:        path,
		downloadDir: downloadDir,
		threads:     threads,
	}
}

// Load returns the current catalog. A missing or malformed data file
// yields an empty catalog — the catalog is not on the job-execution
// critical path and must never take the server down.
func (s *Store) Load() *models.Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update runs fn on the freshly loaded catalog and persists the result,
// all under the store's exclusive section. If fn returns an error the
// catalog is not saved.
func (s *Store) Update(fn func(*models.Catalog) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	if err := fn(data); err != nil {
		return err
	}
	return s.save(data)
}

func (s *Store) load() *models.Catalog {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ Catalog read failed, starting empty: %v", err)
		}
		return models.NewCatalog(s.downloadDir, s.threads)
	}

	var data models.Catalog
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("⚠️ Catalog malformed, starting empty: %v", err)
		return models.NewCatalog(s.downloadDir, s.threads)
	}
	if data.Playlists == nil {
		data.Playlists = map[string]*models.Playlist{}
	}
	return &data
}

func (s *Store) save(data *models.Catalog) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0644)
}
