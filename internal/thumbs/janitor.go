package thumbs

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// StartJanitor periodically drops cached thumbnails older than ttl so
// the cache directory can't grow without bound.
func StartJanitor(dir string, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)

	go func() {
		for range ticker.C {
			log.Println("🧹 Janitor: Pruning thumbnail cache...")

			entries, err := os.ReadDir(dir)
			if err != nil {
				log.Printf("❌ Janitor Error: Could not read cache dir: %v", err)
				continue
			}

			cutoff := time.Now().Add(-ttl)
			removed := 0
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				info, err := entry.Info()
				if err != nil {
					continue
				}
				if info.ModTime().Before(cutoff) {
					if os.Remove(filepath.Join(dir, entry.Name())) == nil {
						removed++
					}
				}
			}

			log.Printf("✅ Janitor: Removed %d stale thumbnails.", removed)
		}
	}()
}
