package server

import (
	"os"

	"ytsync-server/internal/config"
)

// PrepareFilesystem ensures necessary directories exist
func PrepareFilesystem(cfg *config.Config) error {
	dirs := []string{cfg.BaseDir, cfg.DownloadDir, cfg.ThumbCacheDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
