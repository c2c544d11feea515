package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all server settings in correct types
type Config struct {
	Port           string
	Threads        int
	BaseDir        string
	DataFile       string
	DownloadDir    string
	ThumbCacheDir  string
	ThumbCacheTTL  time.Duration
	YtdlpPath      string
	FFmpegLocation string
}

// Load: The only way to get config in the app
func Load() *Config {
	base := getEnv("BASE_DIR", "YTSync")

	cfg := &Config{
		Port:           getEnv("PORT", ":7777"),
		Threads:        getEnvAsInt("THREADS", 3),
		BaseDir:        base,
		DataFile:       filepath.Join(base, "data.json"),
		DownloadDir:    getEnv("DOWNLOAD_DIR", filepath.Join(base, "downloads")),
		ThumbCacheDir:  getEnv("THUMB_CACHE_DIR", filepath.Join(base, "thumb_cache")),
		ThumbCacheTTL:  time.Duration(getEnvAsInt("THUMB_CACHE_TTL_HOURS", 168)) * time.Hour,
		YtdlpPath:      getEnv("YTDLP_PATH", "yt-dlp"),
		FFmpegLocation: getEnv("FFMPEG_LOCATION", "ffmpeg"),
	}

	// 🛡️ Post-load Validation
	validate(cfg)

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	str := getEnv(key, "")
	if val, err := strconv.Atoi(str); err == nil {
		return val
	}
	return fallback
}

// validate ensures the server won't crash due to misconfiguration
func validate(cfg *Config) {
	if cfg.Threads < 1 {
		log.Println("⚠️ Warning: THREADS must be at least 1. Resetting to 3.")
		cfg.Threads = 3
	}
	if cfg.Port != "" && cfg.Port[0] != ':' {
		cfg.Port = ":" + cfg.Port
	}
}
