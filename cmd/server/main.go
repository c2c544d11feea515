package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"ytsync-server/internal/api"
	"ytsync-server/internal/catalog"
	"ytsync-server/internal/config"
	"ytsync-server/internal/downloader"
	"ytsync-server/internal/jobs"
	"ytsync-server/internal/server"
	"ytsync-server/internal/thumbs"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	// 1. Filesystem
	if err := server.PrepareFilesystem(cfg); err != nil {
		log.Fatalf(">>> ❌ Error preparing filesystem: %v", err)
	}

	// 2. Catalog store + thread count (saved settings win over env default)
	store := catalog.NewStore(cfg.DataFile, cfg.DownloadDir, cfg.Threads)
	threads := cfg.Threads
	if saved := store.Load().Settings.Threads; saved > 0 {
		threads = saved
	}

	if !downloader.CheckYtdlp(cfg.YtdlpPath) {
		log.Println(">>> ⚠️ yt-dlp not found on PATH. Install: pip install yt-dlp")
	}

	// 3. Job table + worker pool
	manager := jobs.NewManager()
	engine := downloader.NewEngine(cfg.YtdlpPath)
	pool := jobs.NewPool(manager, store, engine, cfg.DownloadDir, cfg.FFmpegLocation)
	pool.Start(context.Background(), threads)

	// 4. Thumbnail cache + janitor
	thumbCache := thumbs.NewCache(cfg.ThumbCacheDir)
	thumbs.StartJanitor(cfg.ThumbCacheDir, cfg.ThumbCacheTTL)

	// 5. Router with middleware
	fetcher := &downloader.YtdlpFetcher{YtdlpPath: cfg.YtdlpPath}
	handler := api.NewHandler(manager, store, fetcher, thumbCache, cfg)
	router := api.NewRouter(handler)

	fmt.Println(">>> 🏭 YT-Sync Server Started")
	fmt.Printf(">>> ⚡ Port: %s\n", cfg.Port)
	fmt.Printf(">>> 📂 Downloads: %s\n", cfg.DownloadDir)
	fmt.Printf(">>> 🧵 Threads: %d concurrent downloads\n", threads)

	// 6. Start
	log.Fatal(http.ListenAndServe(cfg.Port, router))
}
