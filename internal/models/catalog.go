package models

// Settings: user-tunable knobs persisted alongside the playlists.
type Settings struct {
	Threads     int    `json:"threads"`
	DownloadDir string `json:"download_dir"`
}

// Catalog is the full durable state: every playlist plus settings.
// It is only ever mutated through the catalog store's exclusive
// load-modify-save cycle.
type Catalog struct {
	Playlists map[string]*Playlist `json:"playlists"`
	Settings  Settings             `json:"settings"`
}

// NewCatalog returns an empty catalog with sane defaults.
func NewCatalog(downloadDir string, threads int) *Catalog {
	return &Catalog{
		Playlists: map[string]*Playlist{},
		Settings: Settings{
			Threads:     threads,
			DownloadDir: downloadDir,
		},
	}
}
