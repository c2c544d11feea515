package thumbs

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// ThumbURLTemplate is the upstream thumbnail location for a video id.
const ThumbURLTemplate = "https://i.ytimg.com/vi/%s/mqdefault.jpg"

// MaxPrefetch bounds how many thumbnails one prefetch request may fan
// out to.
const MaxPrefetch = 50

var videoIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Cache fetches thumbnails once and serves them from disk afterwards.
// Fetches run outside the catalog and job locks entirely.
type Cache struct {
	dir         string
	client      *http.Client
	urlTemplate string
}

func NewCache(dir string) *Cache {
	return &Cache{
		dir:         dir,
		client:      &http.Client{Timeout: 15 * time.Second},
		urlTemplate: ThumbURLTemplate,
	}
}

// Get returns the local path of the cached thumbnail, downloading it on
// first use. Invalid ids are rejected before touching the network.
func (c *Cache) Get(videoID string) (string, error) {
	if !videoIDRe.MatchString(videoID) {
		return "", fmt.Errorf("invalid video id")
	}

	path := filepath.Join(c.dir, videoID+".jpg")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := c.fetch(videoID, path); err != nil {
		return "", err
	}
	return path, nil
}

// Prefetch warms the cache for a batch of ids in the background and
// returns immediately.
func (c *Cache) Prefetch(videoIDs []string) {
	if len(videoIDs) > MaxPrefetch {
		videoIDs = videoIDs[:MaxPrefetch]
	}

	go func() {
		var wg sync.WaitGroup
		for _, id := range videoIDs {
			if !videoIDRe.MatchString(id) {
				continue
			}
			path := filepath.Join(c.dir, id+".jpg")
			if _, err := os.Stat(path); err == nil {
				continue
			}
			wg.Add(1)
			go func(id, path string) {
				defer wg.Done()
				c.fetch(id, path)
			}(id, path)
		}
		wg.Wait()
	}()
}

func (c *Cache) fetch(videoID, path string) error {
	resp, err := c.client.Get(fmt.Sprintf(c.urlTemplate, videoID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("thumbnail fetch: %s", resp.Status)
	}

	// Unique temp name per fetch: concurrent fetches of the same id
	// must not interleave writes into one file. The rename is atomic,
	// so whichever finishes last wins whole.
	f, err := os.CreateTemp(c.dir, videoID+"-*.part")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
