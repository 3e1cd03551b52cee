package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// envelope wraps the snapshot on disk so foreign blobs are detected before
// their contents are trusted.
type envelope struct {
	Namespace string    `json:"namespace"`
	SavedAt   time.Time `json:"savedAt"`
	Snapshot  Snapshot  `json:"snapshot"`
}

// FileCache stores the snapshot as a single JSON blob, replaced atomically
// on every save via a temp-file rename.
type FileCache struct {
	path string
	mu   sync.Mutex
	log  zerolog.Logger
	now  func() time.Time
}

// FileOption customizes a FileCache.
type FileOption func(*FileCache)

// WithLogger routes write failures to the given logger.
func WithLogger(logger zerolog.Logger) FileOption {
	return func(c *FileCache) { c.log = logger }
}

// NewFileCache creates a cache backed by the blob at path. The file and its
// directory are created lazily on first save.
func NewFileCache(path string, opts ...FileOption) *FileCache {
	c := &FileCache{
		path: path,
		log:  zerolog.Nop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the blob location, e.g. for wiring a Watcher.
func (c *FileCache) Path() string { return c.path }

// Save writes the snapshot. Failures are logged and swallowed: in-memory
// state remains authoritative for the current runtime.
func (c *FileCache) Save(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(envelope{
		Namespace: Namespace,
		SavedAt:   c.now().UTC(),
		Snapshot:  snap,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("cache: encode snapshot")
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("cache: mkdir")
		return
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.log.Warn().Err(err).Str("path", tmp).Msg("cache: write snapshot")
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("cache: replace snapshot")
		_ = os.Remove(tmp)
	}
}

// Load returns the last saved snapshot, or the empty snapshot when the blob
// is missing, unreadable, or belongs to a different namespace.
func (c *FileCache) Load() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Debug().Err(err).Str("path", c.path).Msg("cache: read snapshot")
		}
		return Snapshot{}, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Debug().Err(err).Str("path", c.path).Msg("cache: corrupt snapshot ignored")
		return Snapshot{}, false
	}
	if env.Namespace != Namespace {
		c.log.Debug().Str("namespace", env.Namespace).Msg("cache: foreign snapshot ignored")
		return Snapshot{}, false
	}
	return env.Snapshot.Clone(), true
}

var _ Cache = (*FileCache)(nil)
