package devserver

import (
	"bytes"
	"encoding/hex"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/wolfeidau/bundlekit/internal/assets"
)

// snapshot is one published build. Snapshots are never modified after they
// are stored.
type snapshot struct {
	id       string
	hash     string
	files    map[string][]byte
	errors   []string
	warnings []string
	modTime  time.Time
}

// Store holds the latest bundle in memory.
type Store struct {
	mu   sync.RWMutex
	snap *snapshot
}

func NewStore() *Store {
	return &Store{snap: &snapshot{files: map[string][]byte{}}}
}

// Publish replaces the snapshot with out. A failed build keeps the previous
// files so the page can still load and show the errors. It returns the
// content hash, which only changes when the served bytes or errors change.
func (s *Store) Publish(out *assets.Output) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := &snapshot{
		id:       out.ID,
		files:    out.Files,
		errors:   assets.FormatErrors(out.Errors),
		warnings: assets.FormatWarnings(out.Warnings),
		modTime:  time.Now(),
	}
	if out.HasErrors() {
		next.files = s.snap.files
	}
	next.hash = contentHash(next)
	if !out.HasErrors() {
		next.files = stampPages(next.files, next.hash)
	}

	if next.hash == s.snap.hash {
		next.modTime = s.snap.modTime
	}
	s.snap = next
	return next.hash
}

// Get returns a file from the latest snapshot.
func (s *Store) Get(name string) ([]byte, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.snap.files[name]
	return data, s.snap.modTime, ok
}

// Errors returns the formatted errors of the latest build.
func (s *Store) Errors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.errors
}

// Failure returns the formatted errors of the latest build together with
// the hash of the snapshot they belong to.
func (s *Store) Failure() ([]string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.errors, s.snap.hash
}

// Hash returns the content hash of the latest snapshot.
func (s *Store) Hash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.hash
}

func contentHash(snap *snapshot) string {
	h := xxhash.New()
	for _, name := range slices.Sorted(maps.Keys(snap.files)) {
		_, _ = h.WriteString(name)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(snap.files[name])
	}
	for _, e := range snap.errors {
		_, _ = h.WriteString(e)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stampPages tags the live reload script of every HTML page with hash, so the
// client compares later broadcasts with the build the page came from. files
// is not modified.
func stampPages(files map[string][]byte, hash string) map[string][]byte {
	tag := []byte(`src="` + assets.LiveReloadScriptPath + `"`)
	stamped := []byte(`src="` + liveReloadSrc(hash) + `"`)

	var out map[string][]byte
	for name, data := range files {
		if !strings.HasSuffix(name, ".html") || !bytes.Contains(data, tag) {
			continue
		}
		if out == nil {
			out = maps.Clone(files)
		}
		out[name] = bytes.Replace(data, tag, stamped, 1)
	}
	if out == nil {
		return files
	}
	return out
}

func liveReloadSrc(hash string) string {
	return assets.LiveReloadScriptPath + "?h=" + hash
}
