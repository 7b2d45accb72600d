// Package materialize implements the two passes that surround the rewrite
// engine: loading already-cached subtrees before optimization, and
// inserting new materializations after it.
package materialize

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// CatalogueEntry is one persisted cache record: a lineage signature mapped
// to the on-disk URI of its materialized output.
type CatalogueEntry struct {
	Lineage   string      `json:"lineage"`
	URI       string      `json:"uri"`
	CreatedAt metav1.Time `json:"createdAt"`
}

// Catalogue is the persistent lineage-signature-to-URI map of
// already-materialized outputs. It is safe for concurrent use; callers read
// it through Lookup and mutate it through Put and Prune.
type Catalogue struct {
	mu      sync.RWMutex
	path    string
	entries map[string]CatalogueEntry
}

// NewCatalogue returns an empty catalogue that will persist to
// <matBaseDir>/catalogue.json.
func NewCatalogue(matBaseDir string) *Catalogue {
	return &Catalogue{
		path:    filepath.Join(matBaseDir, "catalogue.json"),
		entries: make(map[string]CatalogueEntry),
	}
}

// Load reads the catalogue from disk, replacing the in-memory entries. A
// missing file is not an error: a fresh materialization base directory has
// no catalogue yet.
func (c *Catalogue) Load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalogue: %w", err)
	}
	var list []CatalogueEntry
	if err := yaml.Unmarshal(data, &list); err != nil {
		return &CacheCorruptError{Path: c.path, Reason: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CatalogueEntry, len(list))
	for _, e := range list {
		c.entries[e.Lineage] = e
	}
	return nil
}

// Save writes the catalogue to disk atomically: write to a temp file in
// the same directory, then os.Rename, so a crash mid-write can never
// leave a half-written catalogue.json behind.
func (c *Catalogue) Save() error {
	c.mu.RLock()
	list := make([]CatalogueEntry, 0, len(c.entries))
	for _, e := range c.entries {
		list = append(list, e)
	}
	c.mu.RUnlock()

	data, err := yaml.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal catalogue: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create catalogue dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".catalogue-*.tmp")
	if err != nil {
		return fmt.Errorf("create catalogue temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write catalogue temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close catalogue temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename catalogue temp file: %w", err)
	}
	return nil
}

// Lookup reports whether lineage has a cached output, and its URI.
func (c *Catalogue) Lookup(lineage string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[lineage]
	return e.URI, ok
}

// Put records a new cache entry, keyed by lineage signature.
func (c *Catalogue) Put(lineage, uri string, createdAt metav1.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[lineage] = CatalogueEntry{Lineage: lineage, URI: uri, CreatedAt: createdAt}
}

// Prune drops every entry whose backing artifact no longer exists
// according to the supplied existence check (the filesystem service
// contract's exists operation), returning one CacheMissError per dropped
// entry for the caller to log. Catalogue hygiene keeps a stale entry from
// substituting a Load for data that is gone from disk.
func (c *Catalogue) Prune(exists func(uri string) bool) []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var missing []error
	for lineage, e := range c.entries {
		if !exists(e.URI) {
			delete(c.entries, lineage)
			missing = append(missing, &CacheMissError{Lineage: lineage, URI: e.URI})
		}
	}
	return missing
}

// Len returns the number of cached entries, mostly useful for tests.
func (c *Catalogue) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
