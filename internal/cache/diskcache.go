package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"mason/internal/label"
	"mason/internal/piece"
)

// Current schema version - increment when DiskPayload format changes.
const diskCacheSchemaVersion uint16 = 1

// DiskCache persists finalized pieces under a cache directory, one
// msgpack payload per identity digest. Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// targetRecord flattens one target of a piece.
type targetRecord struct {
	Name      string
	Kind      uint8
	RuleClass string
	File      string
	Line      uint32
	Col       uint32
	Generator string
}

// macroRecord flattens one recorded macro instance.
type macroRecord struct {
	Class    string
	ClassDef string
	Name     string
	Depth    int
}

// DiskPayload is the serialised form of a finalized piece. Macro
// payloads carry the sibling's build file label so the sibling can be
// rebuilt from the same cache on load.
type DiskPayload struct {
	// Schema version for safe invalidation when the format changes
	Schema uint16

	// Identity
	Package        string
	DefiningLabel  string
	DefiningSymbol string
	MacroName      string
	MacroDepth     int
	SiblingLabel   string

	// Metadata and declarations (set on build file payloads)
	WorkspaceName   string
	RepoOwner       string
	RepoEntries     map[string]string
	MainRepoOwner   string
	MainRepoEntries map[string]string
	ModuleName      string
	ModuleVersion   string
	Visibility      uint8
	Succinct        bool

	Loads      []string
	Targets    []targetRecord
	Macros     []macroRecord
	Violations []string
	Steps      uint64
}

// Entry summarizes one cached piece for inspection commands.
type Entry struct {
	Name       string
	DefinedBy  string
	Targets    int
	Violations int
	Size       int64
}

// OpenDiskCache initializes a disk cache at the standard location,
// $XDG_CACHE_HOME/<app> or ~/.cache/<app>.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDiskCacheAt(filepath.Join(base, app))
}

// OpenDiskCacheAt initializes a disk cache at an explicit directory.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root directory.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(key Digest) string {
	// one subdirectory keeps DropAll and inspection simple
	return filepath.Join(c.dir, "pieces", key.String()+".mp")
}

// Put serializes and writes a finalized piece to the disk cache,
// replacing any previous payload for the same identity. The write goes
// through a temp file and an atomic rename.
func (c *DiskCache) Put(p piece.Piece) error {
	if c == nil || p == nil {
		return nil
	}
	payload := pieceToPayload(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.pathFor(KeyOf(p.Identity()))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(dst), "tmp-*")
	if err != nil {
		return err
	}
	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(payload); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), dst)
}

// Get reads a payload and reconstructs the piece through the builder
// API, so every structural invariant is re-established on load. Returns
// ok=false without an error for absent, stale-schema, or unverifiable
// entries (including macro payloads whose sibling is gone).
func (c *DiskCache) Get(id piece.Identity) (piece.Piece, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	payload, ok, err := c.readPayload(KeyOf(id))
	if err != nil || !ok {
		return nil, false, err
	}

	if !id.IsForMacro() {
		p, err := payloadToBuildFilePiece(payload)
		if err != nil {
			return nil, false, fmt.Errorf("cache entry %s: %w", id.CanonicalName(), err)
		}
		if p.Identity() != id {
			return nil, false, nil
		}
		return p, true, nil
	}

	// macro payloads rebuild their sibling from the same cache
	sibling, ok, err := c.siblingFor(payload)
	if err != nil || !ok {
		return nil, false, err
	}
	p, err := payloadToMacroPiece(payload, sibling)
	if err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", id.CanonicalName(), err)
	}
	if p.Identity() != id {
		return nil, false, nil
	}
	// a payload whose recorded violations disagree with the recomputed
	// set is stale
	if !equalStringSets(p.NamespaceViolations(), payload.Violations) {
		return nil, false, nil
	}
	return p, true, nil
}

func (c *DiskCache) siblingFor(payload *DiskPayload) (*piece.ForBuildFile, bool, error) {
	pkg, err := label.ParsePackageID(payload.Package)
	if err != nil {
		return nil, false, fmt.Errorf("cache payload: %w", err)
	}
	siblingLabel, err := label.ParseLabel(payload.SiblingLabel)
	if err != nil {
		return nil, false, fmt.Errorf("cache payload: %w", err)
	}
	siblingPayload, ok, err := c.readPayload(KeyOf(piece.NewIdentity(pkg, siblingLabel)))
	if err != nil || !ok {
		return nil, false, err
	}
	sibling, err := payloadToBuildFilePiece(siblingPayload)
	if err != nil {
		return nil, false, fmt.Errorf("cache sibling %s: %w", payload.SiblingLabel, err)
	}
	return sibling, true, nil
}

func (c *DiskCache) readPayload(key Digest) (*DiskPayload, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var payload DiskPayload
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(&payload); err != nil {
		return nil, false, err
	}
	if payload.Schema != diskCacheSchemaVersion {
		return nil, false, nil
	}
	return &payload, true, nil
}

// Entries lists every decodable cached piece, sorted by canonical name.
func (c *DiskCache) Entries() ([]Entry, error) {
	if c == nil {
		return nil, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Join(c.dir, "pieces")
	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".mp") {
			continue
		}
		path := filepath.Join(dir, de.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		var payload DiskPayload
		decErr := msgpack.NewDecoder(f).Decode(&payload)
		f.Close()
		if decErr != nil || payload.Schema != diskCacheSchemaVersion {
			continue
		}
		info, err := de.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		entries = append(entries, Entry{
			Name:       payloadCanonicalName(&payload),
			DefinedBy:  payloadDefinedBy(&payload),
			Targets:    len(payload.Targets),
			Violations: len(payload.Violations),
			Size:       size,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

func payloadCanonicalName(p *DiskPayload) string {
	if p.DefiningSymbol == "" {
		return p.Package
	}
	return p.Package + ":" + instanceID(p.MacroName, p.MacroDepth)
}

func payloadDefinedBy(p *DiskPayload) string {
	if p.DefiningSymbol == "" {
		return p.DefiningLabel
	}
	return p.DefiningLabel + "%" + p.DefiningSymbol
}

func instanceID(name string, depth int) string {
	if depth <= 1 {
		return name
	}
	return fmt.Sprintf("%s:%d", name, depth)
}

func equalStringSets(sorted, unsorted []string) bool {
	if len(sorted) != len(unsorted) {
		return false
	}
	other := make([]string, len(unsorted))
	copy(other, unsorted)
	sort.Strings(other)
	for i := range sorted {
		if sorted[i] != other[i] {
			return false
		}
	}
	return true
}
