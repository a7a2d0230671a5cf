package capstore

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kjk/capnation/bptree"
	"github.com/kjk/capnation/log"
)

const (
	DefaultHeapFileName       = "caps.txt"
	DefaultIndexFileName      = "cap_index.txt"
	DefaultBrandIndexFileName = "brand_index.txt"
	DefaultTreeOrder          = 4
)

// artifacts are loaded from disk independently, each at most once
type artifact uint8

const (
	artifactHeap artifact = 1 << iota
	artifactIndex
	artifactBrands

	artifactAll = artifactHeap | artifactIndex | artifactBrands
)

type Store struct {
	DataDir            string
	HeapFileName       string
	IndexFileName      string
	BrandIndexFileName string
	// order of the B+ tree used for the primary index
	TreeOrder int
	// if true, will call file.Sync() after appends
	SyncWrite bool

	heapPath       string
	indexPath      string
	brandIndexPath string

	mu     sync.RWMutex
	loaded artifact
	// in-memory mirror of the heap, position == index in this slice
	caps  []Cap
	index *bptree.Tree[int64, int]
	// in creation order, brandByName is keyed by lowercased brand
	brands      []*BrandIndex
	brandByName map[string]*BrandIndex
}

// OpenStore fills in default file names, creates DataDir and missing
// backing files. It doesn't read the files, that happens lazily on first
// operation that needs them.
func OpenStore(s *Store) error {
	if s.DataDir == "" {
		return fmt.Errorf("%w: data directory is not set. For current directory, use '.'", ErrInvalidArgument)
	}
	if s.HeapFileName == "" {
		s.HeapFileName = DefaultHeapFileName
	}
	if s.IndexFileName == "" {
		s.IndexFileName = DefaultIndexFileName
	}
	if s.BrandIndexFileName == "" {
		s.BrandIndexFileName = DefaultBrandIndexFileName
	}
	if s.TreeOrder == 0 {
		s.TreeOrder = DefaultTreeOrder
	}
	if s.TreeOrder < bptree.MinOrder {
		return fmt.Errorf("%w: tree order must be at least %d, got %d", ErrInvalidArgument, bptree.MinOrder, s.TreeOrder)
	}

	dir, err := filepath.Abs(s.DataDir)
	if err != nil {
		return ioError("abs", s.DataDir, err)
	}
	s.heapPath = filepath.Join(dir, s.HeapFileName)
	s.indexPath = filepath.Join(dir, s.IndexFileName)
	s.brandIndexPath = filepath.Join(dir, s.BrandIndexFileName)
	for _, path := range s.Paths() {
		if err := ensureFile(path); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = 0
	s.caps = nil
	s.index = nil
	s.brands = nil
	s.brandByName = nil
	return nil
}

// Paths returns paths of heap, primary index and brand index files
func (s *Store) Paths() []string {
	return []string{s.heapPath, s.indexPath, s.brandIndexPath}
}

// WithFilesLocked calls fn with paths of backing files while holding
// a read lock, so that no Save modifies them until fn returns
func (s *Store) WithFilesLocked(fn func(paths []string) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.Paths())
}

// ensureLoaded loads artifacts in need that are not yet loaded
func (s *Store) ensureLoaded(need artifact) error {
	s.mu.RLock()
	done := s.loaded&need == need
	s.mu.RUnlock()
	if done {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(need)
}

func (s *Store) loadLocked(need artifact) error {
	if need&artifactHeap != 0 && s.loaded&artifactHeap == 0 {
		caps, err := readHeap(s.heapPath)
		if err != nil {
			return err
		}
		s.caps = caps
		s.loaded |= artifactHeap
		log.Verbosef("capstore: loaded %d caps from '%s'\n", len(caps), s.heapPath)
	}
	if need&artifactIndex != 0 && s.loaded&artifactIndex == 0 {
		tree, err := readIndex(s.indexPath, s.TreeOrder)
		if err != nil {
			return err
		}
		s.index = tree
		s.loaded |= artifactIndex
		log.Verbosef("capstore: loaded %d entries into B+ tree index\n", tree.Size())
	}
	if need&artifactBrands != 0 && s.loaded&artifactBrands == 0 {
		brands, err := readBrandIndex(s.brandIndexPath)
		if err != nil {
			return err
		}
		s.brands = brands
		s.brandByName = make(map[string]*BrandIndex, len(brands))
		for _, b := range brands {
			s.brandByName[b.Brand] = b
		}
		s.loaded |= artifactBrands
		log.Verbosef("capstore: loaded %d brands from '%s'\n", len(brands), s.brandIndexPath)
	}
	return nil
}

// a malformed heap line aborts the load: positions of all following
// caps would be off by one
func readHeap(path string) ([]Cap, error) {
	var caps []Cap
	err := forEachLine(path, func(lineNo int, line string) error {
		c, err := DecodeCap(line)
		if err != nil {
			return fmt.Errorf("capstore: '%s' line %d: %w", path, lineNo, err)
		}
		caps = append(caps, *c)
		return nil
	})
	return caps, err
}

// malformed index lines are logged and skipped
func readIndex(path string, order int) (*bptree.Tree[int64, int], error) {
	tree, err := bptree.New[int64, int](order)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	err = forEachLine(path, func(lineNo int, line string) error {
		id, pos, err := parseIndexLine(line)
		if err != nil {
			log.Logf("capstore: skipping malformed index line %d in '%s': '%s'\n", lineNo, path, line)
			return nil
		}
		tree.Insert(id, pos)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// malformed lines are logged and skipped, repeated brands are merged
func readBrandIndex(path string) ([]*BrandIndex, error) {
	var brands []*BrandIndex
	byName := map[string]*BrandIndex{}
	err := forEachLine(path, func(lineNo int, line string) error {
		b, err := DecodeBrandIndex(line)
		if err != nil {
			log.Logf("capstore: skipping malformed brand index line %d in '%s': '%s'\n", lineNo, path, line)
			return nil
		}
		if existing, ok := byName[b.Brand]; ok {
			existing.Caps = append(existing.Caps, b.Caps...)
			return nil
		}
		byName[b.Brand] = b
		brands = append(brands, b)
		return nil
	})
	return brands, err
}

func (s *Store) persistIndex() error {
	entries := s.index.All()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = formatIndexLine(e.Key, e.Value)
	}
	if err := writeFileAtomically(s.indexPath, []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}
	log.Verbosef("capstore: persisted %d index entries\n", len(entries))
	return nil
}

func (s *Store) persistBrandIndex() error {
	lines := make([]string, len(s.brands))
	for i, b := range s.brands {
		lines[i] = EncodeBrandIndex(b)
	}
	if err := writeFileAtomically(s.brandIndexPath, []byte(strings.Join(lines, "\n"))); err != nil {
		return err
	}
	log.Verbosef("capstore: persisted %d brand indices\n", len(s.brands))
	return nil
}

// updateBrandIndex must be called with write lock held
func (s *Store) updateBrandIndex(c *Cap) error {
	name := strings.ToLower(c.Brand)
	if b, ok := s.brandByName[name]; ok {
		b.AppendCap(c.ID)
		return s.persistBrandIndex()
	}
	b := NewBrandIndex(c.Brand)
	b.AppendCap(c.ID)
	s.brands = append(s.brands, b)
	s.brandByName[b.Brand] = b
	return appendLine(s.brandIndexPath, EncodeBrandIndex(b), s.SyncWrite)
}

// Save appends c to the heap and updates both indexes.
// Returns ErrInvalidArgument if c.ID <= 0 and ErrConflict if a cap
// with c.ID already exists. In both cases nothing is modified.
// c is expected to be validated by the caller.
func (s *Store) Save(c Cap) (Cap, error) {
	if c.ID <= 0 {
		return Cap{}, fmt.Errorf("%w: id must be positive, got %d", ErrInvalidArgument, c.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(artifactAll); err != nil {
		return Cap{}, err
	}
	if _, exists := s.index.Search(c.ID); exists {
		return Cap{}, fmt.Errorf("%w: a cap with id %d already exists", ErrConflict, c.ID)
	}

	pos := len(s.caps)
	if err := appendLine(s.heapPath, EncodeCap(&c), s.SyncWrite); err != nil {
		return Cap{}, err
	}
	// the mirror follows the heap file so that positions stay valid
	// even if persisting indexes fails below
	s.caps = append(s.caps, c)

	s.index.Insert(c.ID, pos)
	if err := s.persistIndex(); err != nil {
		return Cap{}, err
	}
	if err := s.updateBrandIndex(&c); err != nil {
		return Cap{}, err
	}

	log.Event("cap_saved", "id", c.ID, "brand", strings.ToLower(c.Brand), "pos", pos)
	log.Verbosef("capstore: cap with id %d saved at position %d\n", c.ID, pos)
	return c, nil
}

// FindAll returns all caps in the order they were saved
func (s *Store) FindAll() ([]Cap, error) {
	if err := s.ensureLoaded(artifactHeap); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Cap{}, s.caps...), nil
}

// must be called with at least a read lock held
func (s *Store) capAtLocked(id int64, pos int) (Cap, error) {
	if pos < 0 || pos >= len(s.caps) {
		log.Errorf("capstore: index corruption detected: position %d out of bounds for id %d (heap has %d caps)", pos, id, len(s.caps))
		return Cap{}, fmt.Errorf("%w: position %d of id %d is outside of heap of %d caps", ErrCorruption, pos, id, len(s.caps))
	}
	return s.caps[pos], nil
}

func (s *Store) findByIDLocked(id int64) (Cap, error) {
	pos, ok := s.index.Search(id)
	if !ok {
		return Cap{}, fmt.Errorf("%w: no cap with id %d", ErrNotFound, id)
	}
	return s.capAtLocked(id, pos)
}

// FindByID returns ErrNotFound if there's no cap with this id
func (s *Store) FindByID(id int64) (Cap, error) {
	if err := s.ensureLoaded(artifactHeap | artifactIndex); err != nil {
		return Cap{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByIDLocked(id)
}

// FindByBrand returns caps of a brand (compared case-insensitively)
// in the order they were saved. Returns ErrNotFound for unknown brand.
func (s *Store) FindByBrand(brand string) ([]Cap, error) {
	if err := s.ensureLoaded(artifactAll); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.brandByName[strings.ToLower(brand)]
	if !ok {
		return nil, fmt.Errorf("%w: no caps with brand '%s'", ErrNotFound, brand)
	}
	res := make([]Cap, 0, len(b.Caps))
	for _, id := range b.Caps {
		c, err := s.findByIDLocked(id)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// FindByIDRange returns caps with lo <= id <= hi in ascending id order
func (s *Store) FindByIDRange(lo, hi int64) ([]Cap, error) {
	if err := s.ensureLoaded(artifactHeap | artifactIndex); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.index.RangeQuery(lo, hi)
	res := make([]Cap, 0, len(entries))
	for _, e := range entries {
		c, err := s.capAtLocked(e.Key, e.Value)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// Count returns number of caps in the primary index
func (s *Store) Count() (int, error) {
	if err := s.ensureLoaded(artifactIndex); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Size(), nil
}

// Brands returns known brands, lowercased, in the order they were first saved
func (s *Store) Brands() ([]string, error) {
	if err := s.ensureLoaded(artifactBrands); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]string, len(s.brands))
	for i, b := range s.brands {
		res[i] = b.Brand
	}
	return res, nil
}
