package models

import (
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/pointtree/featureflag"
	"github.com/aukilabs/pointtree/rtree"
)

const (
	ErrTypeIndexNotFound      = "index_not_found"
	ErrTypeIndexAlreadyExists = "index_already_exists"
)

// DefaultIndexName is the name of the index created at startup.
const DefaultIndexName = "default"

// IndexStore holds the indexes served by the process. Indexes can be
// looked up by UUID or by name.
type IndexStore struct {
	// The dispersion and rebuild ratio given to new indexes. Zero values
	// leave the tree defaults.
	MaxDispersion float64
	RebuildRatio  float64

	// The feature flags applied to new indexes.
	FeatureFlags featureflag.FeatureFlag

	initOnce sync.Once
	mutex    sync.RWMutex
	indexes  map[string]*Index
	names    map[string]string
	ids      SequentialIDGenerator
}

func (s *IndexStore) init() {
	s.indexes = make(map[string]*Index)
	s.names = make(map[string]string)
}

// New creates and registers an index. An empty name defaults to the index
// UUID. opts override the store settings.
func (s *IndexStore) New(name string, opts ...rtree.Option) (*Index, error) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.names[name]; ok {
		return nil, errors.New("index already exists").
			WithType(ErrTypeIndexAlreadyExists).
			WithTag("name", name)
	}

	treeOpts := []rtree.Option{
		rtree.WithMaxDispersion(s.MaxDispersion),
		rtree.WithRebuildRatio(s.RebuildRatio),
		rtree.WithFindPruning(!s.FeatureFlags.IsSet(featureflag.FlagDisableFindPruning)),
	}
	treeOpts = append(treeOpts, opts...)

	index := NewIndex(s.ids.New(), name, treeOpts...)
	if index.Name == "" {
		index.Name = index.UUID
	}
	index.AutoSubdivide = !s.FeatureFlags.IsSet(featureflag.FlagDisableAutoSubdivide)
	index.AutoResize = !s.FeatureFlags.IsSet(featureflag.FlagDisableAutoResize)

	s.indexes[index.UUID] = index
	s.names[index.Name] = index.UUID
	instrumentAddIndex()

	logs.WithTag("index", index.Name).
		WithTag("uuid", index.UUID).
		WithTag("id", index.ID).
		Info("index created")
	return index, nil
}

// Get returns the index with the given UUID or name.
func (s *IndexStore) Get(key string) (*Index, error) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	index, ok := s.get(key)
	if !ok {
		return nil, errors.New("index not found").
			WithType(ErrTypeIndexNotFound).
			WithTag("index", key)
	}
	return index, nil
}

func (s *IndexStore) get(key string) (*Index, bool) {
	if index, ok := s.indexes[key]; ok {
		return index, true
	}
	if id, ok := s.names[key]; ok {
		return s.indexes[id], true
	}
	return nil, false
}

// Remove unregisters the index with the given UUID or name.
func (s *IndexStore) Remove(key string) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	index, ok := s.get(key)
	if !ok {
		return errors.New("index not found").
			WithType(ErrTypeIndexNotFound).
			WithTag("index", key)
	}

	delete(s.indexes, index.UUID)
	delete(s.names, index.Name)
	s.ids.Reuse(index.ID)
	instrumentRemoveIndex(index.Name)

	logs.WithTag("index", index.Name).
		WithTag("uuid", index.UUID).
		Info("index removed")
	return nil
}

// List returns the registered indexes ordered by id.
func (s *IndexStore) List() []*Index {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	indexes := make([]*Index, 0, len(s.indexes))
	for _, index := range s.indexes {
		indexes = append(indexes, index)
	}
	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].ID < indexes[j].ID
	})
	return indexes
}

func (s *IndexStore) Len() int {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.indexes)
}
