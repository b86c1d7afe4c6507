package models

import (
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/rtree"
	"github.com/google/uuid"
)

// Index is a named spatial tree that can be shared between goroutines.
type Index struct {
	ID        uint32
	UUID      string
	Name      string
	CreatedAt time.Time

	// When set, Insert subdivides the tree after adding points.
	AutoSubdivide bool

	// When set, Insert and BulkInsert resize the tree after adding points.
	AutoResize bool

	mutex sync.RWMutex
	tree  *rtree.Tree
}

// NewIndex creates an empty index that subdivides and resizes automatically.
func NewIndex(id uint32, name string, opts ...rtree.Option) *Index {
	return &Index{
		ID:            id,
		UUID:          uuid.NewString(),
		Name:          name,
		CreatedAt:     time.Now(),
		AutoSubdivide: true,
		AutoResize:    true,
		tree:          rtree.New(opts...),
	}
}

// InsertResult describes the outcome of an insertion.
type InsertResult struct {
	Inserted           int  `json:"inserted"`
	Split              bool `json:"split"`
	RebuildRecommended bool `json:"rebuild_recommended"`
}

// FindResult describes the leaf holding a searched point.
type FindResult struct {
	Found    bool      `json:"found"`
	LeafMBR  geom.Rect `json:"leaf_mbr"`
	LeafSize int       `json:"leaf_size"`
}

// IndexInfo is a snapshot of an index.
type IndexInfo struct {
	ID            uint32      `json:"id"`
	UUID          string      `json:"uuid"`
	Name          string      `json:"name"`
	CreatedAt     time.Time   `json:"created_at"`
	MaxDispersion float64     `json:"max_dispersion"`
	RebuildRatio  float64     `json:"rebuild_ratio"`
	Stats         rtree.Stats `json:"stats"`
}

// Insert adds the given points one by one. Nothing is inserted when one of
// them is invalid.
func (i *Index) Insert(ps []geom.Point) (InsertResult, error) {
	var res InsertResult

	err := instrumentOp(i.Name, "insert", func() error {
		for _, p := range ps {
			if !p.IsValid() {
				return errors.New("point has non-finite coordinates").
					WithType(rtree.ErrTypeInvalidInput).
					WithTag("index", i.Name).
					WithTag("point", p.String())
			}
		}

		i.mutex.Lock()
		defer i.mutex.Unlock()

		for _, p := range ps {
			if err := i.tree.Insert(p); err != nil {
				return err
			}
			res.Inserted++
		}

		if i.AutoSubdivide {
			res.Split = i.subdivide()
		}
		if i.AutoResize {
			res.RebuildRecommended = i.tree.Resize()
		}

		instrumentIndexPoints(i.Name, i.tree.Len())
		return nil
	})
	return res, err
}

// BulkInsert loads the given points into an index whose root is still a
// leaf. The tree is always subdivided afterwards.
func (i *Index) BulkInsert(ps []geom.Point) (InsertResult, error) {
	var res InsertResult

	err := instrumentOp(i.Name, "bulk_insert", func() error {
		i.mutex.Lock()
		defer i.mutex.Unlock()

		if err := i.tree.BulkInsert(ps); err != nil {
			return errors.New("bulk insert failed").
				WithType(errors.Type(err)).
				WithTag("index", i.Name).
				Wrap(err)
		}

		res.Inserted = len(ps)
		res.Split = !i.tree.Root().IsLeaf()
		if res.Split {
			instrumentSplit(i.Name)
		}
		if i.AutoResize {
			res.RebuildRecommended = i.tree.Resize()
		}

		instrumentIndexPoints(i.Name, i.tree.Len())
		return nil
	})
	return res, err
}

// Delete removes every point equal to p and returns how many were removed.
func (i *Index) Delete(p geom.Point) (int, error) {
	var removed int

	err := instrumentOp(i.Name, "delete", func() error {
		i.mutex.Lock()
		defer i.mutex.Unlock()

		var err error
		if removed, err = i.tree.Delete(p); err != nil {
			return err
		}

		instrumentIndexPoints(i.Name, i.tree.Len())
		return nil
	})
	return removed, err
}

// Find looks up the leaf holding p. A missing point is not an error.
func (i *Index) Find(p geom.Point) (FindResult, error) {
	var res FindResult

	err := instrumentOp(i.Name, "find", func() error {
		i.mutex.RLock()
		defer i.mutex.RUnlock()

		leaf, err := i.tree.Find(p)
		if errors.IsType(err, rtree.ErrTypeNotFound) {
			res.LeafMBR = geom.EmptyRect()
			return nil
		}
		if err != nil {
			return err
		}

		res = FindResult{
			Found:    true,
			LeafMBR:  leaf.MBR(),
			LeafSize: leaf.Len(),
		}
		return nil
	})
	return res, err
}

// Query returns the points lying inside box.
func (i *Index) Query(box geom.Rect) ([]geom.Point, error) {
	var res []geom.Point

	err := instrumentOp(i.Name, "query", func() error {
		i.mutex.RLock()
		defer i.mutex.RUnlock()

		var err error
		res, err = i.tree.PointsInRect(box)
		return err
	})
	return res, err
}

// Subdivide splits the leaves that are too dispersed and reports whether
// any leaf was split.
func (i *Index) Subdivide() bool {
	var split bool

	instrumentOp(i.Name, "subdivide", func() error {
		i.mutex.Lock()
		defer i.mutex.Unlock()

		split = i.subdivide()
		return nil
	})
	return split
}

func (i *Index) subdivide() bool {
	split := i.tree.Subdivide()
	if split {
		instrumentSplit(i.Name)
		logs.WithTag("index", i.Name).
			WithTag("points", i.tree.Len()).
			Debug("index subdivided")
	}
	return split
}

// Resize tightens the bounding rectangles of the index and reports whether
// a rebuild is recommended.
func (i *Index) Resize() bool {
	var rebuild bool

	instrumentOp(i.Name, "resize", func() error {
		i.mutex.Lock()
		defer i.mutex.Unlock()

		rebuild = i.tree.Resize()
		return nil
	})
	return rebuild
}

// Rebuild reloads all the points of the index into a fresh tree.
func (i *Index) Rebuild() {
	instrumentOp(i.Name, "rebuild", func() error {
		i.mutex.Lock()
		defer i.mutex.Unlock()

		i.tree.Rebuild()
		logs.WithTag("index", i.Name).
			WithTag("points", i.tree.Len()).
			Info("index rebuilt")
		return nil
	})
}

func (i *Index) Len() int {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	return i.tree.Len()
}

// Points returns a copy of all the points of the index.
func (i *Index) Points() []geom.Point {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	return i.tree.Points()
}

func (i *Index) Stats() rtree.Stats {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	return i.tree.Stats()
}

func (i *Index) Info() IndexInfo {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	return IndexInfo{
		ID:            i.ID,
		UUID:          i.UUID,
		Name:          i.Name,
		CreatedAt:     i.CreatedAt,
		MaxDispersion: i.tree.MaxDispersion(),
		RebuildRatio:  i.tree.RebuildRatio(),
		Stats:         i.tree.Stats(),
	}
}
