package cache

import (
	"errors"

	"github.com/agentlens/agentlens/pkg/trace/model"
	"github.com/dgraph-io/ristretto"
)

// SnapshotCache is an interface for a cache of frozen graph snapshots keyed
// by trace, generation and step. Eviction is based on LRU and LFU policies,
// so heavily scrubbed steps stay resident.
type SnapshotCache interface {
	Get(key string) (model.GraphData, error)
	Put(key string, value model.GraphData) error
}

type SnapshotCacheImpl struct {
	cache *ristretto.Cache
}

func NewSnapshotCacheImpl(cache *ristretto.Cache) *SnapshotCacheImpl {
	return &SnapshotCacheImpl{
		cache: cache,
	}
}

func (sc *SnapshotCacheImpl) Get(key string) (model.GraphData, error) {
	value, found := sc.cache.Get(key)
	if !found {
		return model.GraphData{}, ErrKeyNotFound
	}
	typedValue, ok := value.(model.GraphData)
	if !ok {
		return model.GraphData{}, errors.New("value not of type GraphData returned from cache when getting")
	}
	return typedValue, nil
}

func (sc *SnapshotCacheImpl) Put(key string, value model.GraphData) error {
	cost := int64(len(value.Nodes) + len(value.Edges) + 1)
	sc.cache.Set(key, value, cost)
	return nil
}

var (
	ErrKeyNotFound = errors.New("key not found within the cache")
)
