package memstore

import (
	"context"
	"github.com/miguelmartens/sidekv/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

type storeImpl struct {
	data *xsync.MapOf[string, []byte]
}

// NewInMemoryBackend creates a new volatile in-process backend.
// The underlying map shards keys internally, so operations on unrelated keys
// never serialize on a single lock. This backend is always constructible and
// its operations never fail for reachability reasons - it is the guaranteed
// fallback that keeps the process able to serve state and answer health
// probes with no external dependency.
func NewInMemoryBackend() store.Backend {
	return &storeImpl{
		data: xsync.NewMapOf[string, []byte](),
	}
}

// clone copies a value so callers never alias the stored slice.
//
// Thread-safety: stored slices are written once and only ever replaced, never
// mutated in place, so copying on both read and write is sufficient.
func clone(value []byte) []byte {
	if value == nil {
		return nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, found := s.data.Load(key)
	if !found {
		return nil, false, nil
	}
	return clone(value), true, nil
}

func (s *storeImpl) Set(_ context.Context, key string, value []byte) error {
	s.data.Store(key, clone(value))
	return nil
}

func (s *storeImpl) Delete(_ context.Context, key string) error {
	s.data.Delete(key)
	return nil
}

// Probe implements store.Prober. The in-memory backend is reachable by
// construction.
func (s *storeImpl) Probe(_ context.Context) error {
	return nil
}
