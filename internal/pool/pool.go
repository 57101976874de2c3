// Package pool provides zero-allocation buffer management using sync.Pool.
package pool

import (
	"sync"

	"github.com/logflow/batchflow/internal/model"
)

// DefaultBufferSize is the default size for read buffers.
const DefaultBufferSize = 64 * 1024 // 64KB

// InstancePool manages reusable Instance structs for streaming parsers.
type InstancePool struct {
	pool sync.Pool
}

// NewInstancePool creates a new instance pool.
func NewInstancePool() *InstancePool {
	ip := &InstancePool{}
	ip.pool.New = func() any {
		return &model.Instance{
			BatchID: model.NoBatch,
			Attrs:   make([]model.Attribute, 0, 8),
		}
	}
	return ip
}

// Get retrieves an instance from the pool.
func (p *InstancePool) Get() *model.Instance {
	return p.pool.Get().(*model.Instance)
}

// Put returns an instance to the pool.
// Callers must not retain the pointer afterwards.
func (p *InstancePool) Put(in *model.Instance) {
	*in = model.Instance{BatchID: model.NoBatch, Attrs: in.Attrs[:0]}
	p.pool.Put(in)
}
