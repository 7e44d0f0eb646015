package mmapkv

import "sync"

// flatNodePool recycles *flatNode instances across swap() calls instead
// of letting the garbage collector reclaim the whole BFS layout slice on
// every publish. Adapted from the teacher's NodePool.go (MariNodePool):
// same sync.Pool-plus-reset shape, collapsed to mmapkv's single flatNode
// type since there is no separate internal/leaf node split here the way
// mari's MariINode/MariLNode pair has one.
//
// A backend under sustained write load calls swapLocked on every
// mutation when autoSwap is on, each time discarding the previous
// layout slice; pooling keeps that churn off the allocator.
type flatNodePool struct {
	pool sync.Pool
}

func newFlatNodePool() *flatNodePool {
	return &flatNodePool{
		pool: sync.Pool{
			New: func() any { return &flatNode{} },
		},
	}
}

func (p *flatNodePool) get() *flatNode {
	return p.pool.Get().(*flatNode)
}

func (p *flatNodePool) put(n *flatNode) {
	n.stg = nil
	n.labelID = 0
	n.valueOffset = 0
	n.valueLength = 0
	n.firstChildIndex = -1
	n.childCount = 0
	p.pool.Put(n)
}

// putAll returns every node in flat to the pool. Called once
// serializeStaging has finished reading flat into its output buffer.
func (p *flatNodePool) putAll(flat []*flatNode) {
	for _, n := range flat {
		p.put(n)
	}
}
