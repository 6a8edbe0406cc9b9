package state

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/gekko3d/deferred/rt/core"
)

// Visitor is applied once to every node of a scene.
type Visitor func(*core.Node) error

// Traverser visits every node under root, root included. Traverse returns
// only after every visit has finished.
type Traverser interface {
	Traverse(root *core.Node, visit Visitor) error
}

// SerialTraverser visits depth-first on the calling goroutine and stops at
// the first error.
type SerialTraverser struct{}

func (SerialTraverser) Traverse(root *core.Node, visit Visitor) error {
	var first error
	core.ForEachNode(root, func(n *core.Node) {
		if first != nil {
			return
		}
		first = visit(n)
	})
	return first
}

// minChunk keeps tiny scenes from paying the task hand-off per node.
const minChunk = 64

// PoolTraverser splits the node list into chunks and runs them on a worker
// pool that is reused across frames. Visits must only touch the node they
// are given. The first error wins; remaining chunks still run to completion.
type PoolTraverser struct {
	pool    worker.DynamicWorkerPool
	workers int
}

func NewPoolTraverser(workers int) *PoolTraverser {
	if workers < 1 {
		workers = 1
	}
	return &PoolTraverser{
		pool:    worker.NewDynamicWorkerPool(workers, 256, time.Second),
		workers: workers,
	}
}

func (t *PoolTraverser) Traverse(root *core.Node, visit Visitor) error {
	nodes := core.Collect(root)
	if len(nodes) <= minChunk {
		return SerialTraverser{}.Traverse(root, visit)
	}

	chunk := (len(nodes) + t.workers - 1) / t.workers
	if chunk < minChunk {
		chunk = minChunk
	}

	// pool.Wait blocks until workers idle out, so a WaitGroup is the
	// per-traversal barrier
	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	id := 0
	for start := 0; start < len(nodes); start += chunk {
		end := min(start+chunk, len(nodes))
		part := nodes[start:end]
		wg.Add(1)
		t.pool.SubmitTask(worker.Task{
			ID:      id,
			Payload: len(part),
			Do: func() (any, error) {
				defer wg.Done()
				for _, n := range part {
					if err := visit(n); err != nil {
						once.Do(func() { first = err })
						return nil, err
					}
				}
				return nil, nil
			},
		})
		id++
	}
	wg.Wait()
	return first
}

// Close stops the pool's workers.
func (t *PoolTraverser) Close() error {
	t.pool.Stop()
	return nil
}
