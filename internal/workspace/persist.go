package workspace

import (
	"context"
	"sync"

	"github.com/starford/folio/internal/models"
)

// Persister writes snapshots to a Cache in the background. For each key, a
// write never lands after a newer one of the same kind.
type Persister struct {
	cache Cache

	mu   sync.Mutex
	seq  uint64
	done map[string]uint64
	wg   sync.WaitGroup
}

// NewPersister returns a Persister for c. A nil c makes every Save a no-op.
func NewPersister(c Cache) *Persister {
	if c == nil {
		c = nopCache{}
	}
	return &Persister{cache: c, done: make(map[string]uint64)}
}

// Save queues posts and tree for key; nil arguments are skipped.
func (p *Persister) Save(key string, posts []models.Document, tree []models.FileTreeNode) {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		ctx := context.Background()
		if posts != nil && p.advance("posts\x00"+key, seq) {
			p.cache.SavePosts(ctx, key, posts)
		}
		if tree != nil && p.advance("tree\x00"+key, seq) {
			p.cache.SaveTree(ctx, key, tree)
		}
	}()
}

// advance records seq as the latest write for slot unless a newer one has
// already landed. Callers hold mu.
func (p *Persister) advance(slot string, seq uint64) bool {
	if p.done[slot] > seq {
		return false
	}
	p.done[slot] = seq
	return true
}

// Wait blocks until queued writes finish.
func (p *Persister) Wait() {
	p.wg.Wait()
}
