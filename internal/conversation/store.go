// Package conversation holds the in-memory dialogue state shared by all
// sessions of the process.
package conversation

import (
	"hash/fnv"
	"sync"

	"github.com/jheun66/novel-mvp/server/domain"
	"github.com/jheun66/novel-mvp/server/domain/entities"
)

// Store keeps one ConversationContext per conversation id. Mutations of a
// key are serialized; different keys may be mutated in parallel.
type Store interface {
	// GetOrCreate returns the context for id, creating it for sessionID when
	// absent. A context owned by another session yields ErrConversationOwner.
	GetOrCreate(id, sessionID, userID string) (entities.ConversationContext, error)
	// Update runs fn against the live context while holding its key.
	Update(id string, fn func(c *entities.ConversationContext) error) error
	Append(id string, turns ...entities.Turn) error
	SetReadyForStory(id string, ready bool) error
	Snapshot(id string) (entities.ConversationContext, error)
	Remove(id string) bool
	RemoveOwnedBy(sessionID string) int
	Len() int
}

const defaultShardCount = 32

type shard struct {
	mu    sync.Mutex
	items map[string]*entities.ConversationContext
}

// ShardedStore is the default Store: a fixed array of mutex-guarded maps
// selected by an FNV-1a hash of the key.
type ShardedStore struct {
	shards []*shard
}

// NewShardedStore creates a store with n shards, or the default when n <= 0
func NewShardedStore(n int) *ShardedStore {
	if n <= 0 {
		n = defaultShardCount
	}
	s := &ShardedStore{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]*entities.ConversationContext)}
	}
	return s
}

func (s *ShardedStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *ShardedStore) GetOrCreate(id, sessionID, userID string) (entities.ConversationContext, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.items[id]
	if !ok {
		c = entities.NewConversationContext(id, sessionID, userID)
		if err := c.Validate(); err != nil {
			return entities.ConversationContext{}, err
		}
		sh.items[id] = c
	} else if c.SessionID != sessionID {
		return entities.ConversationContext{}, domain.ErrConversationOwner
	}
	return c.Clone(), nil
}

func (s *ShardedStore) Update(id string, fn func(c *entities.ConversationContext) error) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.items[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	return fn(c)
}

func (s *ShardedStore) Append(id string, turns ...entities.Turn) error {
	return s.Update(id, func(c *entities.ConversationContext) error {
		for _, t := range turns {
			c.AddTurn(t)
		}
		return nil
	})
}

func (s *ShardedStore) SetReadyForStory(id string, ready bool) error {
	return s.Update(id, func(c *entities.ConversationContext) error {
		c.ReadyForStory = ready
		return nil
	})
}

func (s *ShardedStore) Snapshot(id string) (entities.ConversationContext, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.items[id]
	if !ok {
		return entities.ConversationContext{}, domain.ErrConversationNotFound
	}
	return c.Clone(), nil
}

func (s *ShardedStore) Remove(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.items[id]; !ok {
		return false
	}
	delete(sh.items, id)
	return true
}

// RemoveOwnedBy drops every context created by sessionID and reports how many
func (s *ShardedStore) RemoveOwnedBy(sessionID string) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, c := range sh.items {
			if c.SessionID == sessionID {
				delete(sh.items, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *ShardedStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}
