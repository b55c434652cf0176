package photobuffer

import (
	"sort"
	"sync"
	"time"
)

const (
	DefaultIdleTTL          = 24 * time.Hour
	DefaultMaxConversations = 10000
)

type Options struct {
	// IdleTTL evicts conversations untouched for longer than this on Sweep. <=0 disables.
	IdleTTL time.Duration
	// MaxConversations caps tracked conversations; the least recently touched go first. <=0 disables.
	MaxConversations int
	Now              func() time.Time
}

// Store keeps the pending photos of every conversation.
// Operations on one key are serialized; different keys only share a short map lookup.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	idleTTL          time.Duration
	maxConversations int
	nowFn            func() time.Time
}

type entry struct {
	mu      sync.Mutex
	images  [][]byte
	touched time.Time
	evicted bool
}

func New(opts Options) *Store {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Store{
		entries:          make(map[string]*entry),
		idleTTL:          opts.IdleTTL,
		maxConversations: opts.MaxConversations,
		nowFn:            nowFn,
	}
}

// Append adds image to the end of key's sequence and returns the new length.
func (s *Store) Append(key string, image []byte) int {
	n, _ := s.AppendAndDrainIfFull(key, image, 0)
	return n
}

// AppendAndDrainIfFull appends image and, when the sequence reaches threshold,
// drains it in the same critical section. batch is non-nil only for the call
// that crossed the threshold. threshold <= 0 never drains.
func (s *Store) AppendAndDrainIfFull(key string, image []byte, threshold int) (count int, batch [][]byte) {
	for {
		e := s.getOrCreate(key)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		e.images = append(e.images, image)
		e.touched = s.nowFn()
		count = len(e.images)
		if threshold > 0 && count >= threshold {
			batch = e.images
			e.images = nil
		}
		e.mu.Unlock()
		return count, batch
	}
}

// Size returns the current sequence length, 0 for unknown keys.
func (s *Store) Size(key string) int {
	e := s.lookup(key)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return 0
	}
	return len(e.images)
}

// Drain returns the current sequence and resets it to empty.
func (s *Store) Drain(key string) [][]byte {
	e := s.lookup(key)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return nil
	}
	out := e.images
	e.images = nil
	e.touched = s.nowFn()
	return out
}

// Clear resets key's sequence to empty.
func (s *Store) Clear(key string) {
	_ = s.Drain(key)
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts conversations idle longer than IdleTTL, then trims to
// MaxConversations. It returns how many were evicted.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	if s.idleTTL > 0 {
		for key, e := range s.entries {
			e.mu.Lock()
			if now.Sub(e.touched) > s.idleTTL {
				e.evicted = true
				delete(s.entries, key)
				evicted++
			}
			e.mu.Unlock()
		}
	}
	if s.maxConversations > 0 && len(s.entries) > s.maxConversations {
		evicted += s.trimLocked(len(s.entries) - s.maxConversations)
	}
	return evicted
}

func (s *Store) lookup(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key]
}

func (s *Store) getOrCreate(key string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e
	}
	if s.maxConversations > 0 && len(s.entries) >= s.maxConversations {
		s.trimLocked(len(s.entries) - s.maxConversations + 1)
	}
	e := &entry{touched: s.nowFn()}
	s.entries[key] = e
	return e
}

// trimLocked evicts the n least recently touched entries. s.mu must be held.
func (s *Store) trimLocked(n int) int {
	if n <= 0 {
		return 0
	}
	type aged struct {
		key     string
		touched time.Time
	}
	all := make([]aged, 0, len(s.entries))
	for key, e := range s.entries {
		e.mu.Lock()
		all = append(all, aged{key: key, touched: e.touched})
		e.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].touched.Before(all[j].touched) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		e := s.entries[a.key]
		e.mu.Lock()
		e.evicted = true
		e.mu.Unlock()
		delete(s.entries, a.key)
	}
	return n
}
