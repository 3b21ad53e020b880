package imaging

import (
	"fmt"
	"sync"
)

// FrameCache provides thread-safe caching of rendered frames so repeated tool
// calls on the same frame do not read and render it again.
//
// Entries are keyed by an arbitrary string; callers build keys from the source
// identity, frame index and render configuration (see FrameKey).
//
// FrameCache is safe for concurrent use by multiple goroutines. The cache is
// bounded: once it holds Capacity frames, the oldest inserted entry is dropped.
//
// # Example Usage
//
//	cache := imaging.NewFrameCache(64)
//	f, err := cache.Load(key, func() (*imaging.Frame, error) {
//	    return source.ReadFrame(ctx, index, cfg)
//	})
type FrameCache struct {
	mu       sync.RWMutex
	frames   map[string]*Frame
	order    []string
	capacity int
}

// NewFrameCache creates an empty cache holding at most capacity frames.
// A capacity of zero or less means unbounded.
func NewFrameCache(capacity int) *FrameCache {
	return &FrameCache{
		frames:   make(map[string]*Frame),
		capacity: capacity,
	}
}

// FrameKey builds a cache key for a frame of a source under a render setting.
func FrameKey(source string, index int, renderKey string) string {
	return fmt.Sprintf("%s#%d#%s", source, index, renderKey)
}

// Get returns a cached frame.
func (c *FrameCache) Get(key string) (*Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.frames[key]
	return f, ok
}

// Put stores a frame, evicting the oldest entry when the cache is full.
func (c *FrameCache) Put(key string, f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.frames[key]; !ok {
		c.order = append(c.order, key)
	}
	c.frames[key] = f
	for c.capacity > 0 && len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.frames, oldest)
	}
}

// Load returns the cached frame for key or calls read and caches its result.
//
// Errors from read are returned wrapped and nothing is cached. Two goroutines
// missing the same key concurrently may both call read; the last result wins.
func (c *FrameCache) Load(key string, read func() (*Frame, error)) (*Frame, error) {
	if f, ok := c.Get(key); ok {
		return f, nil
	}
	f, err := read()
	if err != nil {
		return nil, fmt.Errorf("failed to load frame: %w", err)
	}
	c.Put(key, f)
	return f, nil
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// Clear removes all frames from the cache.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	c.frames = make(map[string]*Frame)
	c.order = nil
	c.mu.Unlock()
}

// Evict removes a single frame. Missing keys are ignored.
func (c *FrameCache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.frames[key]; !ok {
		return
	}
	delete(c.frames, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
