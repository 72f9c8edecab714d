// Package colors hands out Google Calendar colour ids per team member so each
// assignee's events are recognisable at a glance.
package colors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

type MemberState struct {
	ColorID      string    `json:"color_id"`
	LastModified time.Time `json:"last_modified"`
}

// ColorCache assigns calendar colours 1..11 to members, recycling the least
// recently used colour once all are taken. Safe for concurrent use.
type ColorCache struct {
	Path    string
	Members map[string]*MemberState `json:"members"`

	mu    sync.Mutex
	dirty bool
	now   func() time.Time
}

const (
	cacheFile = "member_colors.json"

	// UnassignedColor is graphite, used for tasks nobody is assigned to.
	UnassignedColor = "8"
	paletteSize     = 11
)

// Open loads the cache kept in dir, starting empty when none exists.
func Open(dir string) (*ColorCache, error) {
	cache := &ColorCache{
		Path:    filepath.Join(dir, cacheFile),
		Members: make(map[string]*MemberState),
		now:     time.Now,
	}
	if _, err := os.Stat(cache.Path); err == nil {
		if err := cache.Load(); err != nil {
			return nil, err
		}
	}
	return cache, nil
}

func (c *ColorCache) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return err
	}
	members := make(map[string]*MemberState)
	if err := json.Unmarshal(data, &members); err != nil {
		return fmt.Errorf("failed to decode color cache %s: %w", c.Path, err)
	}
	c.mu.Lock()
	c.Members = members
	c.dirty = false
	c.mu.Unlock()
	return nil
}

func (c *ColorCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return fmt.Errorf("failed to create color cache directory: %w", err)
	}
	data, err := json.Marshal(c.Members)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Path, data, 0600); err != nil {
		return fmt.Errorf("failed to write color cache: %w", err)
	}
	c.dirty = false
	return nil
}

// ColorID returns the colour for a member, assigning one on first sight.
func (c *ColorCache) ColorID(memberID string) string {
	if memberID == "" {
		return UnassignedColor
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.Members[memberID]; ok {
		state.LastModified = c.now()
		c.dirty = true
		return state.ColorID
	}
	return c.assign(memberID)
}

func (c *ColorCache) assign(memberID string) string {
	used := make(map[string]bool)
	for _, s := range c.Members {
		used[s.ColorID] = true
	}
	for i := 1; i <= paletteSize; i++ {
		id := strconv.Itoa(i)
		if !used[id] {
			c.Members[memberID] = &MemberState{ColorID: id, LastModified: c.now()}
			c.dirty = true
			return id
		}
	}

	// Palette is full: recycle the least recently used colour.
	var oldest string
	var oldestTime time.Time
	for m, s := range c.Members {
		if oldest == "" || s.LastModified.Before(oldestTime) {
			oldest, oldestTime = m, s.LastModified
		}
	}
	recycled := c.Members[oldest].ColorID
	delete(c.Members, oldest)
	c.Members[memberID] = &MemberState{ColorID: recycled, LastModified: c.now()}
	c.dirty = true
	return recycled
}
