package configstatus

import (
	"fmt"
	"sort"
	"sync"

	"github.com/npratt/pipedeck/internal/pipeline"
)

// Cache is an in-memory Provider. It is safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	campaigns map[string]*Snapshot
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{campaigns: make(map[string]*Snapshot)}
}

// Statuses implements Provider.
func (c *Cache) Statuses(campaignID string) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.campaigns[campaignID]
}

// Set replaces the statuses of a campaign.
func (c *Cache) Set(campaignID string, statuses map[pipeline.PhaseKey]string) *Snapshot {
	snap := NewSnapshot(statuses)
	c.mu.Lock()
	c.campaigns[campaignID] = snap
	c.mu.Unlock()
	return snap
}

// SetWire replaces the statuses of a campaign from names in either the
// internal or the backend vocabulary. Unknown phase names are rejected
// without modifying the cache.
func (c *Cache) SetWire(campaignID string, statuses map[string]string) (*Snapshot, error) {
	keyed, err := ResolveNames(statuses)
	if err != nil {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, err)
	}
	return c.Set(campaignID, keyed), nil
}

// Replace swaps the whole cache contents in one step and returns the IDs
// of campaigns that were added, changed or removed, sorted. Campaigns whose
// statuses did not change keep their existing snapshot pointer.
func (c *Cache) Replace(all map[string]map[pipeline.PhaseKey]string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]*Snapshot, len(all))
	var changed []string
	for id, statuses := range all {
		snap := NewSnapshot(statuses)
		if prev, ok := c.campaigns[id]; ok && prev.Equal(snap) {
			next[id] = prev
			continue
		}
		next[id] = snap
		changed = append(changed, id)
	}
	for id := range c.campaigns {
		if _, ok := next[id]; !ok {
			changed = append(changed, id)
		}
	}
	c.campaigns = next
	sort.Strings(changed)
	return changed
}

// Delete forgets a campaign.
func (c *Cache) Delete(campaignID string) {
	c.mu.Lock()
	delete(c.campaigns, campaignID)
	c.mu.Unlock()
}

// Campaigns returns the known campaign IDs, sorted.
func (c *Cache) Campaigns() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.campaigns))
	for id := range c.campaigns {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// ResolveNames translates phase names (internal or wire) to keys.
func ResolveNames(statuses map[string]string) (map[pipeline.PhaseKey]string, error) {
	out := make(map[pipeline.PhaseKey]string, len(statuses))
	for name, status := range statuses {
		k, err := pipeline.Resolve(name)
		if err != nil {
			return nil, err
		}
		out[k] = status
	}
	return out, nil
}
