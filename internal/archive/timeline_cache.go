package archive

import (
	"fmt"
	"time"

	"github.com/agentmail/coordinator/internal/cache"
)

// TimelineCache memoizes ActivityTimeline results: walking the full commit
// log to rebuild a timeline is the most expensive read ArchiveBrowser
// offers, and the same (since, until) window is requested repeatedly by a
// status dashboard or CLI polling loop.
type TimelineCache struct {
	archive *Archive
	entries *cache.Cache[*ActivityTimeline]
}

// NewTimelineCache wraps archive with a bounded cache of recent
// ActivityTimeline results. Entries expire after ttl and the cache holds at
// most maxEntries windows at a time.
func NewTimelineCache(archive *Archive, ttl time.Duration, maxEntries int) *TimelineCache {
	return &TimelineCache{
		archive: archive,
		entries: cache.New[*ActivityTimeline](ttl, maxEntries),
	}
}

// Get returns the ActivityTimeline for [since, until], computing and caching
// it on a miss.
func (c *TimelineCache) Get(since, until time.Time) (*ActivityTimeline, error) {
	key := timelineKey(since, until)
	if tl, ok := c.entries.Get(key); ok {
		return tl, nil
	}

	tl, err := c.archive.computeActivityTimeline(since, until)
	if err != nil {
		return nil, err
	}
	c.entries.Set(key, tl)
	return tl, nil
}

// Invalidate drops every cached window. Call after a commit so the next
// Get reflects newly archived activity.
func (c *TimelineCache) Invalidate() {
	c.entries.Clear()
}

// Stop releases the cache's background eviction goroutine.
func (c *TimelineCache) Stop() {
	c.entries.Stop()
}

func timelineKey(since, until time.Time) string {
	return fmt.Sprintf("%d:%d", since.UTC().Unix(), until.UTC().Unix())
}
