package query

import (
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTemplateCacheSize bounds the number of memoized template scans.
const DefaultTemplateCacheSize = 512

var placeholderPattern = regexp.MustCompile(`@[A-Za-z0-9_]+`)

// templateCache memoizes placeholder scans keyed by the template hash.
type templateCache struct {
	entries *lru.Cache[uint64, scanEntry]
	stats   templateCacheStats
	mu      sync.Mutex
}

type scanEntry struct {
	text   string
	tokens []string
}

type templateCacheStats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// TemplateCacheStats reports template scan cache performance.
type TemplateCacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

var scans = newTemplateCache(DefaultTemplateCacheSize)

func newTemplateCache(size int) *templateCache {
	c := &templateCache{}
	c.entries, _ = lru.NewWithEvict[uint64, scanEntry](size, func(uint64, scanEntry) {
		c.stats.evictions.Add(1)
	})
	return c
}

// placeholders returns the distinct tokens of text in first-seen order.
func (c *templateCache) placeholders(text string) []string {
	key := xxhash.Sum64String(text)
	if entry, ok := c.entries.Get(key); ok && entry.text == text {
		c.stats.hits.Add(1)
		return entry.tokens
	}
	c.stats.misses.Add(1)

	tokens := scanPlaceholders(text)
	c.entries.Add(key, scanEntry{text: text, tokens: tokens})
	return tokens
}

func (c *templateCache) resize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Resize(size)
}

func scanPlaceholders(text string) []string {
	matches := placeholderPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		tokens = append(tokens, m)
	}
	return tokens
}

// GetTemplateCacheStats returns the process-wide template scan cache statistics.
func GetTemplateCacheStats() TemplateCacheStats {
	return TemplateCacheStats{
		Hits:      scans.stats.hits.Load(),
		Misses:    scans.stats.misses.Load(),
		Evictions: scans.stats.evictions.Load(),
		Size:      scans.entries.Len(),
	}
}

// ResizeTemplateCache changes the number of memoized template scans.
func ResizeTemplateCache(size int) {
	if size <= 0 {
		size = DefaultTemplateCacheSize
	}
	scans.resize(size)
}
