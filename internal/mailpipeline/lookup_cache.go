package mailpipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jra3/agentmail/internal/cache"
	"github.com/jra3/agentmail/internal/db"
	"github.com/jra3/agentmail/internal/model"
)

// LookupCache memoizes the project/agent-by-name lookups the send/reply
// procedure repeats on every recipient (spec §4.5 steps 3-4): a thread with
// ten recipients across a handful of projects otherwise re-queries the same
// rows ten times per send. Built on the pack's generic TTL cache; entries
// expire quickly since a rename or a freshly registered recipient must
// become visible without a process restart.
type LookupCache struct {
	projectsBySlug     *cache.Cache[*model.Project]
	projectsByHumanKey *cache.Cache[*model.Project]
	agentsByName       *cache.Cache[*model.Agent]
}

// NewLookupCache builds a cache whose entries expire after ttl. The
// underlying caches are created with no size bound.
func NewLookupCache(ttl time.Duration) *LookupCache {
	return &LookupCache{
		projectsBySlug:     cache.New[*model.Project](ttl, 0),
		projectsByHumanKey: cache.New[*model.Project](ttl, 0),
		agentsByName:       cache.New[*model.Agent](ttl, 0),
	}
}

func agentCacheKey(projectID int64, name string) string {
	return fmt.Sprintf("%d:%s", projectID, strings.ToLower(name))
}

// projectBySlug resolves a project by slug through the cache, falling back
// to q on a miss. A nil cache (the zero value used by tests constructing a
// Pipeline directly) degrades to an uncached lookup.
func (c *LookupCache) projectBySlug(ctx context.Context, q *db.Queries, slug string) (*model.Project, error) {
	if c != nil {
		if p, ok := c.projectsBySlug.Get(slug); ok {
			return p, nil
		}
	}
	p, err := q.GetProjectBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if c != nil {
		c.projectsBySlug.Set(slug, p)
	}
	return p, nil
}

func (c *LookupCache) projectByHumanKey(ctx context.Context, q *db.Queries, humanKey string) (*model.Project, error) {
	if c != nil {
		if p, ok := c.projectsByHumanKey.Get(humanKey); ok {
			return p, nil
		}
	}
	p, err := q.GetProjectByHumanKey(ctx, humanKey)
	if err != nil {
		return nil, err
	}
	if c != nil && p != nil {
		c.projectsByHumanKey.Set(humanKey, p)
	}
	return p, nil
}

func (c *LookupCache) agentByName(ctx context.Context, q *db.Queries, projectID int64, name string) (*model.Agent, error) {
	key := agentCacheKey(projectID, name)
	if c != nil {
		if a, ok := c.agentsByName.Get(key); ok {
			return a, nil
		}
	}
	a, err := q.GetAgentByName(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	if c != nil {
		c.agentsByName.Set(key, a)
	}
	return a, nil
}

// InvalidateAgent drops any cached row for projectID/name. Call this after
// RegisterAgent so a just-updated profile can't be shadowed by a stale
// cached entry for the rest of its TTL.
func (c *LookupCache) InvalidateAgent(projectID int64, name string) {
	if c == nil {
		return
	}
	c.agentsByName.Delete(agentCacheKey(projectID, name))
}
