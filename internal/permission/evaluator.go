package permission

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docflowhq/docflow/model"
)

// cacheKey identifies one cached evaluation. Subject and template are kept
// as distinct fields so invalidation matches them exactly; the permission
// context collapses into a length-prefixed encoding that cannot collide
// across field boundaries.
type cacheKey struct {
	subjectID  string
	templateID string
	context    string
}

type cacheEntry struct {
	perms   model.PermissionSet
	expires time.Time
}

// CacheMetrics counts evaluator cache activity. Implementations must be safe
// for concurrent use; a nil CacheMetrics disables counting.
type CacheMetrics interface {
	PermissionCacheHit()
	PermissionCacheMiss()
}

// Evaluator implements model.PermissionEvaluator with an in-memory cache.
// Grants are fetched per template, matched against the actor's identity,
// roles, and department, filtered by conditions, and merged per permission
// key with the highest-priority grant winning.
type Evaluator struct {
	store   GrantStore
	ttl     time.Duration
	metrics CacheMetrics
	mu      sync.RWMutex
	cache   map[cacheKey]cacheEntry
}

// NewEvaluator creates a new Evaluator with the given store and cache TTL.
func NewEvaluator(store GrantStore, ttl time.Duration) *Evaluator {
	return &Evaluator{
		store: store,
		ttl:   ttl,
		cache: make(map[cacheKey]cacheEntry),
	}
}

// SetMetrics attaches cache counters. Must be called before the evaluator is
// shared across goroutines.
func (e *Evaluator) SetMetrics(m CacheMetrics) {
	e.metrics = m
}

func newCacheKey(rctx *model.RequestContext, templateID string, pctx model.PermissionContext) cacheKey {
	var b strings.Builder
	part := func(s string) {
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	part(pctx.FileType)
	part(pctx.Department)
	if len(pctx.Metadata) > 0 {
		keys := make([]string, 0, len(pctx.Metadata))
		for k := range pctx.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			part(k)
			part(pctx.Metadata[k])
		}
	}
	return cacheKey{
		subjectID:  rctx.SubjectID,
		templateID: templateID,
		context:    b.String(),
	}
}

// EffectivePermissions resolves the actor's permission set on a template.
// Results are cached for the configured TTL.
func (e *Evaluator) EffectivePermissions(ctx context.Context, rctx *model.RequestContext, templateID string, pctx model.PermissionContext) (model.PermissionSet, error) {
	key := newCacheKey(rctx, templateID, pctx)

	e.mu.RLock()
	if entry, ok := e.cache[key]; ok && time.Now().Before(entry.expires) {
		e.mu.RUnlock()
		if e.metrics != nil {
			e.metrics.PermissionCacheHit()
		}
		return entry.perms, nil
	}
	e.mu.RUnlock()
	if e.metrics != nil {
		e.metrics.PermissionCacheMiss()
	}

	grants, err := e.store.ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	perms := merge(grants, rctx, pctx)

	e.mu.Lock()
	e.cache[key] = cacheEntry{perms: perms, expires: time.Now().Add(e.ttl)}
	e.mu.Unlock()

	return perms, nil
}

// Invalidate clears cached permissions for the given actor and template. An
// empty templateID clears every template for the actor.
func (e *Evaluator) Invalidate(subjectID, templateID string) {
	e.mu.Lock()
	for key := range e.cache {
		if key.subjectID != subjectID {
			continue
		}
		if templateID != "" && key.templateID != templateID {
			continue
		}
		delete(e.cache, key)
	}
	e.mu.Unlock()
}

// InvalidateTemplate clears cached permissions for every actor on a template.
// Used when a grant is created, changed, or removed.
func (e *Evaluator) InvalidateTemplate(templateID string) {
	e.mu.Lock()
	for key := range e.cache {
		if key.templateID == templateID {
			delete(e.cache, key)
		}
	}
	e.mu.Unlock()
}

// merge combines the matching grants into one permission set. Grants arrive
// priority descending; for each key the first grant that defines it wins.
// At equal priority an explicit deny beats a concurrent allow.
func merge(grants []model.PermissionGrant, rctx *model.RequestContext, pctx model.PermissionContext) model.PermissionSet {
	perms := make(model.PermissionSet)
	decided := make(map[string]int)

	for _, g := range grants {
		if !matchesEntity(g, rctx) || !matchesConditions(g.Conditions, pctx) {
			continue
		}
		for key, allowed := range g.Permissions {
			prio, seen := decided[key]
			switch {
			case !seen:
				perms[key] = allowed
				decided[key] = g.Priority
			case prio == g.Priority && !allowed:
				perms[key] = false
			}
		}
	}
	return perms
}

func matchesEntity(g model.PermissionGrant, rctx *model.RequestContext) bool {
	switch g.EntityType {
	case model.GrantEntityUser:
		return g.EntityID == rctx.SubjectID
	case model.GrantEntityRole:
		return rctx.HasRole(g.EntityID)
	case model.GrantEntityDepartment:
		return g.EntityID == rctx.Department
	}
	return false
}

func matchesConditions(c model.GrantConditions, pctx model.PermissionContext) bool {
	if len(c.FileTypes) > 0 && !contains(c.FileTypes, pctx.FileType) {
		return false
	}
	if len(c.Departments) > 0 && !contains(c.Departments, pctx.Department) {
		return false
	}
	for k, v := range c.Metadata {
		if pctx.Metadata[k] != v {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
