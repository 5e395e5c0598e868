// Package redis implements Redis caching for the course access hub.
package redis

import (
	"context"
	"errors"

	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/pkg/logger"
	"github.com/curso-hub/curso-access-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG CACHE
// ══════════════════════════════════════════════════════════════════════════════

// CatalogCache is a read-through cache in front of a catalog.Reader. Every
// access check resolves the lesson chain, so the hot path hits the same few
// catalog rows over and over. A miss or any Redis failure falls back to the
// inner reader; the cache never turns a healthy database into an error.
type CatalogCache struct {
	inner   catalog.Reader
	cache   *Cache
	retrier *retry.Retrier
	log     *logger.Logger
}

// NewCatalogCache creates a caching decorator around a catalog reader.
func NewCatalogCache(inner catalog.Reader, cache *Cache, log *logger.Logger) *CatalogCache {
	return &CatalogCache{
		inner:   inner,
		cache:   cache,
		retrier: retry.CacheRetrier(),
		log:     log.With(logger.Component("catalog_cache")),
	}
}

// GetUser returns a user by ID, serving from cache when possible.
func (c *CatalogCache) GetUser(ctx context.Context, id string) (*catalog.User, error) {
	var cached catalog.User
	if c.lookup(ctx, UserKey(id), &cached) {
		return &cached, nil
	}

	user, err := c.inner.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store(ctx, UserKey(id), user)
	return user, nil
}

// GetCourse returns a course by ID, serving from cache when possible.
func (c *CatalogCache) GetCourse(ctx context.Context, id string) (*catalog.Course, error) {
	var cached catalog.Course
	if c.lookup(ctx, CourseKey(id), &cached) {
		return &cached, nil
	}

	course, err := c.inner.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store(ctx, CourseKey(id), course)
	return course, nil
}

// GetModule returns a module by ID, serving from cache when possible.
func (c *CatalogCache) GetModule(ctx context.Context, id string) (*catalog.Module, error) {
	var cached catalog.Module
	if c.lookup(ctx, ModuleKey(id), &cached) {
		return &cached, nil
	}

	module, err := c.inner.GetModule(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store(ctx, ModuleKey(id), module)
	return module, nil
}

// GetLesson returns a lesson by ID, serving from cache when possible.
func (c *CatalogCache) GetLesson(ctx context.Context, id string) (*catalog.Lesson, error) {
	var cached catalog.Lesson
	if c.lookup(ctx, LessonKey(id), &cached) {
		return &cached, nil
	}

	lesson, err := c.inner.GetLesson(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store(ctx, LessonKey(id), lesson)
	return lesson, nil
}

// ListActiveModules returns the active modules of a course, sorted by ordem.
func (c *CatalogCache) ListActiveModules(ctx context.Context, courseID string) ([]*catalog.Module, error) {
	var cached []*catalog.Module
	if c.lookupListing(ctx, CourseModulesKey(courseID), &cached) {
		return cached, nil
	}

	modules, err := c.inner.ListActiveModules(ctx, courseID)
	if err != nil {
		return nil, err
	}

	c.storeListing(ctx, CourseModulesKey(courseID), modules)
	return modules, nil
}

// ListActiveLessons returns the active lessons of a module, sorted by ordem.
func (c *CatalogCache) ListActiveLessons(ctx context.Context, moduleID string) ([]*catalog.Lesson, error) {
	var cached []*catalog.Lesson
	if c.lookupListing(ctx, ModuleLessonsKey(moduleID), &cached) {
		return cached, nil
	}

	lessons, err := c.inner.ListActiveLessons(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	c.storeListing(ctx, ModuleLessonsKey(moduleID), lessons)
	return lessons, nil
}

// Invalidate drops all cached catalog entries. Called when the catalog
// subsystem signals a change.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	for _, pattern := range []string{
		PrefixUser + "*",
		PrefixCourse + "*",
		PrefixModule + "*",
		PrefixLesson + "*",
		PrefixCourseModules + "*",
		PrefixModuleLessons + "*",
	} {
		if err := c.cache.DeleteByPattern(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

// lookup reads a single entity from cache. Returns false on miss or any Redis
// failure; failures are logged and swallowed so reads degrade to the inner
// reader.
func (c *CatalogCache) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.cache.Get(ctx, key, dest); err != nil {
			if errors.Is(err, ErrCacheMiss) {
				return retry.Permanent(err)
			}
			return err
		}
		return nil
	})
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("cache read failed", logger.String("key", key), logger.Err(err))
	}
	return false
}

func (c *CatalogCache) lookupListing(ctx context.Context, key string, dest interface{}) bool {
	return c.lookup(ctx, key, dest)
}

// store writes a cache entry best-effort.
func (c *CatalogCache) store(ctx context.Context, key string, value interface{}) {
	if err := c.cache.Set(ctx, key, value, TTLCatalogEntity); err != nil {
		c.log.Warn("cache write failed", logger.String("key", key), logger.Err(err))
	}
}

func (c *CatalogCache) storeListing(ctx context.Context, key string, value interface{}) {
	if err := c.cache.Set(ctx, key, value, TTLCatalogListing); err != nil {
		c.log.Warn("cache write failed", logger.String("key", key), logger.Err(err))
	}
}
