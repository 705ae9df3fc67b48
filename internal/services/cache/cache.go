package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/service-chatbot-go/internal/config"
	"github.com/service-chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

const catalogKey = "question_catalog"

// Service defines cache operations: answers to repeated free-form
// questions, and the read-only question-catalog snapshot that is
// refreshed after any add/remove/upload call.
type Service interface {
	GetAnswer(ctx context.Context, question string) (string, bool)
	SetAnswer(ctx context.Context, question, answer string) error
	GetCatalog(ctx context.Context) ([]string, bool)
	SetCatalog(ctx context.Context, questions []string) error
	InvalidateCatalog(ctx context.Context)
	Clear(ctx context.Context) error
}

// Cache implements caching service
type Cache struct {
	enabled bool
	answers *cache.Cache
	catalog *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new cache service. The catalog slot is kept even
// when answer caching is disabled; the catalog is client state, not an
// optimization.
func NewCache(cfg *config.Config, logger *logrus.Logger) Service {
	c := &Cache{
		enabled: cfg.Cache.Enabled,
		catalog: cache.New(cache.NoExpiration, cache.NoExpiration),
		logger:  logger,
		maxSize: cfg.Cache.MaxSize,
	}
	if cfg.Cache.Enabled {
		c.answers = cache.New(cfg.Cache.TTL, cfg.Cache.TTL*2)
	}
	return c
}

// GetAnswer retrieves a cached answer for a question
func (c *Cache) GetAnswer(ctx context.Context, question string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	key := c.generateKey(question)
	if val, found := c.answers.Get(key); found {
		entry := val.(*models.CacheEntry)
		c.logger.WithFields(logrus.Fields{
			"question": question,
			"age":      time.Since(entry.CreatedAt),
		}).Debug("Answer cache hit")
		return entry.Answer, true
	}

	return "", false
}

// SetAnswer stores an answer in cache
func (c *Cache) SetAnswer(ctx context.Context, question, answer string) error {
	if !c.enabled {
		return nil
	}

	// Check cache size
	if c.answers.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing expired entries")
		c.answers.DeleteExpired()
	}

	key := c.generateKey(question)
	entry := &models.CacheEntry{
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now(),
	}

	c.answers.SetDefault(key, entry)
	c.logger.WithField("question", question).Debug("Answer cached")
	return nil
}

// GetCatalog returns the cached question-catalog snapshot.
func (c *Cache) GetCatalog(ctx context.Context) ([]string, bool) {
	if val, found := c.catalog.Get(catalogKey); found {
		return val.([]string), true
	}
	return nil, false
}

// SetCatalog replaces the question-catalog snapshot.
func (c *Cache) SetCatalog(ctx context.Context, questions []string) error {
	snapshot := append([]string(nil), questions...)
	c.catalog.Set(catalogKey, snapshot, cache.NoExpiration)
	c.logger.WithField("questions", len(snapshot)).Debug("Question catalog refreshed")
	return nil
}

// InvalidateCatalog drops the catalog snapshot so the next refresh
// starts from nothing.
func (c *Cache) InvalidateCatalog(ctx context.Context) {
	c.catalog.Delete(catalogKey)
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if c.answers != nil {
		c.answers.Flush()
	}
	c.catalog.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

// generateKey creates a unique cache key
func (c *Cache) generateKey(question string) string {
	hash := sha256.Sum256([]byte(question))
	return hex.EncodeToString(hash[:])
}
