package promplate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"
)

// CompletionCache stores completion text by key. Implementations must be safe
// for concurrent use.
type CompletionCache interface {
	// Get returns the cached text and whether it was found
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores text under key
	Set(ctx context.Context, key, text string) error
}

// CompletionCacheKey derives the cache key of a completion request from the
// prompt and its configuration. Map keys are encoded in sorted order, so equal
// configs give equal keys.
func CompletionCacheKey(prompt string, cfg Config) (string, error) {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte(CacheKeySeparator))
	if len(cfg) > 0 {
		data, err := json.Marshal(cfg)
		if err != nil {
			return "", err
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CacheOption configures CachedComplete.
type CacheOption func(*cachedCompletion)

// WithCacheLogger sets the logger for cache hits, misses and backend failures.
// Default: zap.NewNop().
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *cachedCompletion) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type cachedCompletion struct {
	complete Complete
	cache    CompletionCache
	logger   *zap.Logger
}

// CachedComplete memoises complete in cache. A failing cache backend never fails
// the completion: the failure is logged and the call goes through to complete.
// Errors from complete are returned unchanged and not cached.
func CachedComplete(complete Complete, cache CompletionCache, opts ...CacheOption) Complete {
	c := &cachedCompletion{complete: complete, cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c.run
}

func (c *cachedCompletion) run(ctx context.Context, prompt string, cfg Config) (string, error) {
	key, err := CompletionCacheKey(prompt, cfg)
	if err != nil {
		// an unencodable config cannot be keyed; skip the cache
		c.logger.Warn(LogMsgCacheFailed, zap.Error(NewCacheError(err)))
		return c.complete(ctx, prompt, cfg)
	}

	text, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn(LogMsgCacheFailed, zap.String(LogFieldKey, key), zap.Error(err))
	case ok:
		c.logger.Debug(LogMsgCacheHit, zap.String(LogFieldKey, key))
		return text, nil
	default:
		c.logger.Debug(LogMsgCacheMiss, zap.String(LogFieldKey, key))
	}

	text, err = c.complete(ctx, prompt, cfg)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, text); err != nil {
		c.logger.Warn(LogMsgCacheFailed, zap.String(LogFieldKey, key), zap.Error(err))
	}
	return text, nil
}
