// cache.go — TTL-кэш результатов авторизации.
// Обёртка над hashicorp/golang-lru/v2/expirable.
// Ключ — sha256 от credential, значение — множество датасетов.
package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doa_token_cache_hits_total",
		Help: "Общее количество попаданий в кэш авторизации.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "doa_token_cache_misses_total",
		Help: "Общее количество промахов кэша авторизации.",
	})
)

// TokenCache — LRU-кэш авторизованных датасетов с автоматическим TTL.
// Каждый экземпляр DOA имеет собственный in-memory кэш (per-instance,
// stateless архитектура). TTL ограничивает окно устаревания прав:
// отозванная visa продолжает действовать не дольше TTL.
type TokenCache struct {
	cache *expirable.LRU[string, []string]
}

// NewTokenCache создаёт кэш с указанным максимальным размером и TTL.
func NewTokenCache(maxSize int, ttl time.Duration) *TokenCache {
	cache := expirable.NewLRU[string, []string](maxSize, nil, ttl)
	return &TokenCache{cache: cache}
}

// Get возвращает множество датасетов по хэшу credential.
// Обновляет Prometheus-метрики hit/miss.
func (c *TokenCache) Get(key string) ([]string, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *TokenCache) Set(key string, datasets []string) {
	c.cache.Add(key, datasets)
}
