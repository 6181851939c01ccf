package news

import (
	"context"
	"sync"
	"time"

	"multi-agent-trader/internal/logger"
)

// Service provides headline digests with caching
type Service struct {
	scraper  *Scraper
	analyzer *Analyzer
	cache    *digestCache
	cfg      *ServiceConfig
}

// ServiceConfig configures the news digest service
type ServiceConfig struct {
	MaxHeadlines   int           // Maximum headlines to scrape per symbol
	CacheDuration  time.Duration // How long to cache digests
	ScraperTimeout time.Duration // Timeout for scraping operations
	Enabled        bool          // Whether news digests are enabled
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxHeadlines:   12,
		CacheDuration:  20 * time.Minute,
		ScraperTimeout: 30 * time.Second,
		Enabled:        true,
	}
}

// digestCache stores digests temporarily
type digestCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
}

type cacheEntry struct {
	digest    Digest
	timestamp time.Time
}

// newDigestCache creates a new cache
func newDigestCache(ttl time.Duration) *digestCache {
	cache := &digestCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
	}

	// Start cleanup goroutine
	go cache.cleanupLoop()

	return cache
}

// get retrieves a cached digest if still valid
func (c *digestCache) get(symbol string) (Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[symbol]
	if !exists {
		return Digest{}, false
	}

	if time.Since(entry.timestamp) > c.ttl {
		return Digest{}, false
	}

	return entry.digest, true
}

// set stores a digest in the cache
func (c *digestCache) set(symbol string, d Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[symbol] = &cacheEntry{
		digest:    d,
		timestamp: time.Now(),
	}
}

// cleanupLoop periodically removes expired entries
func (c *digestCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

// cleanup removes expired entries
func (c *digestCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for symbol, entry := range c.data {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.data, symbol)
		}
	}
}

// NewService creates a new news digest service
func NewService(serviceCfg *ServiceConfig) *Service {
	if serviceCfg == nil {
		serviceCfg = DefaultServiceConfig()
	}

	return &Service{
		scraper:  NewScraper(serviceCfg.ScraperTimeout),
		analyzer: NewAnalyzer(),
		cache:    newDigestCache(serviceCfg.CacheDuration),
		cfg:      serviceCfg,
	}
}

// GetDigest retrieves the news digest for a symbol (cached or fresh)
func (s *Service) GetDigest(ctx context.Context, symbol string) (Digest, error) {
	if !s.cfg.Enabled {
		return Digest{
			Symbol:           symbol,
			OverallSentiment: "NEUTRAL",
			Summary:          "News digests disabled",
			Timestamp:        time.Now().Unix(),
		}, nil
	}

	if cached, ok := s.cache.get(symbol); ok {
		logger.Info(ctx, "Using cached digest", "symbol", symbol, "age_minutes",
			time.Since(time.Unix(cached.Timestamp, 0)).Minutes())
		return cached, nil
	}

	logger.Info(ctx, "Fetching fresh headlines", "symbol", symbol)
	digest, err := s.fetchFreshDigest(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to build digest", err, "symbol", symbol)
		// Return a neutral digest on error rather than failing
		return Digest{
			Symbol:           symbol,
			OverallSentiment: "NEUTRAL",
			Summary:          "Failed to fetch headlines: " + err.Error(),
			Timestamp:        time.Now().Unix(),
		}, nil
	}

	s.cache.set(symbol, digest)

	return digest, nil
}

// fetchFreshDigest scrapes and scores headlines for a symbol
func (s *Service) fetchFreshDigest(ctx context.Context, symbol string) (Digest, error) {
	headlines, err := s.scraper.ScrapeHeadlines(ctx, symbol, s.cfg.MaxHeadlines)
	if err != nil {
		return Digest{}, err
	}

	// If no headlines found, try Google News as fallback
	if len(headlines) == 0 {
		logger.Info(ctx, "No headlines from primary sources, trying Google News", "symbol", symbol)
		headlines, err = s.scraper.ScrapeGoogleNews(ctx, symbol, s.cfg.MaxHeadlines)
		if err != nil {
			logger.ErrorWithErr(ctx, "Google News fallback failed", err, "symbol", symbol)
		}
	}

	return s.analyzer.BuildDigest(symbol, headlines), nil
}

// RefreshDigest forces a refresh (bypasses cache)
func (s *Service) RefreshDigest(ctx context.Context, symbol string) (Digest, error) {
	digest, err := s.fetchFreshDigest(ctx, symbol)
	if err != nil {
		return Digest{}, err
	}

	s.cache.set(symbol, digest)
	return digest, nil
}

// ClearCache removes all cached digests
func (s *Service) ClearCache() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.data = make(map[string]*cacheEntry)
}

// CachedSymbols returns the symbols with a cached digest
func (s *Service) CachedSymbols() []string {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()

	symbols := make([]string, 0, len(s.cache.data))
	for symbol := range s.cache.data {
		symbols = append(symbols, symbol)
	}
	return symbols
}
