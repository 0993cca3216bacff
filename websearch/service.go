package websearch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/higress-group/newsrag/cache"
	"github.com/higress-group/newsrag/common/apperr"
	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
)

const cacheKeyPrefix = "newsrag:websearch:"

// Service applies the skip decision, the L1/L2 cache and the daily quota in
// front of a Provider.
type Service struct {
	provider     Provider
	l1           cache.Cache[*Result]
	l2           kv
	ttl          time.Duration
	quota        *Quota
	skipCoverage float64
	trusted      []string
}

type Options struct {
	L1           cache.Cache[*Result]
	Redis        kv
	TTL          time.Duration
	Quota        *Quota
	SkipCoverage float64
	Trusted      []string
}

func NewService(p Provider, opt Options) *Service {
	if opt.TTL <= 0 {
		opt.TTL = time.Hour
	}
	if opt.SkipCoverage <= 0 {
		opt.SkipCoverage = 0.8
	}
	return &Service{
		provider:     p,
		l1:           opt.L1,
		l2:           opt.Redis,
		ttl:          opt.TTL,
		quota:        opt.Quota,
		skipCoverage: opt.SkipCoverage,
		trusted:      opt.Trusted,
	}
}

// New wires the configured provider. It returns a nil Searcher when external
// search is disabled. rdb may be nil.
func New(cfg *config.Config, rdb *redis.Client) Searcher {
	if !cfg.Search.ExternalEnabled || cfg.WebSearch.Provider == "none" || cfg.WebSearch.Provider == "" {
		return nil
	}
	ttl := time.Duration(cfg.WebSearch.CacheTTLSeconds) * time.Second
	opt := Options{
		L1:           cache.NewLRU[*Result](cfg.WebSearch.L1CacheSize, ttl),
		TTL:          ttl,
		SkipCoverage: cfg.WebSearch.SkipCoverage,
		Trusted:      cfg.Search.TrustedDomains,
	}
	var store kv
	if rdb != nil {
		store = rdb
		opt.Redis = store
	}
	opt.Quota = NewQuota(cfg.WebSearch.DailyLimit, store, cfg.Location())
	return NewService(NewPerplexity(cfg.WebSearch, nil), opt)
}

// CacheKey hashes the normalized query.
func CacheKey(query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha1.Sum([]byte(norm))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (s *Service) Search(ctx context.Context, query string, hints Hints, force bool) (*Result, error) {
	if !force && hints.InternalCoverage >= s.skipCoverage {
		logger.Debugf("external search skipped, internal coverage %.2f", hints.InternalCoverage)
		return &Result{Query: query, Skipped: true}, nil
	}
	key := CacheKey(query)
	if !force {
		if res, ok := s.lookup(ctx, key); ok {
			cp := *res
			cp.Cached = true
			return &cp, nil
		}
	}
	if err := s.quota.Take(ctx); err != nil {
		return nil, apperr.Provider("websearch."+s.provider.Name(), err)
	}
	res, err := s.provider.Query(ctx, query)
	if err != nil {
		return nil, apperr.Provider("websearch."+s.provider.Name(), err)
	}
	res.Confidence = Confidence(res, s.trusted)
	s.store(ctx, key, res)
	logger.Infof("external search done, provider=%s sources=%d confidence=%.2f", s.provider.Name(), len(res.Sources), res.Confidence)
	return res, nil
}

func (s *Service) lookup(ctx context.Context, key string) (*Result, bool) {
	if s.l1 != nil {
		if res, ok := s.l1.Get(key); ok {
			return res, true
		}
	}
	if s.l2 == nil {
		return nil, false
	}
	raw, err := s.l2.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warnf("search cache read failed, err: %v", err)
		}
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		logger.Warnf("search cache entry corrupt, key=%s, err: %v", key, err)
		return nil, false
	}
	if s.l1 != nil {
		s.l1.Set(key, &res, 0)
	}
	return &res, true
}

func (s *Service) store(ctx context.Context, key string, res *Result) {
	if s.l1 != nil {
		s.l1.Set(key, res, 0)
	}
	if s.l2 == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.l2.Set(ctx, key, b, s.ttl).Err(); err != nil {
		logger.Warnf("search cache write failed, err: %v", err)
	}
}

func (s *Service) String() string {
	return fmt.Sprintf("websearch(%s)", s.provider.Name())
}
