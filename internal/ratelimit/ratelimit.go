// Package ratelimit implements the gateway's fixed-window request limiter.
// Counters are kept per (rule, identity) pair, where the identity is the
// session token when the request carries one and the peer address otherwise,
// so authenticated clients are not penalised for sharing a NAT.
package ratelimit

import (
	"sync"
	"time"

	"github.com/aledlb8/Mango-sub000/internal/config"
)

// Rule names understood by the limiter. Requests matched to no named rule
// fall back to RuleDefault.
const (
	RuleAuth      = "auth"
	RuleMessages  = "messages.create"
	RuleTyping    = "typing"
	RuleReactions = "reactions"
	RuleDefault   = "default"
)

// maxBuckets is the map size past which expired buckets are pruned before
// inserting a new one.
const maxBuckets = 10000

// Rule is a fixed-window budget: Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter tracks fixed-window counters for every (rule, identity) pair it
// has seen. The zero value is not usable; construct with New or FromConfig.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rules   map[string]Rule
	now     func() time.Time
}

// New creates a limiter with the given rules. The RuleDefault entry must be
// present; it backs every rule name the map does not mention.
func New(rules map[string]Rule) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rules:   rules,
		now:     time.Now,
	}
}

// FromConfig builds the limiter from the configured budgets.
func FromConfig(cfg *config.Config) *Limiter {
	return New(map[string]Rule{
		RuleAuth:      {Limit: cfg.RateLimitAuthCount, Window: time.Duration(cfg.RateLimitAuthWindowSeconds) * time.Second},
		RuleMessages:  {Limit: cfg.RateLimitMessagesCount, Window: time.Duration(cfg.RateLimitMessagesWindowSeconds) * time.Second},
		RuleTyping:    {Limit: cfg.RateLimitTypingCount, Window: time.Duration(cfg.RateLimitTypingWindowSeconds) * time.Second},
		RuleReactions: {Limit: cfg.RateLimitReactionsCount, Window: time.Duration(cfg.RateLimitReactionsWindowSeconds) * time.Second},
		RuleDefault:   {Limit: cfg.RateLimitAPIRequests, Window: time.Duration(cfg.RateLimitAPIWindowSeconds) * time.Second},
	})
}

// Allow consumes one request from the window for (rule, identity). When the
// budget is exhausted it reports false along with the time remaining until
// the window resets.
func (l *Limiter) Allow(rule, identity string) (bool, time.Duration) {
	r, ok := l.rules[rule]
	if !ok {
		r = l.rules[RuleDefault]
	}
	now := l.now()
	key := rule + ":" + identity

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil || !now.Before(b.resetAt) {
		if len(l.buckets) >= maxBuckets {
			l.prune(now)
		}
		b = &bucket{resetAt: now.Add(r.Window)}
		l.buckets[key] = b
	}

	if b.count >= r.Limit {
		return false, b.resetAt.Sub(now)
	}
	b.count++
	return true, 0
}

// prune drops every expired bucket. Callers must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}
