// Package ratelimit implements fixed-window request limits in Redis.
//
// A window is a counter key created by INCR with a TTL set on the first
// hit. Checks read the counter without incrementing it, so callers decide
// which requests count.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy is a request budget per window
type Policy struct {
	Limit  int
	Window time.Duration
}

// Purposes with their own budgets
const (
	PurposeRegister  = "register"
	PurposeLogin     = "login"
	PurposeURLCreate = "url_create"
	PurposeURLList   = "url_list"
	PurposeURLGet    = "url_get"
	PurposeURLDelete = "url_delete"
	PurposeRedirect  = "redirect"
)

// DefaultPolicy applies to purposes without an entry and to the plain IP checks
var DefaultPolicy = Policy{Limit: 10, Window: 15 * time.Minute}

// DefaultPolicies are the per-route budgets
var DefaultPolicies = map[string]Policy{
	PurposeRegister:  {Limit: 100, Window: time.Hour},
	PurposeLogin:     {Limit: 20, Window: time.Minute},
	PurposeURLCreate: {Limit: 10, Window: time.Minute},
	PurposeURLList:   {Limit: 30, Window: time.Minute},
	PurposeURLGet:    {Limit: 30, Window: time.Minute},
	PurposeURLDelete: {Limit: 5, Window: time.Minute},
	PurposeRedirect:  {Limit: 60, Window: time.Minute},
}

// EmailCooldown is the minimum spacing between emails sent to one address
const EmailCooldown = 2 * time.Minute

// Limiter enforces per-IP budgets and per-email cooldowns
type Limiter struct {
	client   redis.UniversalClient
	prefix   string
	enabled  bool
	policies map[string]Policy
}

// Option customizes a Limiter
type Option func(*Limiter)

// WithPolicy overrides the budget for purpose
func WithPolicy(purpose string, p Policy) Option {
	return func(l *Limiter) { l.policies[purpose] = p }
}

// Disabled turns every check into a pass
func Disabled() Option {
	return func(l *Limiter) { l.enabled = false }
}

func NewLimiter(client redis.UniversalClient, prefix string, opts ...Option) *Limiter {
	l := &Limiter{
		client:   client,
		prefix:   prefix,
		enabled:  true,
		policies: make(map[string]Policy, len(DefaultPolicies)),
	}
	for k, v := range DefaultPolicies {
		l.policies[k] = v
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the budget applied to purpose
func (l *Limiter) Policy(purpose string) Policy {
	if p, ok := l.policies[purpose]; ok {
		return p
	}
	return DefaultPolicy
}

// CheckIPRateLimitWithPurpose reports whether ip has used up its budget for purpose
func (l *Limiter) CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error) {
	return l.exceeded(ctx, l.ipKey(ip, purpose), l.Policy(purpose))
}

// RecordIPRequestWithPurpose counts one request by ip against purpose
func (l *Limiter) RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error {
	_, err := l.record(ctx, l.ipKey(ip, purpose), l.Policy(purpose))
	return err
}

// CheckIPRateLimit checks the shared budget used by email-sending endpoints
func (l *Limiter) CheckIPRateLimit(ctx context.Context, ip string) (bool, error) {
	return l.exceeded(ctx, l.ipKey(ip, "email"), DefaultPolicy)
}

// RecordIPRequest counts one request against the shared budget
func (l *Limiter) RecordIPRequest(ctx context.Context, ip string) error {
	_, err := l.record(ctx, l.ipKey(ip, "email"), DefaultPolicy)
	return err
}

// Allow checks and records in one step. It returns false once the request
// would exceed the budget.
func (l *Limiter) Allow(ctx context.Context, ip, purpose string) (bool, error) {
	if !l.enabled {
		return true, nil
	}
	p := l.Policy(purpose)
	count, err := l.record(ctx, l.ipKey(ip, purpose), p)
	if err != nil {
		return true, err
	}
	return count <= int64(p.Limit), nil
}

// CheckEmailCooldown reports whether email was sent a message recently
func (l *Limiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	if !l.enabled {
		return false, nil
	}
	n, err := l.client.Exists(ctx, l.cooldownKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email cooldown: %w", err)
	}
	return n > 0, nil
}

// SetEmailCooldown starts the cooldown for email
func (l *Limiter) SetEmailCooldown(ctx context.Context, email string) error {
	if !l.enabled {
		return nil
	}
	if err := l.client.Set(ctx, l.cooldownKey(email), "1", EmailCooldown).Err(); err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return nil
}

func (l *Limiter) exceeded(ctx context.Context, key string, p Policy) (bool, error) {
	if !l.enabled {
		return false, nil
	}
	count, err := l.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return count >= int64(p.Limit), nil
}

func (l *Limiter) record(ctx context.Context, key string, p Policy) (int64, error) {
	if !l.enabled {
		return 0, nil
	}
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	// Fixed window: the TTL is set by the first hit only
	if count == 1 {
		if err := l.client.Expire(ctx, key, p.Window).Err(); err != nil {
			return count, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count, nil
}

func (l *Limiter) ipKey(ip, purpose string) string {
	return fmt.Sprintf("%s:ip:%s:%s", l.prefix, purpose, ip)
}

func (l *Limiter) cooldownKey(email string) string {
	return fmt.Sprintf("%s:cooldown:%s", l.prefix, strings.ToLower(email))
}
