// Package server implements the per-client message rate policy applied by the
// hub before a message is relayed.
package server

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitPolicy selects what happens to a client that sends more than one
// message per window.
type RateLimitPolicy string

const (
	// RateLimitOff tracks message times without rejecting anything.
	RateLimitOff RateLimitPolicy = "off"
	// RateLimitDrop discards messages that arrive inside the window.
	RateLimitDrop RateLimitPolicy = "drop"
	// RateLimitDisconnect closes clients that send inside the window.
	RateLimitDisconnect RateLimitPolicy = "disconnect"
)

// RateLimitConfig defines the window between accepted messages of one client
// and the policy enforced when it is violated.
type RateLimitConfig struct {
	Window time.Duration   `yaml:"window"`
	Policy RateLimitPolicy `yaml:"policy"`
}

func parseRateLimitPolicy(value string) (RateLimitPolicy, error) {
	switch p := RateLimitPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return RateLimitOff, nil
	case RateLimitOff, RateLimitDrop, RateLimitDisconnect:
		return p, nil
	default:
		return "", fmt.Errorf("unknown rate limit policy %q (want off, drop or disconnect)", value)
	}
}

type verdict int

const (
	verdictAllow verdict = iota
	verdictDrop
	verdictDisconnect
)

type rateLimiter struct {
	window time.Duration
	policy RateLimitPolicy
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Second
	}
	policy := cfg.Policy
	if policy == "" {
		policy = RateLimitOff
	}
	return &rateLimiter{window: window, policy: policy}
}

// initialLastMessage is far enough in the past that a new client's first
// message is never throttled.
func (rl *rateLimiter) initialLastMessage(now time.Time) time.Time {
	return now.Add(-2 * rl.window)
}

// check decides whether a message arriving at now may be relayed, given the
// time of the client's last accepted message.
func (rl *rateLimiter) check(last, now time.Time) verdict {
	if now.Sub(last) >= rl.window {
		return verdictAllow
	}
	switch rl.policy {
	case RateLimitDrop:
		return verdictDrop
	case RateLimitDisconnect:
		return verdictDisconnect
	default:
		return verdictAllow
	}
}
