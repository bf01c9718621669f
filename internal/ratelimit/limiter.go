package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	rpmSlots   = 60 // 1-second slots
	rphSlots   = 60 // 1-minute slots
	bytesSlots = 60 // 1-second slots

	defaultRPM     = 600
	defaultRPH     = 1000
	defaultBytesPM = 50 * 1024 * 1024
)

// LimitType identifies which window rejected a request.
type LimitType string

const (
	LimitRPM     LimitType = "rpm"
	LimitRPH     LimitType = "rph"
	LimitBytesPM LimitType = "bytes_pm"
)

// Window names used in the 429 response body's "window" field.
const (
	WindowPerMinute      = "per_minute"
	WindowPerHour        = "per_hour"
	WindowPerMinuteBytes = "per_minute_bytes"
)

// Config carries the per-provider limits; zero/negative values fall back to
// the documented defaults.
type Config struct {
	Enabled bool
	RPM     int64
	RPH     int64
	BytesPM int64
}

// WithDefaults returns a copy of c with non-positive numeric fields replaced
// by the documented defaults.
func (c Config) WithDefaults() Config {
	if c.RPM <= 0 {
		c.RPM = defaultRPM
	}
	if c.RPH <= 0 {
		c.RPH = defaultRPH
	}
	if c.BytesPM <= 0 {
		c.BytesPM = defaultBytesPM
	}
	return c
}

// providerState holds the sliding windows for one provider.
type providerState struct {
	rpm   *slidingWindow
	rph   *slidingWindow
	bytes *slidingWindow
}

func newProviderState() *providerState {
	return &providerState{
		rpm:   newSlidingWindow(rpmSlots),
		rph:   newSlidingWindow(rphSlots),
		bytes: newSlidingWindow(bytesSlots),
	}
}

// Decision is the result of Check.
type Decision struct {
	Allowed    bool
	LimitType  LimitType
	Window     string
	Limit      int64
	Remaining  int64
	RetryAfter int64 // seconds
}

// Limiter enforces the sliding-window request/byte budgets described for
// each provider. All methods are safe for concurrent use and never panic
// outward: any internal error is recovered and yields an allow decision.
type Limiter struct {
	mu    sync.Mutex
	cfg   map[string]Config
	state map[string]*providerState
}

// New builds a Limiter. cfg maps provider name to its Config; providers not
// present use Config{} (defaulted, but Enabled=false unless set).
func New(cfg map[string]Config) *Limiter {
	normalized := make(map[string]Config, len(cfg))
	for k, v := range cfg {
		normalized[k] = v.WithDefaults()
	}
	return &Limiter{
		cfg:   normalized,
		state: make(map[string]*providerState),
	}
}

func (l *Limiter) stateFor(provider string) *providerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.state[provider]
	if !ok {
		st = newProviderState()
		l.state[provider] = st
	}
	return st
}

// Check runs the full decision sequence for an incoming request of
// requestBytes size on provider. It is fail-open: a recovered panic yields
// Decision{Allowed: true}.
func (l *Limiter) Check(provider string, requestBytes int64) (decision Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			decision = Decision{Allowed: true}
		}
	}()

	cfg, ok := l.cfg[provider]
	if !ok || !cfg.Enabled {
		return Decision{Allowed: true}
	}

	st := l.stateFor(provider)
	now := time.Now()
	nowSec := now.Unix()
	nowMin := now.Unix() / 60

	rpmCount := int64(st.rpm.count(nowSec))
	if rpmCount >= cfg.RPM {
		st.rpm.noteCheckResult(true)
		retry := st.rpm.estimateRetryAfter(nowSec, uint64(cfg.RPM))
		return Decision{
			Allowed: false, LimitType: LimitRPM, Window: WindowPerMinute,
			Limit: cfg.RPM, Remaining: 0, RetryAfter: retry,
		}
	}
	st.rpm.noteCheckResult(false)

	rphCount := int64(st.rph.count(nowMin))
	if rphCount >= cfg.RPH {
		st.rph.noteCheckResult(true)
		retryMinutes := st.rph.estimateRetryAfter(nowMin, uint64(cfg.RPH))
		return Decision{
			Allowed: false, LimitType: LimitRPH, Window: WindowPerHour,
			Limit: cfg.RPH, Remaining: 0, RetryAfter: retryMinutes * 60,
		}
	}
	st.rph.noteCheckResult(false)

	bytesCount := int64(st.bytes.count(nowSec))
	if requestBytes > 0 && bytesCount+requestBytes > cfg.BytesPM {
		st.bytes.noteCheckResult(true)
		retry := st.bytes.estimateRetryAfter(nowSec, uint64(cfg.BytesPM))
		return Decision{
			Allowed: false, LimitType: LimitBytesPM, Window: WindowPerMinuteBytes,
			Limit: cfg.BytesPM, Remaining: 0, RetryAfter: retry,
		}
	}
	st.bytes.noteCheckResult(false)

	st.rpm.record(nowSec, 1)
	st.rph.record(nowMin, 1)
	if requestBytes > 0 {
		st.bytes.record(nowSec, uint64(requestBytes))
	}

	remaining := cfg.RPM - rpmCount - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: cfg.RPM, Remaining: remaining}
}

// Enabled reports whether the limiter is configured on for provider.
func (l *Limiter) Enabled(provider string) bool {
	cfg, ok := l.cfg[provider]
	return ok && cfg.Enabled
}

// Snapshot describes the current RPM/RPH usage for /health's rate_limits view.
type Snapshot struct {
	Enabled bool
	RPM     WindowSnapshot
	RPH     WindowSnapshot
}

// WindowSnapshot is {limit, remaining, reset} for one window.
type WindowSnapshot struct {
	Limit     int64
	Remaining int64
	Reset     int64 // full window length in seconds (60 for RPM, 3600 for RPH)
}

// Status returns a point-in-time snapshot for the /health endpoint without
// recording a request.
func (l *Limiter) Status(provider string) Snapshot {
	cfg, ok := l.cfg[provider]
	if !ok || !cfg.Enabled {
		return Snapshot{Enabled: false}
	}
	st := l.stateFor(provider)
	now := time.Now()
	nowSec := now.Unix()
	nowMin := now.Unix() / 60

	rpmCount := int64(st.rpm.count(nowSec))
	rphCount := int64(st.rph.count(nowMin))

	rpmRemaining := cfg.RPM - rpmCount
	if rpmRemaining < 0 {
		rpmRemaining = 0
	}
	rphRemaining := cfg.RPH - rphCount
	if rphRemaining < 0 {
		rphRemaining = 0
	}

	return Snapshot{
		Enabled: true,
		RPM:     WindowSnapshot{Limit: cfg.RPM, Remaining: rpmRemaining, Reset: rpmSlots},
		RPH:     WindowSnapshot{Limit: cfg.RPH, Remaining: rphRemaining, Reset: rphSlots * 60},
	}
}

// RejectBody builds the JSON error body for a 429 response.
func RejectBody(provider string, d Decision) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":        "rate_limit_error",
			"message":     fmt.Sprintf("rate limit exceeded: %s", d.LimitType),
			"provider":    provider,
			"limit":       d.Limit,
			"window":      d.Window,
			"retry_after": d.RetryAfter,
		},
	}
}
