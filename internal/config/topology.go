// Package config resolves the sidecar's two configuration tiers: a
// startup-immutable credential/topology tier read once from the
// environment, and a hot-reloadable ambient/operational tier read from an
// optional TOML file and watched with fsnotify. The two tiers are kept in
// separate types deliberately — ProviderConfig must never be touched by a
// reload, since credentials are startup-immutable.
package config

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/allaspectsdev/aw-firewall/internal/provider"
	"github.com/allaspectsdev/aw-firewall/internal/ratelimit"
)

// Fixed listener ports, one per provider; not exposed as environment
// overrides, so they are compile-time constants.
const (
	PortOpenAI    = 10000
	PortAnthropic = 10001
	PortCopilot   = 10002
)

const (
	defaultRPM     = 600
	defaultRPH     = 1000
	defaultBytesPM = 52428800
)

// Topology is the credential/topology tier: the closed set of provider
// configs, the shared upstream proxy URL, and the rate-limit settings
// applied uniformly to every enabled provider. It is read once at startup
// from the environment and never mutated afterward.
type Topology struct {
	Providers    map[provider.ID]provider.Config
	UpstreamHTTP string // HTTP_PROXY / HTTPS_PROXY, empty = direct connection
	RateLimit    ratelimit.Config
}

// LoadTopology resolves the topology tier from the process environment via
// viper's env-binding facility, one BindEnv call per documented variable
// rather than a blanket AutomaticEnv prefix, since the variable names here
// don't share a common prefix. Invalid numeric values
// fall back to the documented defaults; every such fallback is appended to
// the returned issues list rather than aborting startup.
func LoadTopology() (*Topology, []string) {
	v := viper.New()
	bind := func(key, env string) {
		_ = v.BindEnv(key, env)
	}
	bind("openai_api_key", "OPENAI_API_KEY")
	bind("anthropic_api_key", "ANTHROPIC_API_KEY")
	bind("copilot_github_token", "COPILOT_GITHUB_TOKEN")
	bind("copilot_api_target", "COPILOT_API_TARGET")
	bind("github_server_url", "GITHUB_SERVER_URL")
	bind("http_proxy", "HTTP_PROXY")
	bind("https_proxy", "HTTPS_PROXY")
	bind("rate_limit_enabled", "AWF_RATE_LIMIT_ENABLED")
	bind("rate_limit_rpm", "AWF_RATE_LIMIT_RPM")
	bind("rate_limit_rph", "AWF_RATE_LIMIT_RPH")
	bind("rate_limit_bytes_pm", "AWF_RATE_LIMIT_BYTES_PM")

	var is issues

	openaiKey := v.GetString("openai_api_key")
	anthropicKey := v.GetString("anthropic_api_key")
	copilotToken := v.GetString("copilot_github_token")

	copilotHost := provider.DeriveCopilotHost(v.GetString("copilot_api_target"), v.GetString("github_server_url"))

	providers := map[provider.ID]provider.Config{
		provider.OpenAI: {
			ID:           provider.OpenAI,
			Credential:   openaiKey,
			UpstreamHost: "api.openai.com",
			Port:         PortOpenAI,
			Enabled:      openaiKey != "",
		},
		provider.Anthropic: {
			ID:           provider.Anthropic,
			Credential:   anthropicKey,
			UpstreamHost: "api.anthropic.com",
			Port:         PortAnthropic,
			Enabled:      anthropicKey != "",
		},
		provider.Copilot: {
			ID:           provider.Copilot,
			Credential:   copilotToken,
			UpstreamHost: copilotHost,
			Port:         PortCopilot,
			Enabled:      copilotToken != "",
		},
	}

	upstreamProxy := v.GetString("https_proxy")
	if upstreamProxy == "" {
		upstreamProxy = v.GetString("http_proxy")
	}

	rl := ratelimit.Config{
		Enabled: strings.EqualFold(strings.TrimSpace(v.GetString("rate_limit_enabled")), "true"),
		RPM:     parsePositiveInt(v.GetString("rate_limit_rpm"), defaultRPM, "AWF_RATE_LIMIT_RPM", &is),
		RPH:     parsePositiveInt(v.GetString("rate_limit_rph"), defaultRPH, "AWF_RATE_LIMIT_RPH", &is),
		BytesPM: parsePositiveInt(v.GetString("rate_limit_bytes_pm"), defaultBytesPM, "AWF_RATE_LIMIT_BYTES_PM", &is),
	}

	return &Topology{
		Providers:    providers,
		UpstreamHTTP: upstreamProxy,
		RateLimit:    rl,
	}, is
}

// parsePositiveInt parses raw as a positive int64, falling back to def (and
// recording an issue) when raw is empty, non-numeric, or not strictly
// positive.
func parsePositiveInt(raw string, def int64, envVar string, is *issues) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		is.add("%s=%q is invalid, using default %d", envVar, raw, def)
		return def
	}
	return n
}

// RateLimitForAll builds the ratelimit.Config map applying the same
// topology-tier limits to every enabled provider, keyed by provider id
// string (the form internal/ratelimit.Limiter expects).
func (t *Topology) RateLimitForAll() map[string]ratelimit.Config {
	out := make(map[string]ratelimit.Config, len(t.Providers))
	for id, cfg := range t.Providers {
		if !cfg.Enabled {
			continue
		}
		out[string(id)] = t.RateLimit
	}
	return out
}
