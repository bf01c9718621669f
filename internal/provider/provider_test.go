package provider

import (
	"net/http"
	"testing"
)

func TestInjectOpenAI(t *testing.T) {
	h := http.Header{}
	Config{ID: OpenAI, Credential: "sk-fake"}.Inject(h)
	if h.Get("Authorization") != "Bearer sk-fake" {
		t.Fatalf("Authorization = %q", h.Get("Authorization"))
	}
}

func TestInjectAnthropicDefaultsVersion(t *testing.T) {
	h := http.Header{}
	Config{ID: Anthropic, Credential: "sk-ant-fake"}.Inject(h)
	if h.Get("x-api-key") != "sk-ant-fake" {
		t.Fatalf("x-api-key = %q", h.Get("x-api-key"))
	}
	if h.Get("anthropic-version") != "2023-06-01" {
		t.Fatalf("anthropic-version = %q, want default", h.Get("anthropic-version"))
	}
}

func TestInjectAnthropicRespectsClientVersion(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-version", "2024-01-01")
	Config{ID: Anthropic, Credential: "sk-ant-fake"}.Inject(h)
	if h.Get("anthropic-version") != "2024-01-01" {
		t.Fatalf("anthropic-version = %q, want client-supplied value preserved", h.Get("anthropic-version"))
	}
}

func TestInjectCopilot(t *testing.T) {
	h := http.Header{}
	Config{ID: Copilot, Credential: "ghu_fake"}.Inject(h)
	if h.Get("Authorization") != "Bearer ghu_fake" {
		t.Fatalf("Authorization = %q", h.Get("Authorization"))
	}
}

func TestInjectOverwritesClientValue(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer client-supplied")
	Config{ID: OpenAI, Credential: "real-key"}.Inject(h)
	if h.Get("Authorization") != "Bearer real-key" {
		t.Fatalf("client-supplied Authorization was not overwritten: %q", h.Get("Authorization"))
	}
}
