package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MaxSteps_Boundary(t *testing.T) {
	for _, n := range []int{1, 50} {
		cfg := Defaults()
		cfg.Agent.MaxSteps = n
		if err := Validate(cfg); err != nil {
			t.Fatalf("maxSteps=%d should be valid, got: %v", n, err)
		}
	}
	for _, n := range []int{0, 51} {
		cfg := Defaults()
		cfg.Agent.MaxSteps = n
		if err := Validate(cfg); err == nil {
			t.Fatalf("maxSteps=%d should be invalid", n)
		}
	}
}

func TestValidate_InvalidMode(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.Mode = "websocket"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestValidate_ToolChoice(t *testing.T) {
	for _, tc := range []string{"", "auto", "none", "required"} {
		cfg := Defaults()
		cfg.Agent.ToolChoice = tc
		if err := Validate(cfg); err != nil {
			t.Fatalf("toolChoice %q should be valid, got: %v", tc, err)
		}
	}
	cfg := Defaults()
	cfg.Agent.ToolChoice = "sometimes"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown tool choice")
	}
}

func TestValidate_Backend(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.APIBase = "localhost:3000"
	cfg.Backend.StreamPath = "ai/stream"
	cfg.Backend.MaxRetries = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"backend.apiBase", "backend.streamPath", "backend.maxRetries"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s to be reported, got: %v", want, err)
		}
	}
}

func TestValidate_Cache(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.Driver = "redis"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown cache driver")
	}

	cfg = Defaults()
	cfg.Cache.Driver = "sqlite"
	cfg.Cache.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for sqlite without dbPath")
	}
}

func TestValidate_Metrics(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for metrics without listen address")
	}
}

func TestValidate_Feed(t *testing.T) {
	cfg := Defaults()
	cfg.Feed.Enabled = true
	cfg.Feed.Path = "updates"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "feed.path") {
		t.Fatalf("err = %v, want feed.path error", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.Agent.Model = "gpt-4o-mini"
	original.Agent.Mode = "sync"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Agent.Model != "gpt-4o-mini" || loaded.Agent.Mode != "sync" {
		t.Fatalf("unexpected agent config %+v", loaded.Agent)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"backend": {"apiBase": "https://agent.example.com"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.APIBase != "https://agent.example.com" {
		t.Fatalf("unexpected apiBase %q", cfg.Backend.APIBase)
	}
	if cfg.Backend.InvokePath != "/ai/invoke" || cfg.Agent.TurnTimeoutSeconds != 120 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Backend, cfg.Agent)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.json")
	content := `{"agent": {"maxSteps": 0}}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for maxSteps=0")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("INVOICECHAT_TEST_BASE", "https://agent.internal")
	t.Setenv("INVOICECHAT_TEST_KEY", "key-1234567890")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"backend": {
			"apiBase": "${INVOICECHAT_TEST_BASE}",
			"apiKey": "${INVOICECHAT_TEST_KEY}"
		},
		"agent": {"model": "${INVOICECHAT_TEST_MODEL:-default-model}"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.APIBase != "https://agent.internal" || cfg.Backend.APIKey != "key-1234567890" {
		t.Fatalf("env vars not expanded: %+v", cfg.Backend)
	}
	if cfg.Agent.Model != "default-model" {
		t.Fatalf("default not applied: %q", cfg.Agent.Model)
	}
}

func TestLoad_ExpandsHomePaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"cache": {"driver": "sqlite", "dbPath": "~/x/cache.db"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.DBPath != filepath.Join(home, "x", "cache.db") {
		t.Fatalf("unexpected dbPath %q", cfg.Cache.DBPath)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "backend.apiBase")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "http://localhost:3000" {
		t.Fatalf("expected default apiBase, got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "agent.mode", "sync"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Agent.Mode != "sync" {
		t.Fatalf("expected 'sync', got %q", cfg.Agent.Mode)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "metrics.enabled", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("expected metrics.enabled=true")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "agent.maxSteps", "12"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Agent.MaxSteps != 12 {
		t.Fatalf("expected 12, got %d", cfg.Agent.MaxSteps)
	}
}

func TestSetByPath_UnsetOptionalValue(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "backend.apiKey", "12345678901"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Backend.APIKey != "12345678901" {
		t.Fatalf("numeric-looking string must stay a string, got %q", cfg.Backend.APIKey)
	}
}

func TestSetByPath_Rejects(t *testing.T) {
	cfg := Defaults()
	tests := []struct{ path, value string }{
		{"agent.maxSteps", "many"},
		{"metrics.enabled", "sometimes"},
		{"agent.nope", "x"},
		{"backend", "x"},
	}
	for _, tt := range tests {
		if err := SetByPath(cfg, tt.path, tt.value); err == nil {
			t.Errorf("SetByPath(%q, %q): expected error", tt.path, tt.value)
		}
	}
	if cfg.Agent.MaxSteps != Defaults().Agent.MaxSteps {
		t.Fatal("failed set must not change the config")
	}
}

func TestGetByPath_Section(t *testing.T) {
	v, err := GetByPath(Defaults(), "cache")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cc, ok := v.(CacheConfig)
	if !ok || cc.Driver != "memory" {
		t.Fatalf("expected cache section, got %#v", v)
	}
}

// --- Sanitize ---

func TestSanitize_MasksAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.APIKey = "sk-1234567890abcdefghijklmnop"

	sanitized := Sanitize(cfg)

	if sanitized.Backend.APIKey != "sk-1****mnop" {
		t.Fatalf("API key should be masked, got %q", sanitized.Backend.APIKey)
	}
	if cfg.Backend.APIKey != "sk-1234567890abcdefghijklmnop" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Backend.APIKey = "short"
	if got := Sanitize(cfg).Backend.APIKey; got != "***" {
		t.Fatalf("short secret should be '***', got %q", got)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"general.logLevel", "backend.apiBase", "backend.apiKey", "agent.maxSteps", "cache.driver", "feed.path"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

func TestListPaths_EveryPathSettable(t *testing.T) {
	cfg := Defaults()
	for path, v := range ListPaths(cfg) {
		if err := SetByPath(cfg, path, fmt.Sprint(v)); err != nil {
			t.Errorf("%s: %v", path, err)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	result := ExpandEnvVars(`{"apiKey": "${TEST_API_KEY}"}`)
	expected := `{"apiKey": "sk-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`)
	if result != `"fallback"` {
		t.Fatalf("expected fallback, got %q", result)
	}
}

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
}
