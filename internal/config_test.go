package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Remote.Enabled {
		t.Error("remote should be disabled by default")
	}
}

func TestRemoteConfig_RequiresTargetWhenEnabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Remote.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled remote without owner/repo should fail")
	}

	cfg.Remote.Owner, cfg.Remote.Repo = "octo", "blog"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete remote config: %v", err)
	}
	if got := cfg.Remote.Target().Key(); got != "remote:github:octo/blog@main" {
		t.Errorf("target key = %q", got)
	}

	cfg.Remote.Provider = "bitbucket"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown provider should fail")
	}
}

func TestWorkspaceConfig_Multiplicity(t *testing.T) {
	cfg := WorkspaceConfig{Root: "x", Multiplicity: map[string]string{"author": "single", "tags": "multi"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	m, _ := cfg.Multiplicities()
	if m["author"] != parser.MultiplicitySingle || m["tags"] != parser.MultiplicityMulti {
		t.Errorf("multiplicities = %v", m)
	}

	cfg.Multiplicity["tags"] = "several"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown multiplicity should fail")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("FOLIO_TEST_TOKEN", "s3cret")
	data := `app:
  log_level: debug
  log_format: json
  http:
    port: 9090
workspace:
  root: ./posts
  multiplicity:
    author: single
cache:
  path: ./cache.db
  app_state_ttl: 48h
auth:
  mode: token
  token: ${FOLIO_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := config.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogFormat != "json" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Cache.AppStateTTL != 48*time.Hour {
		t.Errorf("ttl = %v", cfg.Cache.AppStateTTL)
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q", cfg.Auth.Token)
	}
	if cfg.Workspace.ReadConcurrency == 0 {
		t.Error("unset keys should keep defaults")
	}
}
