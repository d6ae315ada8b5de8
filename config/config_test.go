package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentdesk.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Org.Desks) != 3 {
		t.Errorf("default org has %d desks, want 3", len(cfg.Org.Desks))
	}
	ttl, err := cfg.Auth.TokenDuration()
	if err != nil || ttl != 24*time.Hour {
		t.Errorf("TokenDuration = (%v, %v)", ttl, err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8181"
auth:
  admin_user: ops
  token_ttl: 1h
storage:
  driver: memory
exec:
  min_delay: 10ms
  max_delay: 20ms
  failure_rate: 0
  timeout: 30s
org:
  name: acme
  default_assignee: dev-001
  teams: []
  desks:
    - id: cto-001
      title: CTO
      role: executive
      hierarchy_level: 1
    - id: dev-001
      title: Developer
      role: engineer
      hierarchy_level: 2
      reports_to: cto-001
  routing:
    - keyword: security
      assignee: dev-001
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8181" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Auth.AdminUser != "ops" {
		t.Errorf("AdminUser = %q", cfg.Auth.AdminUser)
	}
	if cfg.Org.Name != "acme" || len(cfg.Org.Desks) != 2 {
		t.Errorf("org = %+v", cfg.Org)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel default lost: %q", cfg.LogLevel)
	}

	minD, maxD, err := cfg.Exec.Delays()
	if err != nil || minD != 10*time.Millisecond || maxD != 20*time.Millisecond {
		t.Errorf("Delays = (%v, %v, %v)", minD, maxD, err)
	}
	timeout, err := cfg.Exec.TaskTimeout()
	if err != nil || timeout != 30*time.Second {
		t.Errorf("TaskTimeout = (%v, %v)", timeout, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "etcd" },
			wantSub: "storage driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantSub: "dsn",
		},
		{
			name:    "nats without url",
			mutate:  func(c *Config) { c.Bus.Driver = "nats" },
			wantSub: "url",
		},
		{
			name:    "bad token ttl",
			mutate:  func(c *Config) { c.Auth.TokenTTL = "sometime" },
			wantSub: "token_ttl",
		},
		{
			name:    "bad delay",
			mutate:  func(c *Config) { c.Exec.MinDelay = "fast" },
			wantSub: "min_delay",
		},
		{
			name:    "failure rate out of range",
			mutate:  func(c *Config) { c.Exec.FailureRate = 1.5 },
			wantSub: "failure_rate",
		},
		{
			name: "duplicate desk id",
			mutate: func(c *Config) {
				c.Org.Desks = append(c.Org.Desks, DeskConfig{ID: "cto-001", Title: "Clone"})
			},
			wantSub: "duplicate desk",
		},
		{
			name: "unknown reports_to",
			mutate: func(c *Config) {
				c.Org.Desks = append(c.Org.Desks, DeskConfig{ID: "x-001", Title: "X", ReportsTo: "ghost-001"})
			},
			wantSub: "reports to undefined",
		},
		{
			name: "unknown team",
			mutate: func(c *Config) {
				c.Org.Desks = append(c.Org.Desks, DeskConfig{ID: "x-001", Title: "X", TeamID: "ghost-team"})
			},
			wantSub: "undefined team",
		},
		{
			name: "team lead not a desk",
			mutate: func(c *Config) {
				c.Org.Teams = append(c.Org.Teams, TeamConfig{ID: "t9", Name: "T9", Lead: "ghost-001"})
			},
			wantSub: "led by undefined",
		},
		{
			name: "rule assignee undefined",
			mutate: func(c *Config) {
				c.Org.Routing = append(c.Org.Routing, RuleConfig{Keyword: "x", Assignee: "ghost-001"})
			},
			wantSub: "undefined desk",
		},
		{
			name:    "default assignee undefined",
			mutate:  func(c *Config) { c.Org.DefaultAssignee = "ghost-001" },
			wantSub: "default_assignee",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate passed")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}
