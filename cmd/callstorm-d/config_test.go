package main

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig([]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != defaultAddr {
		t.Errorf("addr: got %q, want %q", cfg.Addr, defaultAddr)
	}
	if cfg.Switches != defaultSwitches {
		t.Errorf("switches: got %d, want %d", cfg.Switches, defaultSwitches)
	}
	if cfg.SwitchCapacity != defaultSwitchCapacity {
		t.Errorf("capacity: got %d, want %d", cfg.SwitchCapacity, defaultSwitchCapacity)
	}
	if cfg.PublishInterval != defaultPublishInterval {
		t.Errorf("publish interval: got %v, want %v", cfg.PublishInterval, defaultPublishInterval)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("redis should default to disabled, got %q", cfg.RedisAddr)
	}
	if !strings.HasSuffix(cfg.DBPath, "callstorm.db") {
		t.Errorf("db path: got %q", cfg.DBPath)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("CALLSTORM_ADDR", "127.0.0.1:9999")
	t.Setenv("CALLSTORM_SWITCHES", "2")

	cfg, err := LoadConfig([]string{"-addr", "0.0.0.0:8090", "-switches", "4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != "0.0.0.0:8090" {
		t.Errorf("flag should override env: got %q", cfg.Addr)
	}
	if cfg.Switches != 4 {
		t.Errorf("switches: got %d, want 4", cfg.Switches)
	}
}

func TestLoadConfig_EnvFallbacks(t *testing.T) {
	t.Setenv("CALLSTORM_PORT", "7070")
	t.Setenv("CALLSTORM_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("CALLSTORM_PUBLISH_INTERVAL", "500ms")

	cfg, err := LoadConfig([]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != "127.0.0.1:7070" {
		t.Errorf("port env should build addr: got %q", cfg.Addr)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("redis addr: got %q", cfg.RedisAddr)
	}
	if cfg.PublishInterval != 500*time.Millisecond {
		t.Errorf("publish interval: got %v", cfg.PublishInterval)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		errorSubstr string
	}{
		{
			name:        "empty addr",
			args:        []string{"-addr", "  "},
			errorSubstr: "addr cannot be empty",
		},
		{
			name:        "zero switches",
			args:        []string{"-switches", "0"},
			errorSubstr: "switches must be at least 1",
		},
		{
			name:        "zero capacity",
			args:        []string{"-capacity", "0"},
			errorSubstr: "capacity must be at least 1",
		},
		{
			name:        "bad publish interval flag",
			args:        []string{"-publish-interval", "soon"},
			errorSubstr: "invalid publish interval",
		},
		{
			name:        "bad publish interval env",
			envVars:     map[string]string{"CALLSTORM_PUBLISH_INTERVAL": "soon"},
			errorSubstr: "invalid CALLSTORM_PUBLISH_INTERVAL",
		},
		{
			name:        "bad switches env",
			envVars:     map[string]string{"CALLSTORM_SWITCHES": "many"},
			errorSubstr: "invalid CALLSTORM_SWITCHES",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(tt.args)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errorSubstr)
			}
			if !strings.Contains(err.Error(), tt.errorSubstr) {
				t.Errorf("expected error containing %q, got %q", tt.errorSubstr, err.Error())
			}
		})
	}
}

func TestLoadConfig_RelativePathsResolved(t *testing.T) {
	cfg, err := LoadConfig([]string{"-db", "data/calls.db", "-plan", "plans/smoke.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(cfg.DBPath, "data/calls.db") || !strings.HasPrefix(cfg.DBPath, "/") {
		t.Errorf("db path not resolved: %q", cfg.DBPath)
	}
	if !strings.HasSuffix(cfg.PlanPath, "plans/smoke.json") || !strings.HasPrefix(cfg.PlanPath, "/") {
		t.Errorf("plan path not resolved: %q", cfg.PlanPath)
	}
}
