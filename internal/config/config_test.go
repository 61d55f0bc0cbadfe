package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hificlock.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HIFICLOCK_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}

	if cfg.Source.Mode != "pipe" || cfg.Source.PipePath != "/tmp/shairport-sync-metadata" {
		t.Errorf("unexpected source %+v", cfg.Source)
	}
	if cfg.Source.RetryDelay != 2*time.Second || cfg.Source.ReadTimeout != 30*time.Second {
		t.Errorf("unexpected timings %+v", cfg.Source)
	}
	if cfg.Cover.LookupTimeout != 8*time.Second {
		t.Errorf("unexpected lookup timeout %v", cfg.Cover.LookupTimeout)
	}
	if cfg.Screen.Cooldown != 10*time.Second {
		t.Errorf("unexpected cooldown %v", cfg.Screen.Cooldown)
	}
	if cfg.State.File != "/tmp/shairport_state.json" {
		t.Errorf("unexpected state file %s", cfg.State.File)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8765" {
		t.Errorf("unexpected addr %s", cfg.HTTP.Addr)
	}
	if cfg.Log.ZapLevel() != zapcore.InfoLevel {
		t.Errorf("unexpected level %v", cfg.Log.ZapLevel())
	}
}

func TestLoad_Sources(t *testing.T) {
	yaml := writeYAML(t, `
source:
  mode: reader
  reader_path: /opt/bin/shairport-sync-metadata-reader
display:
  width: 720
  height: 720
screen:
  cooldown: 20s
log:
  level: debug
`)

	tests := []struct {
		name  string
		env   map[string]string
		check func(*testing.T, *Config)
	}{
		{
			name: "Environment",
			env: map[string]string{
				"HIFICLOCK_SOURCE_MODE":     "mpris",
				"HIFICLOCK_SOURCE_DBUS_BUS": "session",
				"HIFICLOCK_SCREEN_COOLDOWN": "15s",
			},
			check: func(t *testing.T, c *Config) {
				if c.Source.Mode != "mpris" || c.Source.DBusBus != "session" {
					t.Errorf("env not applied: %+v", c.Source)
				}
				if c.Screen.Cooldown != 15*time.Second {
					t.Errorf("expected 15s, got %v", c.Screen.Cooldown)
				}
			},
		},
		{
			name: "YAML File",
			env:  map[string]string{"HIFICLOCK_CONFIG": yaml},
			check: func(t *testing.T, c *Config) {
				if c.Source.Mode != "reader" || c.Source.ReaderPath != "/opt/bin/shairport-sync-metadata-reader" {
					t.Errorf("file not applied: %+v", c.Source)
				}
				if c.Display.Width != 720 || c.Display.Height != 720 {
					t.Errorf("unexpected display %+v", c.Display)
				}
				if c.Log.ZapLevel() != zapcore.DebugLevel {
					t.Errorf("unexpected level %s", c.Log.Level)
				}
				// Untouched keys keep their defaults
				if c.Cover.CacheDir != "/var/cache/hificlock/covers" {
					t.Errorf("default lost: %s", c.Cover.CacheDir)
				}
			},
		},
		{
			name: "Environment Wins Over File",
			env: map[string]string{
				"HIFICLOCK_CONFIG":          yaml,
				"HIFICLOCK_SCREEN_COOLDOWN": "30s",
			},
			check: func(t *testing.T, c *Config) {
				if c.Screen.Cooldown != 30*time.Second {
					t.Errorf("expected 30s, got %v", c.Screen.Cooldown)
				}
			},
		},
		{
			name: "Home Expansion",
			env: map[string]string{
				"HOME":                 "/home/kiosk",
				"HIFICLOCK_STATE_FILE": "~/state.json",
			},
			check: func(t *testing.T, c *Config) {
				if c.State.File != "/home/kiosk/state.json" {
					t.Errorf("unexpected state file %s", c.State.File)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HIFICLOCK_CONFIG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "Unknown Mode", env: map[string]string{"HIFICLOCK_SOURCE_MODE": "socket"}, wantErr: "mode"},
		{name: "Short Signature", env: map[string]string{"HIFICLOCK_SOURCE_SIGNATURE": "ss"}, wantErr: "signature"},
		{name: "Unknown Bus", env: map[string]string{"HIFICLOCK_SOURCE_MODE": "mpris", "HIFICLOCK_SOURCE_DBUS_BUS": "user"}, wantErr: "dbusbus"},
		{name: "Bad Log Level", env: map[string]string{"HIFICLOCK_LOG_LEVEL": "loud"}, wantErr: "level"},
		{name: "Bad Archive URL", env: map[string]string{"HIFICLOCK_COVER_ARCHIVE_URL": "ftp://covers"}, wantErr: "http(s)"},
		{name: "Width Without Height", env: map[string]string{"HIFICLOCK_DISPLAY_WIDTH": "800"}, wantErr: "together"},
		{name: "Missing File", env: map[string]string{"HIFICLOCK_CONFIG": "/nonexistent/hificlock.yaml"}, wantErr: "config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HIFICLOCK_CONFIG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_LogFields(t *testing.T) {
	t.Setenv("HIFICLOCK_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.LogFields(zap.NewNop())
}
