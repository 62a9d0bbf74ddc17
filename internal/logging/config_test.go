package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		" WARN ":   zerolog.WarnLevel,
		"off":      zerolog.Disabled,
		"trace":    zerolog.TraceLevel,
		"warning":  zerolog.WarnLevel,
		"disabled": zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogBypass, "nope")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("expected error level, got %v", cfg.Level)
	}
	if !cfg.Timestamp || !cfg.NoColor {
		t.Fatalf("expected timestamp and nocolor, got %+v", cfg)
	}
	if cfg.Bypass {
		t.Fatalf("unparseable bypass must keep default")
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	Apply(Config{Level: zerolog.InfoLevel, NoColor: true, Out: &buf})
	l := Component("transport")
	l.Info().Msg("hello")
	out := buf.String()
	if !strings.Contains(out, "component=transport") || !strings.Contains(out, "hello") {
		t.Fatalf("unexpected output %q", out)
	}
}
