package logger

import (
	"bytes"
	"strings"
	"testing"

	"usbprobridge/internal/config"
)

func TestNewLoggerLevel(t *testing.T) {
	var out bytes.Buffer
	log, err := newLogger(config.LogConf{Level: "warn", Format: "json"}, &out)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	if got := log.GetLevel(); got != "warning" {
		t.Errorf("GetLevel() = %q, want %q", got, "warning")
	}

	log.Info("hidden")
	log.With(Fields{"module": "test"}).Warn("shown")

	s := out.String()
	if strings.Contains(s, "hidden") {
		t.Error("info message written at warn level")
	}
	if !strings.Contains(s, `"module":"test"`) {
		t.Errorf("fields missing from output: %s", s)
	}
}

func TestNewLoggerErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConf
	}{
		{"bad level", config.LogConf{Level: "loud"}},
		{"bad format", config.LogConf{Level: "info", Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newLogger(tt.cfg, &bytes.Buffer{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
