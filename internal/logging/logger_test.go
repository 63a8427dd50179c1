package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"supervisor": "debug",
			"relay":      "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"supervisor", true, true, true},
		{"relay", false, false, true},
		{"worker", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			if got := handler.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, got, tt.wantDebug)
			}
			if got := handler.Enabled(context.Background(), slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, got, tt.wantInfo)
			}
			if got := handler.Enabled(context.Background(), slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, got, tt.wantWarn)
			}
		})
	}
}

func TestLoggerWritesModuleAttribute(t *testing.T) {
	resetState()

	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })

	Initialize(Config{Level: "debug", Format: "text"})
	GetLogger("supervisor").Debug("Worker started", "pid", 42)

	output := buf.String()
	if !strings.Contains(output, "module=supervisor") {
		t.Errorf("module attribute missing. Output: %s", output)
	}
	if !strings.Contains(output, "pid=42") {
		t.Errorf("pid attribute missing. Output: %s", output)
	}
}

func TestJSONFormat(t *testing.T) {
	resetState()

	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })

	Initialize(Config{Level: "info", Format: "json"})
	GetLogger("relay").Info("Master stopped")

	if !strings.Contains(buf.String(), `"msg":"Master stopped"`) {
		t.Errorf("expected JSON output, got: %s", buf.String())
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(debugHandler, infoHandler)
	logger := slog.New(multi).With("module", "test")

	// Only the debug handler accepts this record
	logger.Debug("debug only message")

	output := buf.String()
	if count := strings.Count(output, "debug only message"); count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, output)
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	loggerBefore := GetLogger("worker")
	if loggerBefore.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"worker": "debug"},
	})

	loggerAfter := GetLogger("worker")
	if !loggerAfter.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger should have debug enabled after Initialize applies the module override")
	}
	// The level var is shared, so the old handler follows the new level too.
	if !loggerBefore.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Cached logger should have debug enabled after Initialize updates LevelVar")
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			}
			if *got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}

func TestAddAttrToFields(t *testing.T) {
	fields := make(map[string]string)

	addAttrToFields(fields, slog.Int("pid", 7), nil)
	addAttrToFields(fields, slog.String("status", "running"), []string{"worker"})
	addAttrToFields(fields, slog.Group("exit", slog.Int("code", 1)), nil)

	want := map[string]string{
		"PID":           "7",
		"WORKER_STATUS": "running",
		"EXIT_CODE":     "1",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%q] = %q, want %q", k, fields[k], v)
		}
	}
}
