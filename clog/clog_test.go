package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestNew 测试 Logger 创建
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		opts    []Option
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Level:  "info",
				Format: "console",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name:    "nil config",
			config:  nil,
			wantErr: false,
		},
		{
			name: "invalid level",
			config: &Config{
				Level:  "verbose",
				Format: "console",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			config: &Config{
				Level:  "info",
				Format: "xml",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "with options",
			config: &Config{
				Level:  "debug",
				Format: "json",
				Output: "stdout",
			},
			opts: []Option{
				WithNamespace("aegis", "breaker"),
				WithContextField("trace_id", "trace_id"),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger on success")
			}
		})
	}
}

// TestLoggerLevels 测试各级别输出与 JSON 结构
func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:  "debug",
		Format: "json",
	}, withBuffer(&buf))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("期望 4 行日志，实际 %d 行", len(lines))
	}

	expectedLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	for i, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("第 %d 行不是合法 JSON: %v", i, err)
		}
		if level, _ := entry["level"].(string); level != expectedLevels[i] {
			t.Errorf("第 %d 行 level = %s，期望 %s", i, level, expectedLevels[i])
		}
	}
}

// TestLevelFiltering 测试级别过滤
func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&Config{
		Level:  "warn",
		Format: "json",
	}, withBuffer(&buf))

	logger.Debug("should be filtered")
	logger.Info("should be filtered")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Error("低于 warn 的日志不应输出")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn 级别日志应输出")
	}
}

// TestSetLevel 测试运行时动态调整级别
func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&Config{
		Level:  "info",
		Format: "json",
	}, withBuffer(&buf))

	logger.Debug("before")
	if strings.Contains(buf.String(), "before") {
		t.Fatal("info 级别下 debug 日志不应输出")
	}

	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}

	logger.Debug("after")
	if !strings.Contains(buf.String(), "after") {
		t.Error("调整为 debug 级别后 debug 日志应输出")
	}
}

// TestWith 测试预设字段
func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&Config{
		Level:  "info",
		Format: "json",
	}, withBuffer(&buf))

	child := logger.With(String("key", "payment"), Int("attempt", 2))
	child.Info("executing")

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("输出不是合法 JSON: %v", err)
	}
	if entry["key"] != "payment" {
		t.Errorf("key = %v，期望 payment", entry["key"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v，期望 2", entry["attempt"])
	}

	// 父 Logger 不应受影响
	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "payment") {
		t.Error("父 Logger 不应携带子 Logger 的字段")
	}
}

// TestWithNamespace 测试层级命名空间
func TestWithNamespace(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&Config{
		Level:  "info",
		Format: "json",
	}, withBuffer(&buf))

	nested := logger.WithNamespace("aegis").WithNamespace("ratelimit")
	nested.Info("admitted")

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("输出不是合法 JSON: %v", err)
	}
	if entry[NamespaceKey] != "aegis.ratelimit" {
		t.Errorf("namespace = %v，期望 aegis.ratelimit", entry[NamespaceKey])
	}
}

// TestContextFields 测试 Context 字段提取
func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&Config{
		Level:  "info",
		Format: "json",
	}, withBuffer(&buf), WithContextField("trace_id", "trace_id"))

	ctx := context.WithValue(context.Background(), "trace_id", "abc123")
	logger.InfoContext(ctx, "request processed")

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("输出不是合法 JSON: %v", err)
	}
	if entry["trace_id"] != "abc123" {
		t.Errorf("trace_id = %v，期望 abc123", entry["trace_id"])
	}

	// 无对应值的 Context 不应追加字段
	buf.Reset()
	logger.InfoContext(context.Background(), "no trace")
	if strings.Contains(buf.String(), "trace_id") {
		t.Error("Context 中无值时不应出现 trace_id 字段")
	}
}

// TestErrorField 测试错误字段
func TestErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(&Config{
		Level:  "info",
		Format: "json",
	}, withBuffer(&buf))

	logger.Error("operation failed", Error(errors.New("connection refused")))

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("输出不是合法 JSON: %v", err)
	}
	if entry["err_msg"] != "connection refused" {
		t.Errorf("err_msg = %v，期望 connection refused", entry["err_msg"])
	}
}

// TestDiscard 测试静默 Logger
func TestDiscard(t *testing.T) {
	logger := Discard()

	// 所有方法都不应 panic
	logger.Debug("msg")
	logger.Info("msg", String("k", "v"))
	logger.Error("msg", Error(errors.New("err")))
	logger.With(String("k", "v")).Info("msg")
	logger.WithNamespace("ns").Info("msg")
	if err := logger.SetLevel(DebugLevel); err != nil {
		t.Errorf("Discard().SetLevel() error = %v", err)
	}
	logger.Flush()
}

// TestDefault 测试进程级默认 Logger
func TestDefault(t *testing.T) {
	// 初始为 Discard
	if Default() == nil {
		t.Fatal("Default() 不应返回 nil")
	}

	var buf bytes.Buffer
	logger, _ := New(&Config{Level: "info", Format: "json"}, withBuffer(&buf))
	SetDefault(logger)
	defer SetDefault(nil)

	Module("breaker").Info("state changed")
	if !strings.Contains(buf.String(), "breaker") {
		t.Error("Module() 日志应包含组件命名空间")
	}
}

// TestParseLevel 测试级别解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"Warn", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"trace", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v，期望 %v", tt.input, got, tt.want)
			}
		})
	}
}
