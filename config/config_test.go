package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestNew 测试创建配置加载器
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config uses defaults", nil},
		{"empty config uses defaults", &Config{}},
		{"custom name", &Config{Name: "app"}},
		{"custom paths", &Config{Paths: []string{"./conf", "./etc"}}},
		{"custom type", &Config{FileType: "json"}},
		{"custom env prefix", &Config{EnvPrefix: "myapp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if loader == nil {
				t.Error("New() returned nil loader")
			}
		})
	}
}

// TestNewDoesNotMutateConfig 测试 New 不修改调用方的配置
func TestNewDoesNotMutateConfig(t *testing.T) {
	cfg := &Config{}
	if _, err := New(cfg); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Name != "" || cfg.FileType != "" || cfg.EnvPrefix != "" || cfg.Paths != nil {
		t.Errorf("New() mutated caller config: %+v", cfg)
	}
}

// TestMustLoad 测试一步创建并加载
func TestMustLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test.yaml")
	content := `
app:
  name: "test-app"
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustLoad() panicked unexpectedly: %v", r)
		}
	}()

	loader := MustLoad(&Config{
		Name:  "test",
		Paths: []string{tmpDir},
	})
	if loader == nil {
		t.Fatal("MustLoad() returned nil loader")
	}
	if name := loader.Get("app.name"); name != "test-app" {
		t.Errorf("app.name = %v, want test-app", name)
	}
}

// TestMustLoadPanic 测试加载失败时 panic
func TestMustLoadPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustLoad() should have panicked")
		}
	}()

	MustLoad(&Config{
		Name:      "nonexistent",
		Paths:     []string{"/nonexistent"},
		EnvPrefix: "AEGIS_TEST_MUST_LOAD",
	})
}
