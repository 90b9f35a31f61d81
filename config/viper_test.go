package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoaderLoad 测试多源加载与优先级
func TestLoaderLoad(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := filepath.Join(tmpDir, "config.yaml")
	baseContent := `
app:
  name: "base-app"
  version: "1.0.0"
  debug: false
redis:
  addr: "localhost:6379"
  db: 0
mysql:
  host: "localhost"
  port: 3306
`

	devConfig := filepath.Join(tmpDir, "config.dev.yaml")
	devContent := `
app:
  debug: true
redis:
  db: 1
`

	envFile := filepath.Join(tmpDir, ".env")
	envContent := `
AEGIS_CLOG_LEVEL=debug
AEGIS_CLOG_FORMAT=json
`

	if err := os.WriteFile(baseConfig, []byte(baseContent), 0644); err != nil {
		t.Fatalf("Failed to create base config: %v", err)
	}
	if err := os.WriteFile(devConfig, []byte(devContent), 0644); err != nil {
		t.Fatalf("Failed to create dev config: %v", err)
	}
	if err := os.WriteFile(envFile, []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}

	os.Setenv("AEGIS_ENV", "dev")
	os.Setenv("AEGIS_APP_NAME", "env-app")
	os.Setenv("AEGIS_MYSQL_PORT", "5432")
	defer func() {
		os.Unsetenv("AEGIS_ENV")
		os.Unsetenv("AEGIS_APP_NAME")
		os.Unsetenv("AEGIS_MYSQL_PORT")
	}()

	ctx := context.Background()
	loader, err := New(&Config{
		Name:      "config",
		Paths:     []string{tmpDir},
		FileType:  "yaml",
		EnvPrefix: "AEGIS",
	})
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}

	if err := loader.Load(ctx); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// 环境变量优先级最高
	if appName := loader.Get("app.name"); appName != "env-app" {
		t.Errorf("app.name from env = %v, want env-app", appName)
	}
	if mysqlPort := loader.Get("mysql.port"); mysqlPort != "5432" {
		t.Errorf("mysql.port from env = %v, want 5432", mysqlPort)
	}

	// .env 文件通过环境变量生效
	if logLevel := loader.Get("clog.level"); logLevel != "debug" {
		t.Errorf("clog.level from .env = %v, want debug", logLevel)
	}

	// 环境特定配置覆盖基础配置
	if appDebug := loader.Get("app.debug"); appDebug != true {
		t.Errorf("app.debug from dev config = %v, want true", appDebug)
	}
	if redisDb := loader.Get("redis.db"); redisDb != 1 {
		t.Errorf("redis.db from dev config = %v, want 1", redisDb)
	}

	// 其余字段来自基础配置
	if appVersion := loader.Get("app.version"); appVersion != "1.0.0" {
		t.Errorf("app.version from base config = %v, want 1.0.0", appVersion)
	}
	if mysqlHost := loader.Get("mysql.host"); mysqlHost != "localhost" {
		t.Errorf("mysql.host from base config = %v, want localhost", mysqlHost)
	}
}

// TestLoaderUnmarshal 测试反序列化到结构体
func TestLoaderUnmarshal(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	content := `
app:
  name: "unmarshal-app"
  debug: true
redis:
  addr: "localhost:6379"
  db: 3
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	loader, err := New(&Config{Name: "config", Paths: []string{tmpDir}})
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	if err := loader.Load(context.Background()); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	type redisConfig struct {
		Addr string `mapstructure:"addr"`
		DB   int    `mapstructure:"db"`
	}
	type appConfig struct {
		App struct {
			Name  string `mapstructure:"name"`
			Debug bool   `mapstructure:"debug"`
		} `mapstructure:"app"`
		Redis redisConfig `mapstructure:"redis"`
	}

	var cfg appConfig
	if err := loader.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.App.Name != "unmarshal-app" || !cfg.App.Debug {
		t.Errorf("Unmarshal() app = %+v, want name unmarshal-app debug true", cfg.App)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 3 {
		t.Errorf("Unmarshal() redis = %+v", cfg.Redis)
	}

	var rc redisConfig
	if err := loader.UnmarshalKey("redis", &rc); err != nil {
		t.Fatalf("UnmarshalKey() error = %v", err)
	}
	if rc.DB != 3 {
		t.Errorf("UnmarshalKey() db = %d, want 3", rc.DB)
	}
}

// TestLoaderValidate 测试配置验证
func TestLoaderValidate(t *testing.T) {
	tests := []struct {
		name        string
		setupLoader func() (Loader, error)
		wantErr     bool
	}{
		{
			name: "valid config",
			setupLoader: func() (Loader, error) {
				tmpDir := t.TempDir()
				configFile := filepath.Join(tmpDir, "config.yaml")
				content := `app: {name: test}`
				if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
					return nil, err
				}
				return New(&Config{
					Name:  "config",
					Paths: []string{tmpDir},
				})
			},
			wantErr: false,
		},
		{
			name: "empty config",
			setupLoader: func() (Loader, error) {
				return New(&Config{
					Name:      "nonexistent",
					Paths:     []string{"/nonexistent"},
					EnvPrefix: "AEGIS_TEST_EMPTY_CONFIG",
				})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, err := tt.setupLoader()
			if err != nil {
				t.Fatalf("Failed to setup loader: %v", err)
			}

			ctx := context.Background()
			if err := loader.Load(ctx); err != nil {
				if !tt.wantErr {
					t.Errorf("Load() error = %v, want no error", err)
				}
				return
			}

			if err := loader.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoaderWatch 测试配置变更通知
func TestLoaderWatch(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "watch-test.yaml")
	initialContent := `
test:
  value: "initial"
  counter: 1
`

	if err := os.WriteFile(configFile, []byte(initialContent), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	loader, err := New(&Config{
		Name:     "watch-test",
		Paths:    []string{tmpDir},
		FileType: "yaml",
	})
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	if err := loader.Load(ctx); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	valueCh, err := loader.Watch(ctx, "test.value")
	if err != nil {
		t.Fatalf("Failed to watch test.value: %v", err)
	}
	counterCh, err := loader.Watch(ctx, "test.counter")
	if err != nil {
		t.Fatalf("Failed to watch test.counter: %v", err)
	}

	updatedContent := `
test:
  value: "updated"
  counter: 2
`
	if err := os.WriteFile(configFile, []byte(updatedContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	eventCount := 0
	timeout := time.After(5 * time.Second)

	for eventCount < 2 {
		select {
		case event := <-valueCh:
			if event.Key != "test.value" {
				t.Errorf("Event key = %v, want test.value", event.Key)
			}
			if event.Value != "updated" {
				t.Errorf("Event value = %v, want updated", event.Value)
			}
			if event.OldValue != "initial" {
				t.Errorf("Event oldValue = %v, want initial", event.OldValue)
			}
			if event.Source != "file" {
				t.Errorf("Event source = %v, want file", event.Source)
			}
			eventCount++

		case event := <-counterCh:
			if event.Key != "test.counter" {
				t.Errorf("Event key = %v, want test.counter", event.Key)
			}
			if event.Value != 2 {
				t.Errorf("Event value = %v, want 2", event.Value)
			}
			if event.OldValue != 1 {
				t.Errorf("Event oldValue = %v, want 1", event.OldValue)
			}
			eventCount++

		case <-timeout:
			t.Errorf("Timeout waiting for config change events")
			return

		case <-ctx.Done():
			t.Errorf("Context cancelled while waiting for events")
			return
		}
	}
}

// TestLoaderWatchCancel 测试取消监听后通道关闭
func TestLoaderWatchCancel(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "cancel-test.yaml")
	content := `test: {value: 1}`

	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	ctx := context.Background()
	loader, err := New(&Config{
		Name:  "cancel-test",
		Paths: []string{tmpDir},
	})
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	if err := loader.Load(ctx); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(watchCtx, "test.value")
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Watch channel should be closed after context cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Error("Timeout waiting for watch channel to close")
	}
}

// TestLoaderMultipleWatches 测试同一 key 的多个监听器
func TestLoaderMultipleWatches(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "multi-watch.yaml")
	content := `test: {value: "initial"}`

	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	ctx := context.Background()
	loader, err := New(&Config{
		Name:  "multi-watch",
		Paths: []string{tmpDir},
	})
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	if err := loader.Load(ctx); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	watchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch1, err := loader.Watch(watchCtx, "test.value")
	if err != nil {
		t.Fatalf("Failed to create watch 1: %v", err)
	}
	ch2, err := loader.Watch(watchCtx, "test.value")
	if err != nil {
		t.Fatalf("Failed to create watch 2: %v", err)
	}

	updatedContent := `test: {value: "updated"}`
	if err := os.WriteFile(configFile, []byte(updatedContent), 0644); err != nil {
		t.Fatalf("Failed to update config: %v", err)
	}

	eventCount := 0
	timeout := time.After(3 * time.Second)

	for eventCount < 2 {
		select {
		case event := <-ch1:
			if event.Value != "updated" {
				t.Errorf("ch1 event value = %v, want updated", event.Value)
			}
			eventCount++

		case event := <-ch2:
			if event.Value != "updated" {
				t.Errorf("ch2 event value = %v, want updated", event.Value)
			}
			eventCount++

		case <-timeout:
			t.Errorf("Timeout waiting for events from both channels")
			return

		case <-watchCtx.Done():
			t.Errorf("Context cancelled while waiting")
			return
		}
	}
}

// TestLoaderEnvLoading 测试纯环境变量加载
func TestLoaderEnvLoading(t *testing.T) {
	testVars := map[string]string{
		"TEST_APP_NAME":   "env-test-app",
		"TEST_APP_DEBUG":  "true",
		"TEST_MYSQL_HOST": "env-host",
		"TEST_REDIS_ADDR": "env-redis:6380",
	}

	for k, v := range testVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range testVars {
			os.Unsetenv(k)
		}
	}()

	ctx := context.Background()
	loader, err := New(&Config{
		Name:      "config",
		Paths:     []string{"./nonexistent"},
		EnvPrefix: "TEST",
	})
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}

	// 自动环境变量不计入 AllSettings, 没有配置文件时 Load 因配置为空
	// 失败; 失败不影响之后按 key 读取环境变量
	if err := loader.Load(ctx); err == nil {
		t.Fatal("Load() should fail when all sources are empty")
	}

	if appName := loader.Get("app.name"); appName != "env-test-app" {
		t.Errorf("app.name = %v, want env-test-app", appName)
	}
	if appDebug := loader.Get("app.debug"); appDebug != "true" {
		t.Errorf("app.debug = %v, want true", appDebug)
	}
	if mysqlHost := loader.Get("mysql.host"); mysqlHost != "env-host" {
		t.Errorf("mysql.host = %v, want env-host", mysqlHost)
	}
	if redisAddr := loader.Get("redis.addr"); redisAddr != "env-redis:6380" {
		t.Errorf("redis.addr = %v, want env-redis:6380", redisAddr)
	}
}
