package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"finman/internal/config"
	"finman/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	appCfg := &config.Config{
		DataBackend:  "postgres",
		DatabaseURL:  "postgres://localhost/finman",
		AMQPURL:      "amqp://localhost:5672/",
		AMQPExchange: "finman",
		AMQPQueue:    "transactions_generated",
	}

	cfg, err := FromAppConfig(appCfg)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != PostgresBackend || cfg.DatabaseURL != appCfg.DatabaseURL || cfg.AMQPQueue != appCfg.AMQPQueue {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig(nil) expected error")
	}
	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	if err == nil || !strings.Contains(err.Error(), "valid: sqlite, postgres, memory") {
		t.Errorf("FromAppConfig() error = %v, want the valid backend list", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "finman.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"unknown", Config{Type: "mongo"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	ctx := context.Background()
	result, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer result.Cleanup()

	if err := result.Backend.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	due, err := result.Backend.FetchDueTemplates(ctx, core.NewDate(2024, 1, 1))
	if err != nil || len(due) != 0 {
		t.Errorf("FetchDueTemplates() = %v, %v; want empty", due, err)
	}
	if result.Notifier == nil {
		t.Error("Notifier is nil, want no-op notifier when AMQP is disabled")
	}
}

func TestCreateBackend_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "finman.db")

	result, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}

	if err := result.Backend.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := result.Cleanup(); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
}

func TestCreateBackend_InvalidType(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: "sheets"}); err == nil {
		t.Error("CreateBackend() expected error for invalid type")
	}
}
