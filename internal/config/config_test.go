package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	// The API server carries its own timeouts; it must not borrow the
	// chatserver's SERVER section.
	if cfg.APIServer.ReadTimeout != 30*time.Second {
		t.Errorf("api server read timeout = %v, want 30s", cfg.APIServer.ReadTimeout)
	}
	if cfg.APIServer.WriteTimeout != 30*time.Second {
		t.Errorf("api server write timeout = %v, want 30s", cfg.APIServer.WriteTimeout)
	}

	if len(cfg.WebSocket.AllowedOrigins) == 0 {
		t.Error("websocket allowed origins default is empty")
	}
	if cfg.Kafka.ConsumerGroup == "" {
		t.Error("kafka consumer group default is empty")
	}
}
