package mqtt

import (
	"testing"
	"time"
)

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ClientConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"missing broker", &ClientConfig{ClientID: "x"}, true},
		{"missing client id", &ClientConfig{BrokerURL: "tcp://localhost:1883"}, true},
		{"bare host", &ClientConfig{BrokerURL: "localhost", ClientID: "x"}, true},
		{"ok", &ClientConfig{BrokerURL: "tcp://localhost:1883", ClientID: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetDefaultConfig(t *testing.T) {
	cfg := &ClientConfig{}
	setDefaultConfig(cfg)
	if cfg.KeepAlive != 60 || cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestPublishBeforeStart(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883", ClientID: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Publish(t.Context(), "t", 0, false, nil); err != errNotStarted {
		t.Errorf("Publish() before Start = %v, want %v", err, errNotStarted)
	}
}
