package mcp

import "testing"

func TestServerConfigValidateWebSocket(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"valid ws", ServerConfig{ID: "s1", Transport: TransportWebSocket, URL: "ws://example.com/mcp"}, false},
		{"valid wss", ServerConfig{ID: "s1", Transport: TransportWebSocket, URL: "wss://example.com/mcp"}, false},
		{"missing url", ServerConfig{ID: "s1", Transport: TransportWebSocket}, true},
		{"wrong scheme", ServerConfig{ID: "s1", Transport: TransportWebSocket, URL: "http://example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTransportWebSocket(t *testing.T) {
	cfg := &ServerConfig{ID: "test", Transport: TransportWebSocket, URL: "ws://example.com/mcp"}
	transport := NewTransport(cfg)

	if _, ok := transport.(*WebSocketTransport); !ok {
		t.Error("expected WebSocketTransport")
	}
}
