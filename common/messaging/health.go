package messaging

import (
	"context"
	"time"
)

// HealthStatus is the broker connection state reported by /readyz.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// CheckClientHealth reports whether client is connected and measures a
// round trip to the server. A "no responders" reply still proves the
// connection works, so request errors do not mark the client unhealthy.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	if client == nil {
		return HealthStatus{Error: "client is nil"}
	}

	status := HealthStatus{Connected: client.IsConnected()}
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	start := time.Now()
	_, _ = client.Request(ctx, "_HEALTH.ping", []byte("ping"), 2*time.Second)
	status.LatencyMs = time.Since(start).Milliseconds()
	return status
}
