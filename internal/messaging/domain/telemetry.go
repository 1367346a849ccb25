package domain

import "time"

// TelemetryEvent side-channel event emitted after an operation
type TelemetryEvent struct {
	Scope     string    `json:"scope"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	ThreadID  string    `json:"thread_id,omitempty"`
	MemberID  string    `json:"member_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TelemetrySink fire-and-forget telemetry. Emit must never block.
type TelemetrySink interface {
	Emit(event TelemetryEvent)
}

// TelemetryFunc adapt a func into TelemetrySink
type TelemetryFunc func(TelemetryEvent)

// Emit call f
func (f TelemetryFunc) Emit(event TelemetryEvent) { f(event) }
