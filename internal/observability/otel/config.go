// Package otel wires OpenTelemetry tracing into skillvet.
// Tracing is off unless --otel is given.
package otel

import (
	"errors"
)

// Protocol constants for OTLP exporters.
const (
	ProtocolHTTP = "otlphttp"
	ProtocolGRPC = "otlpgrpc"
)

// ServiceName is the default resource service name.
const ServiceName = "skillvet"

// Config holds OTel initialization options.
type Config struct {
	Enabled     bool
	Endpoint    string  // "http://localhost:4318" or "localhost:4317"
	Protocol    string  // "otlphttp" or "otlpgrpc"
	Insecure    bool    // plaintext transport
	ServiceName string  // default: "skillvet"
	SampleRatio float64 // 0..1, default: 1.0
}

// DefaultConfig returns a disabled configuration.
func DefaultConfig() Config {
	return Config{
		Protocol:    ProtocolHTTP,
		ServiceName: ServiceName,
		SampleRatio: 1.0,
	}
}

// Validate checks the configuration when tracing is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Protocol {
	case ProtocolHTTP, ProtocolGRPC:
	default:
		return errors.New("otel: protocol must be 'otlphttp' or 'otlpgrpc'")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return errors.New("otel: sample-ratio must be between 0 and 1")
	}
	return nil
}
