// Package otel wires OpenTelemetry tracing into check runs. Tracing is off
// unless --otel is given.
package otel

import (
	"errors"
	"os"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ProtocolHTTP = "otlphttp"
	ProtocolGRPC = "otlpgrpc"
)

// Config holds exporter settings. Empty Endpoint and Protocol fall back to
// the standard OTEL_EXPORTER_OTLP_* variables, then to localhost.
type Config struct {
	Enabled     bool
	Endpoint    string
	Protocol    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

func DefaultConfig() Config {
	return Config{
		Protocol:    ProtocolHTTP,
		ServiceName: "distguard",
		SampleRatio: 1.0,
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Protocol {
	case "", ProtocolHTTP, ProtocolGRPC:
	default:
		return errors.New("otel: protocol must be 'otlphttp' or 'otlpgrpc'")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return errors.New("otel: sample-ratio must be between 0 and 1")
	}
	return nil
}

// resolve fills Protocol and Endpoint from the environment and defaults.
func (c Config) resolve(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if c.Protocol == "" {
		switch getenv("OTEL_EXPORTER_OTLP_PROTOCOL") {
		case "grpc":
			c.Protocol = ProtocolGRPC
		default:
			c.Protocol = ProtocolHTTP
		}
	}
	if c.Endpoint == "" {
		c.Endpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if c.Endpoint == "" {
		if c.Protocol == ProtocolGRPC {
			c.Endpoint = "localhost:4317"
		} else {
			c.Endpoint = "http://localhost:4318"
		}
	}
	if c.ServiceName == "" {
		c.ServiceName = "distguard"
	}
	return c
}

func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.AlwaysSample()
	case c.SampleRatio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}
