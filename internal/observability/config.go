package observability

import (
	"strings"

	"github.com/smallbiznis/carbonmarket/internal/config"
	"github.com/spf13/viper"
)

const defaultSamplingRatio = 0.1

// Config is the logging and telemetry view of the process configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	// Traces and metrics may go to collectors speaking different protocols.
	OtelTracesProtocol  string
	OtelMetricsProtocol string
	OtelSamplingRatio   float64
}

// LoadConfig layers the OTEL_* and LOG_* variables over the app config.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "carbonmarket"
	}
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", defaultSamplingRatio)
	// Local runs rarely have a collector listening.
	v.SetDefault("OTEL_ENABLED", cfg.IsProduction())

	protocol := lower(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"))
	signalProtocol := func(key string) string {
		if p := lower(v.GetString(key)); p != "" {
			return p
		}
		return protocol
	}

	ratio := v.GetFloat64("OTEL_SAMPLING_RATIO")
	if ratio < 0 || ratio > 1 {
		ratio = defaultSamplingRatio
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             lower(v.GetString("LOG_LEVEL")),
		LogFormat:            lower(v.GetString("LOG_FORMAT")),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelTracesProtocol:   signalProtocol("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"),
		OtelMetricsProtocol:  signalProtocol("OTEL_EXPORTER_OTLP_METRICS_PROTOCOL"),
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on console logs and gin debug mode.
func (c Config) Debug() bool {
	if lower(c.LogLevel) == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
