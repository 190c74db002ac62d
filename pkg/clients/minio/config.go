package minio

import (
	"errors"
	"time"
)

// maxStatementTruncateLen is the maximum length for operation descriptions
// recorded in OpenTelemetry trace spans. Statements longer than this are
// truncated so object keys carrying PII cannot leak into telemetry systems.
const maxStatementTruncateLen = 100

// Default configuration settings for Kubernetes deployments, tuned for an
// IronBucket cluster where MinIO runs behind a Service with Linkerd mTLS.
const (
	// DefaultEndpoint is the Kubernetes Service DNS name for the MinIO
	// backend in an IronBucket deployment.
	DefaultEndpoint = "minio.storage.svc.cluster.local:9000"

	// DefaultRegion is the default S3 region for MinIO.
	DefaultRegion = "us-east-1"

	// DefaultUseSSL disables application-level TLS by default because
	// Linkerd provides mTLS at the network layer. For internet-facing
	// deployments, set UseSSL to true.
	DefaultUseSSL = false

	// DefaultHealthTimeout is the maximum time for a health check probe
	// when the caller's context has no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string type that prevents accidental logging of sensitive
// values such as MinIO secret keys. Its [Secret.String] and
// [Secret.GoString] methods return a redacted placeholder; use
// [Secret.Value] to retrieve the actual secret.
type Secret string

// redacted is the placeholder string returned by Secret's string methods.
const redacted = "[REDACTED]"

// String returns "[REDACTED]" to prevent accidental logging of the secret.
func (s Secret) String() string {
	return redacted
}

// GoString returns "[REDACTED]" for fmt.Sprintf("%#v", secret) safety.
func (s Secret) GoString() string {
	return redacted
}

// Value returns the actual secret string. Handle the returned value with
// care; avoid logging, serializing, or storing it in plaintext.
func (s Secret) Value() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]" so
// the secret never appears in JSON or YAML output.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Config holds the MinIO backend connection configuration. Values are
// typically injected as environment variables by the External Secrets
// Operator.
type Config struct {
	// Endpoint is the MinIO server hostname and port.
	// Default: "minio.storage.svc.cluster.local:9000"
	// Environment variable: MINIO_ENDPOINT
	Endpoint string `json:"endpoint,omitempty" env:"MINIO_ENDPOINT"`

	// AccessKey is the MinIO access key for authentication.
	// Environment variable: MINIO_ACCESS_KEY
	AccessKey string `json:"access_key,omitempty" env:"MINIO_ACCESS_KEY"`

	// SecretKey is the MinIO secret key. Uses the [Secret] type to
	// prevent accidental logging.
	// Environment variable: MINIO_SECRET_KEY
	SecretKey Secret `json:"-" env:"MINIO_SECRET_KEY"`

	// Region is the S3 region for the MinIO server.
	// Default: "us-east-1"
	// Environment variable: MINIO_REGION
	Region string `json:"region,omitempty" env:"MINIO_REGION"`

	// UseSSL enables TLS for the connection to MinIO.
	// Default: false (Linkerd provides mTLS)
	// Environment variable: MINIO_USE_SSL
	UseSSL bool `json:"use_ssl,omitempty" env:"MINIO_USE_SSL"`

	// HealthBucket is the bucket name used for health checks. When empty,
	// the probe uses "health-check-probe" with BucketExists, which tests
	// connectivity without requiring the bucket to exist.
	// Environment variable: MINIO_HEALTH_BUCKET
	HealthBucket string `json:"health_bucket,omitempty" env:"MINIO_HEALTH_BUCKET"`
}

// DefaultConfig returns a Config with defaults suitable for an IronBucket
// Kubernetes deployment. Override fields as needed before [NewClient].
func DefaultConfig() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Region:   DefaultRegion,
		UseSSL:   DefaultUseSSL,
	}
}

// Validate checks the configuration for invalid values and applies defaults
// for zero-valued fields. Returns the first validation error encountered.
//
// Validation rules:
//   - Endpoint must not be empty
//   - AccessKey must not be empty
//   - Region defaults to "us-east-1" if empty
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio: config endpoint must not be empty")
	}
	if c.AccessKey == "" {
		return errors.New("minio: config access_key must not be empty")
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	return nil
}

// truncateStatement truncates an operation description to
// [maxStatementTruncateLen] runes for safe inclusion in trace spans.
// The truncation is rune-aware to avoid splitting multi-byte UTF-8
// characters.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
