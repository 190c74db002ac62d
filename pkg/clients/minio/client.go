// Package minio provides the tenant-guarded object storage client for
// IronBucket services. It wraps a MinIO S3-compatible backend with
// OpenTelemetry tracing and structured error handling, and refuses every
// operation whose bucket the resolved tenant may not touch.
//
// # Tenant isolation
//
// Every object and bucket operation takes the resolved tenant as its first
// argument after the context. Access is checked through a
// [tenant.Enforcer] before the request reaches the backend: a tenant may
// only use the bucket named after it or its scoped bucket
// ("tenant-<name>"). Violations return TENANT_003 and never leave the
// process, which makes the storage layer safe even when a handler forgets
// its own check.
//
// # Configuration
//
//	cfg := minio.DefaultConfig()
//	cfg.AccessKey = "my-access-key"
//	cfg.SecretKey = minio.Secret("my-secret-key")
//	client, err := minio.NewClient(ctx, *cfg, enforcer)
//
// For testing, use [NewFromStore] to inject a mock store.
//
// # OpenTelemetry Tracing
//
// All storage operations create spans with database semantic attributes
// (db.system, db.name, db.statement). Operation descriptions are truncated
// to 100 characters so object keys cannot leak into telemetry.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/ironbucket/ironbucket-core/pkg/errors"
	"github.com/ironbucket/ironbucket-core/pkg/tenant"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/ironbucket/ironbucket-core/pkg/clients/minio"

// ObjectStore defines the interface for MinIO object storage operations.
// It is satisfied by [*minio.Client] and by mock implementations for unit
// testing. All methods follow the minio-go v7 API signatures exactly.
type ObjectStore interface {
	// PutObject uploads an object to a bucket.
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)

	// GetObject retrieves an object from a bucket. The returned
	// *minio.Object implements io.ReadCloser and must be closed by the
	// caller.
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)

	// RemoveObject deletes an object from a bucket.
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error

	// StatObject retrieves metadata about an object without downloading it.
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)

	// ListObjects returns a channel of objects in a bucket matching the
	// provided options.
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo

	// BucketExists checks whether a bucket exists on the server.
	BucketExists(ctx context.Context, bucketName string) (bool, error)

	// MakeBucket creates a new bucket with the given name and options.
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error

	// RemoveBucket deletes an empty bucket.
	RemoveBucket(ctx context.Context, bucketName string) error

	// PresignedGetObject generates a presigned URL for downloading an object.
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)

	// PresignedPutObject generates a presigned URL for uploading an object.
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expires time.Duration) (*url.URL, error)
}

// Compile-time interface compliance check.
var _ ObjectStore = (*minio.Client)(nil)

// Client is the tenant-guarded object storage client. It wraps an
// [ObjectStore] and adds tenant boundary enforcement, tracing, and error
// classification to every operation.
//
// A Client is safe for concurrent use. Create one per MinIO endpoint and
// share it across the application.
type Client struct {
	store    ObjectStore
	config   *Config
	enforcer *tenant.Enforcer
	tracer   trace.Tracer
}

// NewClient creates a tenant-guarded MinIO client. It validates the
// configuration, creates the underlying minio.Client, and verifies
// connectivity with a BucketExists probe.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: cannot connect to MinIO
//   - [sserr.CodeInternalStore]: unexpected client creation failure
func NewClient(ctx context.Context, cfg Config, enforcer *tenant.Enforcer) (*Client, error) {
	if enforcer == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration,
			"minio: tenant enforcer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation,
			"minio: invalid configuration")
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalStore,
			"minio: failed to create client")
	}

	// The probe bucket does not need to exist; a successful API call
	// (even returning false) confirms the server is reachable and the
	// credentials are valid.
	healthBucket := cfg.HealthBucket
	if healthBucket == "" {
		healthBucket = "health-check-probe"
	}
	if _, err := minioClient.BucketExists(ctx, healthBucket); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"minio: failed to connect to server")
	}

	return &Client{
		store:    minioClient,
		config:   &cfg,
		enforcer: enforcer,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// NewFromStore creates a Client over a pre-existing [ObjectStore]. This
// constructor is intended for testing with mock stores. The cfg parameter
// is stored but not validated; pass nil for a zero-value config.
func NewFromStore(store ObjectStore, cfg *Config, enforcer *tenant.Enforcer) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		store:    store,
		config:   cfg,
		enforcer: enforcer,
		tracer:   otel.Tracer(tracerName),
	}
}

// TenantBucket returns the scoped bucket name owned by the tenant.
func (c *Client) TenantBucket(tenantID string) (string, error) {
	return c.enforcer.ScopedBucket(tenantID)
}

// EnsureTenantBucket creates the tenant's scoped bucket if it does not
// exist yet. Called during tenant provisioning.
func (c *Client) EnsureTenantBucket(ctx context.Context, tenantID string) error {
	bucket, err := c.enforcer.ScopedBucket(tenantID)
	if err != nil {
		return err
	}
	exists, err := c.BucketExists(ctx, tenantID, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return c.MakeBucket(ctx, tenantID, bucket, minio.MakeBucketOptions{Region: c.config.Region})
}

// PutObject uploads an object after checking the tenant may use the bucket.
//
// Error codes returned:
//   - [sserr.CodeTenantAccessDenied] when the bucket is outside the tenant
//   - [sserr.CodeTimeoutStore] if the context deadline is exceeded
//   - [sserr.CodeInternalStore] for all other storage errors
func (c *Client) PutObject(ctx context.Context, tenantID, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	ctx, span := c.startSpan(ctx, "PutObject", tenantID, bucketName, fmt.Sprintf("PUT %s/%s", bucketName, objectName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return minio.UploadInfo{}, err
	}

	info, err := c.store.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
	finishSpan(span, err)
	if err != nil {
		return info, wrapError(err, "minio: put object failed")
	}
	return info, nil
}

// GetObject retrieves an object after checking the tenant may use the
// bucket. The returned [*minio.Object] must be closed by the caller.
func (c *Client) GetObject(ctx context.Context, tenantID, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	ctx, span := c.startSpan(ctx, "GetObject", tenantID, bucketName, fmt.Sprintf("GET %s/%s", bucketName, objectName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	obj, err := c.store.GetObject(ctx, bucketName, objectName, opts)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "minio: get object failed")
	}
	return obj, nil
}

// RemoveObject deletes an object after checking the tenant may use the
// bucket.
func (c *Client) RemoveObject(ctx context.Context, tenantID, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	ctx, span := c.startSpan(ctx, "RemoveObject", tenantID, bucketName, fmt.Sprintf("DELETE %s/%s", bucketName, objectName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return err
	}

	err := c.store.RemoveObject(ctx, bucketName, objectName, opts)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: remove object failed")
	}
	return nil
}

// StatObject retrieves object metadata after checking the tenant may use
// the bucket.
func (c *Client) StatObject(ctx context.Context, tenantID, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	ctx, span := c.startSpan(ctx, "StatObject", tenantID, bucketName, fmt.Sprintf("STAT %s/%s", bucketName, objectName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return minio.ObjectInfo{}, err
	}

	info, err := c.store.StatObject(ctx, bucketName, objectName, opts)
	finishSpan(span, err)
	if err != nil {
		return info, wrapError(err, "minio: stat object failed")
	}
	return info, nil
}

// ListObjects lists a bucket's objects after checking the tenant may use
// it. Cross-tenant requests get an empty, closed channel and an error,
// never a partial listing.
func (c *Client) ListObjects(ctx context.Context, tenantID, bucketName string, opts minio.ListObjectsOptions) (<-chan minio.ObjectInfo, error) {
	ctx, span := c.startSpan(ctx, "ListObjects", tenantID, bucketName, fmt.Sprintf("LIST %s prefix=%s", bucketName, opts.Prefix))
	defer span.End()

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		empty := make(chan minio.ObjectInfo)
		close(empty)
		return empty, err
	}
	return c.store.ListObjects(ctx, bucketName, opts), nil
}

// BucketExists checks whether a bucket exists, after checking the tenant
// may use it.
func (c *Client) BucketExists(ctx context.Context, tenantID, bucketName string) (bool, error) {
	ctx, span := c.startSpan(ctx, "BucketExists", tenantID, bucketName, fmt.Sprintf("HEAD %s", bucketName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return false, err
	}

	exists, err := c.store.BucketExists(ctx, bucketName)
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "minio: bucket exists check failed")
	}
	return exists, nil
}

// MakeBucket creates a bucket after checking it lies inside the tenant's
// boundary.
func (c *Client) MakeBucket(ctx context.Context, tenantID, bucketName string, opts minio.MakeBucketOptions) error {
	ctx, span := c.startSpan(ctx, "MakeBucket", tenantID, bucketName, fmt.Sprintf("MAKE %s", bucketName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return err
	}

	err := c.store.MakeBucket(ctx, bucketName, opts)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: make bucket failed")
	}
	return nil
}

// RemoveBucket deletes an empty bucket after checking it lies inside the
// tenant's boundary.
func (c *Client) RemoveBucket(ctx context.Context, tenantID, bucketName string) error {
	ctx, span := c.startSpan(ctx, "RemoveBucket", tenantID, bucketName, fmt.Sprintf("REMOVE %s", bucketName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return err
	}

	err := c.store.RemoveBucket(ctx, bucketName)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: remove bucket failed")
	}
	return nil
}

// PresignedGetObject generates a presigned download URL after checking the
// tenant may use the bucket. The URL inherits the bucket's boundary: it
// only grants what the check already allowed.
func (c *Client) PresignedGetObject(ctx context.Context, tenantID, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	ctx, span := c.startSpan(ctx, "PresignedGetObject", tenantID, bucketName, fmt.Sprintf("PRESIGN GET %s/%s", bucketName, objectName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	u, err := c.store.PresignedGetObject(ctx, bucketName, objectName, expires, reqParams)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "minio: presigned get object failed")
	}
	return u, nil
}

// PresignedPutObject generates a presigned upload URL after checking the
// tenant may use the bucket.
func (c *Client) PresignedPutObject(ctx context.Context, tenantID, bucketName, objectName string, expires time.Duration) (*url.URL, error) {
	ctx, span := c.startSpan(ctx, "PresignedPutObject", tenantID, bucketName, fmt.Sprintf("PRESIGN PUT %s/%s", bucketName, objectName))

	if err := c.guardBucket(tenantID, bucketName); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	u, err := c.store.PresignedPutObject(ctx, bucketName, objectName, expires)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "minio: presigned put object failed")
	}
	return u, nil
}

// Health verifies that the MinIO server is reachable by calling
// BucketExists on the probe bucket, bypassing tenant checks (the probe is
// not tenant data). It applies [DefaultHealthTimeout] if the provided
// context has no deadline.
//
// Returns nil if MinIO is reachable, or a [*sserr.Error] with code
// [sserr.CodeUnavailableDependency] if the probe fails.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "", "", "BucketExists health-check-probe")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	healthBucket := c.config.HealthBucket
	if healthBucket == "" {
		healthBucket = "health-check-probe"
	}

	_, err := c.store.BucketExists(ctx, healthBucket)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"minio: health check failed")
	}
	return nil
}

// Close is a no-op. The MinIO client uses stateless HTTP connections; the
// method exists for interface consistency with the other client packages.
// Close is safe to call multiple times.
func (c *Client) Close() {
	// No-op: stateless HTTP, nothing to release.
}

// Store returns the underlying [ObjectStore]. The returned store bypasses
// tenant enforcement; use it only for administrative paths that have their
// own authorization.
func (c *Client) Store() ObjectStore {
	return c.store
}

// guardBucket is the single enforcement point: every operation calls it
// before the request reaches the backend.
func (c *Client) guardBucket(tenantID, bucketName string) error {
	if c.enforcer == nil {
		return sserr.New(sserr.CodeInternalConfiguration,
			"minio: tenant enforcer is not configured")
	}
	if c.enforcer.CanAccessBucket(tenantID, bucketName) {
		return nil
	}
	return sserr.New(sserr.CodeTenantAccessDenied,
		"minio: tenant is not permitted to access this bucket").
		WithDetails(map[string]any{
			"tenant": tenantID,
			"bucket": bucketName,
		})
}

// startSpan creates an OpenTelemetry span with database semantic
// attributes plus the resolved tenant.
func (c *Client) startSpan(ctx context.Context, operationName, tenantID, bucketName, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "minio."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "minio"),
		attribute.String("db.name", bucketName),
		attribute.String("db.statement", truncateStatement(statement)),
		attribute.String("ironbucket.tenant", tenantID),
	)
	return ctx, span
}

// finishSpan records an error on the span (if any) and ends it. If err is
// nil, the span status is set to OK.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError converts a storage error to a platform [*sserr.Error].
// [context.DeadlineExceeded] maps to [sserr.CodeTimeoutStore] (retryable);
// everything else, including [context.Canceled], maps to
// [sserr.CodeInternalStore] because retrying an abandoned operation is
// wasteful.
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutStore, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalStore, message)
}
