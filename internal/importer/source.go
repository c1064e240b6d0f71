package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrUnsupportedSource is returned for a URI no configured source can open.
var ErrUnsupportedSource = errors.New("importer: unsupported source")

const gcsScheme = "gs://"

// Source opens import files by URI.
type Source interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// FileSource opens local paths, with or without a file:// prefix.
type FileSource struct{}

// Open implements Source.
func (FileSource) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	f, err := os.Open(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		return nil, fmt.Errorf("FileSource.Open: %w", err)
	}
	return f, nil
}

// GCSSource reads and writes objects in Cloud Storage.
type GCSSource struct {
	client *storage.Client
}

// NewGCSSource creates a source with its own storage client.
func NewGCSSource(ctx context.Context, opts ...option.ClientOption) (*GCSSource, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSSource: creating storage client: %w", err)
	}
	return NewGCSSourceWithClient(client), nil
}

// NewGCSSourceWithClient creates a source over an existing client.
func NewGCSSourceWithClient(client *storage.Client) *GCSSource {
	return &GCSSource{client: client}
}

// Close closes the storage client.
func (g *GCSSource) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Open implements Source for gs://bucket/object URIs.
func (g *GCSSource) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSSource.Open: reading object %s/%s: %w", bucket, object, err)
	}
	return rc, nil
}

// UploadFile uploads a local file to bucket under objectName and returns its
// gs:// URI.
func (g *GCSSource) UploadFile(ctx context.Context, bucket, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	return g.Upload(ctx, bucket, objectName, f, "text/csv")
}

// Upload streams r to bucket under objectName and returns its gs:// URI.
func (g *GCSSource) Upload(ctx context.Context, bucket, objectName string, r io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copy to writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize upload: %w", err)
	}
	return gcsScheme + bucket + "/" + objectName, nil
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		return "", "", fmt.Errorf("%w: not a gs:// URI: %s", ErrUnsupportedSource, uri)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: no object path in %s", ErrUnsupportedSource, uri)
	}
	return bucket, object, nil
}

// ObjectName returns the base name of the object in a gs:// URI or path.
func ObjectName(uri string) string {
	trimmed := strings.TrimPrefix(uri, gcsScheme)
	if _, object, ok := strings.Cut(trimmed, "/"); ok && strings.HasPrefix(uri, gcsScheme) {
		return path.Base(object)
	}
	return path.Base(trimmed)
}

// Router dispatches gs:// URIs to GCS and everything else to Local.
type Router struct {
	GCS   Source // may be nil when no bucket is configured
	Local Source
}

// Open implements Source.
func (r Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if strings.HasPrefix(uri, gcsScheme) {
		if r.GCS == nil {
			return nil, fmt.Errorf("%w: cloud storage is not configured", ErrUnsupportedSource)
		}
		return r.GCS.Open(ctx, uri)
	}
	if r.Local == nil {
		return nil, fmt.Errorf("%w: local files are not allowed", ErrUnsupportedSource)
	}
	return r.Local.Open(ctx, uri)
}

var (
	_ Source = FileSource{}
	_ Source = (*GCSSource)(nil)
	_ Source = Router{}
)
