package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv"
)

// Bucket stores uploaded and exported workbooks as objects under an optional prefix.
type Bucket struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

func NewBucket(ctx context.Context, bucketName, prefix string) (*Bucket, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Bucket{
		client:     client,
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
	}, nil
}

func (b *Bucket) Close() error {
	return b.client.Close()
}

func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	reader, err := b.client.Bucket(b.bucketName).Object(b.objectName(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", fs.ErrNotExist, b.bucketName, b.objectName(name))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create object reader: %w", err)
	}
	return reader, nil
}

// Create returns a writer that uploads on Close.
func (b *Bucket) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	writer := b.client.Bucket(b.bucketName).Object(b.objectName(name)).NewWriter(ctx)
	writer.ContentType = ContentType(name)
	return writer, nil
}

func (b *Bucket) objectName(name string) string {
	return ObjectName(b.prefix, name)
}

func ObjectName(prefix, name string) string {
	name = strings.TrimLeft(path.Clean("/"+name), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".xlsx", ".xlsm":
		return contentTypeXLSX
	case ".csv":
		return contentTypeCSV
	default:
		return "application/octet-stream"
	}
}
