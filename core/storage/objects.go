package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
)

// IsNotFound reports whether err means the object or bucket does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

// ReadObject downloads an object fully into memory.
func ReadObject(ctx context.Context, client Client, bucket, name string) ([]byte, error) {
	obj, err := client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	// minio returns the not-found error on first read, not on GetObject
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteObject uploads data under name.
func WriteObject(ctx context.Context, client Client, bucket, name, contentType string, data []byte) error {
	_, err := client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return nil
}

// ListObjects collects the objects under prefix, oldest key first.
func ListObjects(ctx context.Context, client Client, bucket, prefix string) ([]minio.ObjectInfo, error) {
	var objects []minio.ObjectInfo
	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, obj.Err)
		}
		objects = append(objects, obj)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// EnsureBucket creates the bucket when it does not exist.
func EnsureBucket(ctx context.Context, client Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// KV is a string key-value store keeping one object per key under a prefix.
type KV struct {
	client Client
	bucket string
	prefix string
}

// NewKV creates an object-backed key-value store.
func NewKV(client Client, bucket, prefix string) *KV {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &KV{client: client, bucket: bucket, prefix: prefix}
}

func (s *KV) objectName(key string) string {
	return s.prefix + key + ".json"
}

// Get returns the value for key; found is false when the object does not exist.
func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := ReadObject(ctx, s.client, s.bucket, s.objectName(key))
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set stores value under key.
func (s *KV) Set(ctx context.Context, key, value string) error {
	return WriteObject(ctx, s.client, s.bucket, s.objectName(key), "application/json", []byte(value))
}
