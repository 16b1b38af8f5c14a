package storage

// Package storage puts finished artifacts (trained models, reports) at their destination,
// which is either a local path, or a Google Cloud Storage object of the form gs://bucket/object.

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/cyclopcam/autcar/pkg/iox"
	"github.com/cyclopcam/logs"
)

const gcsScheme = "gs://"

// IsRemote returns true if dst is a GCS URL
func IsRemote(dst string) bool {
	return strings.HasPrefix(dst, gcsScheme)
}

// ParseGCS splits gs://bucket/path/to/object into bucket and object
func ParseGCS(url string) (bucket, object string, err error) {
	if !IsRemote(url) {
		return "", "", fmt.Errorf("Not a GCS URL: %v", url)
	}
	rest := url[len(gcsScheme):]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", fmt.Errorf("GCS URL must be gs://bucket/object: %v", url)
	}
	return rest[:slash], rest[slash+1:], nil
}

// Put copies the local file src to dst
func Put(ctx context.Context, log logs.Log, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if !IsRemote(dst) {
		if filepath.Clean(src) == filepath.Clean(dst) {
			return nil
		}
		if dir := filepath.Dir(dst); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		_, err := iox.WriteStreamToFile(dst, in)
		return err
	}

	bucket, object, err := ParseGCS(dst)
	if err != nil {
		return err
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("Failed to create GCS client: %w", err)
	}
	defer client.Close()
	log.Infof("Uploading %v to %v", src, dst)
	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return fmt.Errorf("Failed to upload %v: %w", dst, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Failed to upload %v: %w", dst, err)
	}
	return nil
}

// WriteFile writes data to dst, via a temporary file if dst is remote
func WriteFile(ctx context.Context, log logs.Log, dst string, data []byte) error {
	if !IsRemote(dst) {
		if dir := filepath.Dir(dst); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		return os.WriteFile(dst, data, 0644)
	}
	tmp, err := os.CreateTemp("", "autcar-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return Put(ctx, log, tmp.Name(), dst)
}
