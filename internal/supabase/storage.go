package supabase

import (
	"context"
	"fmt"
	"io"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"lens-backend/internal/media"
)

// ObjectStore stores attachments in a public Storage bucket.
type ObjectStore struct {
	client       *Client
	bucket       string
	cacheControl string
}

var _ media.ObjectStore = (*ObjectStore)(nil)

// NewObjectStore creates an ObjectStore. cacheControl is the max-age in
// seconds sent with each object; empty keeps the server default.
func NewObjectStore(client *Client, cacheControl string) *ObjectStore {
	return &ObjectStore{client: client, bucket: client.Config().Bucket, cacheControl: cacheControl}
}

// Upload writes body at path. Each call uses its own Storage client because
// the client keeps per-upload headers in shared state.
func (s *ObjectStore) Upload(ctx context.Context, path string, body io.Reader, contentType string) error {
	c, err := s.client.ForContext(ctx)
	if err != nil {
		return err
	}
	upsert := false
	opts := storage.FileOptions{ContentType: &contentType, Upsert: &upsert}
	if s.cacheControl != "" {
		opts.CacheControl = &s.cacheControl
	}
	if _, err := c.Storage.UploadFile(s.bucket, path, body, opts); err != nil {
		return fmt.Errorf("upload %s: %s: %w", path, storageMessage(err), err)
	}
	return nil
}

// PublicURL is the unauthenticated URL of path.
func (s *ObjectStore) PublicURL(path string) string {
	base := strings.TrimSuffix(s.client.Config().URL, "/") + "/storage/v1"
	return storage.NewClient(base, s.client.Config().AnonKey, nil).GetPublicUrl(s.bucket, path).SignedURL
}
