// Package content is CS: immutable, content-addressed object storage over
// gocloud.dev/blob, grounded on the zombiezen/aptblob reference's bucket
// usage and hash-verified put idiom.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned by Head when the key does not exist, mirroring
// gocloud.dev/blob's NotFound error code so callers (notably CC) can treat
// "absent" as a first-class outcome rather than an error to log.
var ErrNotFound = errors.New("content: object not found")

// Attributes describes what CC needs to know about a stored object.
type Attributes struct {
	SHA256 string
	Size   int64
}

// Store is CS, a thin content-addressed wrapper around a *blob.Bucket.
type Store struct {
	bucket *blob.Bucket
	retry  RetryPolicy
}

// New wraps an already-opened bucket (production code opens it via
// blob.OpenBucket with an s3blob:// URL; tests use memblob or fileblob).
func New(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket, retry: DefaultRetryPolicy()}
}

// Put durably stores bytes at key, verifying the readback SHA-256 matches
// the digest of the bytes written before reporting success, per spec §4.1's
// guarantee. The write itself is wrapped in the retry policy described in
// spec §5.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.retry.Do(ctx, func() error {
		w, err := s.bucket.NewWriter(ctx, key, nil)
		if err != nil {
			return fmt.Errorf("opening writer for %s: %w", key, err)
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return fmt.Errorf("writing %s: %w", key, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("closing writer for %s: %w", key, err)
		}
		got, err := s.bucket.ReadAll(ctx, key)
		if err != nil {
			return fmt.Errorf("reading back %s: %w", key, err)
		}
		if sha256Hex(got) != sha256Hex(data) {
			return fmt.Errorf("readback of %s: sha256 mismatch", key)
		}
		return nil
	})
}

// Head returns the SHA-256 of the object at key, computed by reading the
// object back (gocloud.dev/blob's ETag is driver-specific and is not a
// trustworthy content hash across all backends). Returns ErrNotFound if the
// key does not exist.
func (s *Store) Head(ctx context.Context, key string) (Attributes, error) {
	var attrs Attributes
	err := s.retry.Do(ctx, func() error {
		r, err := s.bucket.NewReader(ctx, key, nil)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				return ErrNotFound
			}
			return fmt.Errorf("opening reader for %s: %w", key, err)
		}
		defer r.Close()

		h := sha256.New()
		n, err := io.Copy(h, r)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", key, err)
		}
		attrs = Attributes{SHA256: hex.EncodeToString(h.Sum(nil)), Size: n}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return Attributes{}, ErrNotFound
	}
	return attrs, err
}

// Copy materializes dstKey as a copy of srcKey's current bytes. gocloud.dev/blob
// has no universal server-side copy across every driver, so this reads the
// source fully and writes it to the destination.
func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	var data []byte
	err := s.retry.Do(ctx, func() error {
		b, err := s.bucket.ReadAll(ctx, srcKey)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				return ErrNotFound
			}
			return fmt.Errorf("reading %s: %w", srcKey, err)
		}
		data = b
		return nil
	})
	if err != nil {
		return err
	}
	return s.Put(ctx, dstKey, data)
}

// Delete removes every key in keys, working through them in chunks of 1000
// per spec §4.1 (gocloud.dev/blob has no native batch-delete, so each key in
// a chunk is deleted individually). Any number of keys may be passed.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	const maxBatch = 1000
	for len(keys) > 0 {
		batch := keys
		if len(batch) > maxBatch {
			batch = batch[:maxBatch]
		}
		for _, key := range batch {
			err := s.retry.Do(ctx, func() error {
				err := s.bucket.Delete(ctx, key)
				if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
					return nil
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}
		keys = keys[len(batch):]
	}
	return nil
}

// Get reads back the full bytes at key. Returns ErrNotFound if the key does
// not exist.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.retry.Do(ctx, func() error {
		b, err := s.bucket.ReadAll(ctx, key)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				return ErrNotFound
			}
			return err
		}
		data = b
		return nil
	})
	return data, err
}

// sha256Hex is a small helper used by Put to compare the read-back bytes
// against the bytes written.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
