// Package xmlfile saves and loads records as XML files on blob storage.
//
// Buckets are opened with gocloud.dev/blob URLs, so the same code writes to a local
// directory ("file:///var/lib/bookshop"), to memory ("mem://") or to cloud storage ("gs://bucket").
// Files have the format created by [xmlmodel.Encode].
package xmlfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/birdie-ai/xmlstore/slog"
	"github.com/birdie-ai/xmlstore/xmlmodel"
	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"golang.org/x/sync/errgroup"

	// Supported bucket URL schemes.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// Ext is the extension of files created by [SaveNew].
const Ext = ".xml"

// ErrNotFound is returned when a file doesn't exist.
var ErrNotFound = errors.New("xml file not found")

// OpenBucket opens the bucket at the given URL.
// Call [blob.Bucket.Close] to release it.
func OpenBucket(ctx context.Context, url string) (*blob.Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %q: %w", url, err)
	}
	return bucket, nil
}

// Save writes the records as an XML file with the given key, replacing it if it already exists.
// The records are serialized with [xmlmodel.Encode], so the same rules and errors apply.
// Nothing is written if the records can't be serialized.
func Save[T any](ctx context.Context, bucket *blob.Bucket, key string, records []T, opts ...xmlmodel.Option) error {
	var sb strings.Builder
	if err := xmlmodel.Encode(&sb, records, opts...); err != nil {
		return err
	}
	data := sb.String()

	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("creating file %q: %w", key, err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		return errors.Join(fmt.Errorf("writing file %q: %w", key, err), w.Close())
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing file %q: %w", key, err)
	}

	slog.FromCtx(ctx).Debug("xml file saved", "key", key, "records", len(records), "size", len(data))
	return nil
}

// SaveNew calls [Save] with a new random key like "<prefix><uuid>.xml" and returns the key.
func SaveNew[T any](ctx context.Context, bucket *blob.Bucket, prefix string, records []T, opts ...xmlmodel.Option) (string, error) {
	key := prefix + uuid.NewString() + Ext
	if err := Save(ctx, bucket, key, records, opts...); err != nil {
		return "", err
	}
	return key, nil
}

// Load reads the XML file with the given key and parses its records with [xmlmodel.Unmarshal].
// If the file doesn't exist an error matching [ErrNotFound] is returned.
func Load[T any](ctx context.Context, bucket *blob.Bucket, key string, opts ...xmlmodel.Option) ([]T, error) {
	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading file %q: %w", key, err)
	}
	return xmlmodel.Unmarshal[T](data, opts...)
}

// LoadAll loads the records of all XML files with the given prefix (see [List]).
// Files are loaded concurrently, at most maxConcurrency at a time (no limit if maxConcurrency <= 0).
// Records are returned in key order. The first error cancels the remaining loads.
func LoadAll[T any](ctx context.Context, bucket *blob.Bucket, prefix string, maxConcurrency int, opts ...xmlmodel.Option) ([]T, error) {
	keys, err := List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	loaded := make([][]T, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}
	for i, key := range keys {
		g.Go(func() error {
			records, err := Load[T](ctx, bucket, key, opts...)
			if err != nil {
				return fmt.Errorf("loading file %q: %w", key, err)
			}
			loaded[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []T
	for _, r := range loaded {
		records = append(records, r...)
	}
	slog.FromCtx(ctx).Debug("xml files loaded", "prefix", prefix, "files", len(keys), "records", len(records))
	return records, nil
}

// Delete removes the XML file with the given key.
// If the file doesn't exist an error matching [ErrNotFound] is returned.
func Delete(ctx context.Context, bucket *blob.Bucket, key string) error {
	if err := bucket.Delete(ctx, key); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return fmt.Errorf("deleting file %q: %w", key, err)
	}
	return nil
}

// List returns the keys of all XML files with the given prefix, sorted.
func List(ctx context.Context, bucket *blob.Bucket, prefix string) ([]string, error) {
	var keys []string
	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("listing files with prefix %q: %w", prefix, err)
		}
		if !obj.IsDir && strings.HasSuffix(obj.Key, Ext) {
			keys = append(keys, obj.Key)
		}
	}
}

const contentType = "application/xml"
