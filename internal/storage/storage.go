package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Open when there is no blob for the given owner
// and name. Delete never returns it: a missing blob is already the state a
// delete is asking for.
var ErrNotFound = errors.New("blob not found")

// BlobStorage stores file content keyed by owner id and filename. The expiry
// sweep and the upload/download handlers depend only on this interface; which
// variant is behind it is decided once at startup.
type BlobStorage interface {
	// Save writes the blob and returns a backend-specific locator
	// (filesystem path or object key) for the metadata row.
	Save(ctx context.Context, ownerID int64, name string, data io.Reader, size int64) (string, error)
	Open(ctx context.Context, ownerID int64, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, ownerID int64, name string) error
	Exists(ctx context.Context, ownerID int64, name string) (bool, error)
}

// UniqueName resolves a collision with an already stored blob by appending
// _1, _2, ... before the extension. Two identical concurrent uploads from the
// same user can still race past each other; a single writer per name is
// assumed.
func UniqueName(ctx context.Context, s BlobStorage, ownerID int64, desired string) (string, error) {
	exists, err := s.Exists(ctx, ownerID, desired)
	if err != nil {
		return "", err
	}
	if !exists {
		return desired, nil
	}

	ext := filepath.Ext(desired)
	base := strings.TrimSuffix(desired, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", base, counter, ext)
		exists, err := s.Exists(ctx, ownerID, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

// sanitizeName keeps locators flat: path separators and parent references in
// an uploaded filename must not escape the per-owner namespace.
func sanitizeName(name string) string {
	name = filepath.Base(filepath.Clean(name))
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	if name == "." || name == ".." || name == "" {
		return "_"
	}
	return name
}

func ownerSegment(ownerID int64) string {
	return fmt.Sprintf("user_%d", ownerID)
}
