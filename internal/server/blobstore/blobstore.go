// Package blobstore stores profile pictures outside the database. Blobs are
// addressed by a ref of the form "profile_pictures/<uuid>.<ext>".
package blobstore

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/google/uuid"
)

var ErrInvalidRef = errors.New("invalid blob ref")

// Storage is implemented by every blob backend. Deleting a missing blob is
// not an error.
type Storage interface {
	Store(ctx context.Context, data []byte, ext string) (string, error)
	Delete(ctx context.Context, ref string) error
	Exists(ctx context.Context, ref string) (bool, error)
	URL(ref string) string
}

// NewRef generates a fresh ref for a file with the given extension.
func NewRef(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	return path.Join(common.AvatarPrefix, name)
}

// ValidRef rejects refs that would escape the avatar prefix.
func ValidRef(ref string) error {
	if ref == "" || path.Clean(ref) != ref || strings.Contains(ref, "..") || strings.Contains(ref, `\`) {
		return ErrInvalidRef
	}
	if !strings.HasPrefix(ref, common.AvatarPrefix+"/") {
		return ErrInvalidRef
	}
	return nil
}

func joinURL(base, ref string) string {
	return strings.TrimRight(base, "/") + "/" + ref
}
