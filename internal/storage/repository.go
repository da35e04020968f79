package storage

import (
	"context"
	"errors"

	"coursecast/internal/media"
)

// ErrVideoNotFound is returned when a catalog mutation targets a video id
// that has no row.
var ErrVideoNotFound = errors.New("video not found")

// Repository exposes the datastore operations required by the API handlers
// and the ingestion pipeline: access-token validation, admin role lookup,
// and catalog path maintenance.
type Repository interface {
	Ping(ctx context.Context) error

	// ValidateAccessToken invokes the database-side validation routine for a
	// viewer token. The routine owns all token semantics (expiry, IP binding,
	// revocation); this method only transports the answer.
	ValidateAccessToken(ctx context.Context, token, clientIP string) (bool, error)

	// UserHasRole reports whether the user carries the named role grant.
	UserHasRole(ctx context.Context, userID, role string) (bool, error)

	UpdateVideoIngest(ctx context.Context, videoID string, update media.IngestUpdate) error
	ClearVideoPaths(ctx context.Context, videoID string) error

	Close(ctx context.Context) error
}
