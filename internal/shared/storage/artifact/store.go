package artifact

import (
	"context"
	"errors"
	"io"
)

// Kind partitions stored artifacts by what produced them.
type Kind string

const (
	KindUpload  Kind = "uploads"
	KindHeatmap Kind = "heatmaps"
	KindReport  Kind = "reports"
)

// PublicMount is the URL prefix under which artifact keys are served.
const PublicMount = "/storage"

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store defines the contract for saving and retrieving binary artifacts.
// Keys returned by Save are opaque to callers and stable across restarts.
type Store interface {
	Save(ctx context.Context, kind Kind, scope, fileName string, data []byte) (key string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the artifact. It is idempotent: deleting an absent
	// key returns (false, nil), never an error.
	Delete(ctx context.Context, key string) (bool, error)
	// PublicURL maps a storage key to its externally served path.
	PublicURL(key string) string
}
