package uploads

import "context"

// Repo defines persistence operations for uploads and their results.
type Repo interface {
	Create(ctx context.Context, upload Upload) error
	GetByID(ctx context.Context, userID, uploadID string) (Upload, error)
	UpdateStatus(ctx context.Context, uploadID, status string) error
	// CompleteWithResult stores the result row and flips the upload to
	// done in a single step. Callers never observe a done upload
	// without its result.
	CompleteWithResult(ctx context.Context, uploadID string, result Result) error
	GetResult(ctx context.Context, uploadID string) (Result, error)
	Delete(ctx context.Context, userID, uploadID string) error
	ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]Upload, int, error)
	StatsByUser(ctx context.Context, userID string) (Stats, error)
	StatsGlobal(ctx context.Context) (Stats, error)
}
