package uploads

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo stores uploads in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]Upload
	results map[string]Result
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:    make(map[string]Upload),
		results: make(map[string]Result),
	}
}

// Create stores the upload.
func (r *MemoryRepo) Create(ctx context.Context, upload Upload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[upload.ID] = upload
	return nil
}

// GetByID returns an upload owned by the given user.
func (r *MemoryRepo) GetByID(ctx context.Context, userID, uploadID string) (Upload, error) {
	if err := ctx.Err(); err != nil {
		return Upload{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	upload, ok := r.byID[uploadID]
	if !ok || upload.UserID != userID {
		return Upload{}, ErrNotFound
	}
	return upload, nil
}

// UpdateStatus updates the status of an existing upload.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, uploadID, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.byID[uploadID]
	if !ok {
		return ErrNotFound
	}
	upload.Status = status
	r.byID[uploadID] = upload
	return nil
}

// CompleteWithResult stores the result and marks the upload done atomically.
func (r *MemoryRepo) CompleteWithResult(ctx context.Context, uploadID string, result Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.byID[uploadID]
	if !ok {
		return ErrNotFound
	}
	upload.Status = StatusDone
	r.byID[uploadID] = upload
	r.results[uploadID] = result
	return nil
}

// GetResult returns the result for a completed upload.
func (r *MemoryRepo) GetResult(ctx context.Context, uploadID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[uploadID]
	if !ok {
		return Result{}, ErrNotFound
	}
	return result, nil
}

// Delete removes the upload and its result rows.
func (r *MemoryRepo) Delete(ctx context.Context, userID, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	upload, ok := r.byID[uploadID]
	if !ok || upload.UserID != userID {
		return ErrNotFound
	}
	delete(r.byID, uploadID)
	delete(r.results, uploadID)
	return nil
}

// ListByUser returns uploads for a user newest-first with the total
// count matching the filter.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]Upload, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Upload
	for _, upload := range r.byID {
		if upload.UserID != userID {
			continue
		}
		if status != "" && upload.Status != status {
			continue
		}
		matched = append(matched, upload)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Upload{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// StatsByUser aggregates counts across a user's uploads.
func (r *MemoryRepo) StatsByUser(ctx context.Context, userID string) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statsLocked(userID), nil
}

// StatsGlobal aggregates counts across all uploads.
func (r *MemoryRepo) StatsGlobal(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statsLocked(""), nil
}

func (r *MemoryRepo) statsLocked(userID string) Stats {
	var stats Stats
	for id, upload := range r.byID {
		if userID != "" && upload.UserID != userID {
			continue
		}
		stats.Total++
		switch upload.Status {
		case StatusDone:
			stats.Done++
			if result, ok := r.results[id]; ok {
				if strings.HasPrefix(result.Classification, "Normal") {
					stats.Normal++
				} else {
					stats.Abnormal++
				}
			}
		case StatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	return stats
}

var _ Repo = (*MemoryRepo)(nil)
