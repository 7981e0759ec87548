package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"spinevision-backend/internal/engine"
	"spinevision-backend/internal/report"
	"spinevision-backend/internal/shared/metrics"
	"spinevision-backend/internal/shared/storage/artifact"
	"spinevision-backend/internal/shared/telemetry"
	"spinevision-backend/internal/shared/util"
)

// HeatmapRenderer produces a PNG overlay for an input image. A nil
// return means no heatmap; it never fails the pipeline.
type HeatmapRenderer interface {
	Render(imageBytes []byte) []byte
}

// ReportRenderer assembles the PDF report for a completed analysis.
type ReportRenderer interface {
	Render(result engine.Result, heatmapPNG []byte, meta report.Metadata) ([]byte, error)
}

// Service runs the upload pipeline: validate, persist the original,
// analyze, render the heatmap and report, and record the result.
type Service struct {
	Repo           Repo
	Store          artifact.Store
	Engine         engine.Engine
	Heatmaps       HeatmapRenderer
	Reports        ReportRenderer
	MaxUploadBytes int64
}

// SubmitInput carries one upload request through the pipeline.
type SubmitInput struct {
	UserID      string
	DoctorName  string
	FileName    string
	ContentType string
	Data        []byte
}

// HistoryItem pairs an upload with its result when one exists.
type HistoryItem struct {
	Upload Upload
	Result *Result
}

// Submit runs the full pipeline synchronously and returns the completed
// upload with its result. On analysis, render, or storage failure the
// upload row is left in status failed and intermediate artifacts are
// removed; validation failures leave no trace at all.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Upload, Result, error) {
	if in.UserID == "" {
		return Upload{}, Result{}, fmt.Errorf("%w: user is required", ErrValidation)
	}
	if err := ValidateFile(in.FileName, in.ContentType, int64(len(in.Data)), s.MaxUploadBytes); err != nil {
		return Upload{}, Result{}, err
	}

	storageKey, err := s.Store.Save(ctx, artifact.KindUpload, in.UserID, in.FileName, in.Data)
	if err != nil {
		return Upload{}, Result{}, fmt.Errorf("%w: save original: %v", ErrStorage, err)
	}

	upload := Upload{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		FileName:   in.FileName,
		StorageKey: storageKey,
		FileType:   util.FileExtension(in.FileName),
		SizeBytes:  int64(len(in.Data)),
		Status:     StatusUploaded,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, upload); err != nil {
		s.deleteArtifacts(ctx, storageKey)
		return Upload{}, Result{}, fmt.Errorf("%w: create upload: %v", ErrStorage, err)
	}

	metrics.IncPipelineStarted()
	startedAt := time.Now().UTC()

	if err := s.Repo.UpdateStatus(ctx, upload.ID, StatusProcessing); err != nil {
		return upload, Result{}, s.fail(ctx, upload, startedAt, fmt.Errorf("%w: set processing: %v", ErrStorage, err))
	}
	upload.Status = StatusProcessing
	s.logStatus(ctx, upload, "uploaded->processing", startedAt, nil)

	engineResult, err := s.Engine.Analyze(ctx, in.Data)
	if err != nil {
		return upload, Result{}, s.fail(ctx, upload, startedAt, fmt.Errorf("%w: %v", ErrAnalysis, err))
	}

	heatmapPNG, heatmapKey := s.renderHeatmap(ctx, upload, in.Data)

	resultID := uuid.NewString()
	reportBytes, err := s.Reports.Render(engineResult, heatmapPNG, report.Metadata{
		DoctorName: in.DoctorName,
		ResultID:   resultID,
	})
	if err != nil {
		s.deleteArtifacts(ctx, heatmapKey)
		return upload, Result{}, s.fail(ctx, upload, startedAt, fmt.Errorf("%w: %v", ErrRender, err))
	}

	reportKey, err := s.Store.Save(ctx, artifact.KindReport, "", upload.ID+"_report.pdf", reportBytes)
	if err != nil {
		s.deleteArtifacts(ctx, heatmapKey)
		return upload, Result{}, s.fail(ctx, upload, startedAt, fmt.Errorf("%w: save report: %v", ErrStorage, err))
	}

	result := Result{
		ID:              resultID,
		UploadID:        upload.ID,
		ModelVersion:    engineResult.ModelVersion,
		Classification:  engineResult.Overall,
		ConfidenceScore: engineResult.ConfidenceScore,
		Findings:        engineResult.Findings,
		HeatmapKey:      heatmapKey,
		ReportKey:       reportKey,
		ProcessedAt:     engineResult.ProcessedAt,
	}
	if err := s.Repo.CompleteWithResult(ctx, upload.ID, result); err != nil {
		s.deleteArtifacts(ctx, heatmapKey, reportKey)
		return upload, Result{}, s.fail(ctx, upload, startedAt, fmt.Errorf("%w: complete upload: %v", ErrStorage, err))
	}
	upload.Status = StatusDone

	metrics.IncPipelineCompleted()
	completedAt := time.Now().UTC()
	metrics.ObservePipelineDurationMs(durationMs(startedAt, completedAt))
	s.logStatus(ctx, upload, "processing->done", startedAt, nil)

	return upload, result, nil
}

// Get returns an upload with its result when processing has completed.
func (s *Service) Get(ctx context.Context, userID, uploadID string) (Upload, *Result, error) {
	if uploadID == "" {
		return Upload{}, nil, fmt.Errorf("%w: upload id is required", ErrValidation)
	}
	upload, err := s.Repo.GetByID(ctx, userID, uploadID)
	if err != nil {
		return Upload{}, nil, err
	}
	if upload.Status != StatusDone {
		return upload, nil, nil
	}
	result, err := s.Repo.GetResult(ctx, uploadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return upload, nil, nil
		}
		return Upload{}, nil, err
	}
	return upload, &result, nil
}

// OpenHeatmap streams the heatmap PNG for an upload.
func (s *Service) OpenHeatmap(ctx context.Context, userID, uploadID string) (io.ReadCloser, error) {
	result, err := s.resultForOwner(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	return s.openArtifact(ctx, result.HeatmapKey)
}

// OpenReport streams the PDF report for an upload.
func (s *Service) OpenReport(ctx context.Context, userID, uploadID string) (io.ReadCloser, error) {
	result, err := s.resultForOwner(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	return s.openArtifact(ctx, result.ReportKey)
}

// Delete removes the upload, its result, and every stored artifact.
// Repeated deletes of the same upload return ErrNotFound.
func (s *Service) Delete(ctx context.Context, userID, uploadID string) error {
	upload, err := s.Repo.GetByID(ctx, userID, uploadID)
	if err != nil {
		return err
	}
	keys := []string{upload.StorageKey}
	if result, err := s.Repo.GetResult(ctx, uploadID); err == nil {
		keys = append(keys, result.HeatmapKey, result.ReportKey)
	}
	if err := s.Repo.Delete(ctx, userID, uploadID); err != nil {
		return err
	}
	s.deleteArtifacts(ctx, keys...)
	telemetry.Info("upload.deleted", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"user_id":    userID,
		"upload_id":  uploadID,
	})
	return nil
}

// List returns a page of the user's uploads, newest first, with results
// attached for completed ones.
func (s *Service) List(ctx context.Context, userID, status string, limit, offset int) ([]HistoryItem, int, error) {
	if userID == "" {
		return nil, 0, fmt.Errorf("%w: user is required", ErrValidation)
	}
	if status != "" && !validStatus(status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	list, total, err := s.Repo.ListByUser(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]HistoryItem, 0, len(list))
	for _, upload := range list {
		item := HistoryItem{Upload: upload}
		if upload.Status == StatusDone {
			if result, err := s.Repo.GetResult(ctx, upload.ID); err == nil {
				item.Result = &result
			}
		}
		items = append(items, item)
	}
	return items, total, nil
}

// Statistics aggregates the user's upload counts.
func (s *Service) Statistics(ctx context.Context, userID string) (Stats, error) {
	if userID == "" {
		return Stats{}, fmt.Errorf("%w: user is required", ErrValidation)
	}
	return s.Repo.StatsByUser(ctx, userID)
}

func validStatus(status string) bool {
	switch status {
	case StatusUploaded, StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

func (s *Service) resultForOwner(ctx context.Context, userID, uploadID string) (Result, error) {
	if _, err := s.Repo.GetByID(ctx, userID, uploadID); err != nil {
		return Result{}, err
	}
	return s.Repo.GetResult(ctx, uploadID)
}

func (s *Service) openArtifact(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	body, err := s.Store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: open artifact: %v", ErrStorage, err)
	}
	return body, nil
}

func (s *Service) renderHeatmap(ctx context.Context, upload Upload, imageBytes []byte) ([]byte, string) {
	if s.Heatmaps == nil {
		return nil, ""
	}
	heatmapPNG := s.Heatmaps.Render(imageBytes)
	if heatmapPNG == nil {
		metrics.IncHeatmapSkipped()
		return nil, ""
	}
	key, err := s.Store.Save(ctx, artifact.KindHeatmap, "", upload.ID+"_heatmap.png", heatmapPNG)
	if err != nil {
		metrics.IncHeatmapSkipped()
		telemetry.Warn("heatmap.save.skipped", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"upload_id":  upload.ID,
			"error":      sanitizeError(err),
		})
		return heatmapPNG, ""
	}
	return heatmapPNG, key
}

func (s *Service) fail(ctx context.Context, upload Upload, startedAt time.Time, cause error) error {
	if err := s.Repo.UpdateStatus(ctx, upload.ID, StatusFailed); err != nil {
		telemetry.Error("upload.fail.update", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"upload_id":  upload.ID,
			"error":      sanitizeError(err),
		})
	}
	metrics.IncPipelineFailed()
	metrics.ObservePipelineDurationMs(durationMs(startedAt, time.Now().UTC()))
	s.logStatus(ctx, upload, "processing->failed", startedAt, cause)
	return cause
}

func (s *Service) logStatus(ctx context.Context, upload Upload, transition string, startedAt time.Time, cause error) {
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           upload.UserID,
		"upload_id":         upload.ID,
		"status":            statusAfter(transition),
		"status_transition": transition,
		"duration_ms":       durationMs(startedAt, time.Now().UTC()),
	}
	if cause != nil {
		fields["error"] = sanitizeError(cause)
	}
	telemetry.Info("upload.status", fields)
}

func statusAfter(transition string) string {
	if i := strings.LastIndex(transition, ">"); i >= 0 {
		return transition[i+1:]
	}
	return transition
}

func (s *Service) deleteArtifacts(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := s.Store.Delete(ctx, key); err != nil {
			telemetry.Warn("artifact.delete.failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"key":        key,
				"error":      sanitizeError(err),
			})
		}
	}
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
