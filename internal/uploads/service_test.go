package uploads

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spinevision-backend/internal/engine"
	"spinevision-backend/internal/report"
	"spinevision-backend/internal/shared/storage/artifact"
	"spinevision-backend/internal/shared/storage/artifact/local"
)

type engineStub struct {
	result engine.Result
	err    error
}

func (e *engineStub) Analyze(ctx context.Context, imageBytes []byte) (engine.Result, error) {
	if e.err != nil {
		return engine.Result{}, e.err
	}
	return e.result, nil
}

type heatmapStub struct {
	data []byte
}

func (h *heatmapStub) Render(imageBytes []byte) []byte {
	return h.data
}

type reportStub struct {
	err error
}

func (r *reportStub) Render(result engine.Result, heatmapPNG []byte, meta report.Metadata) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.4 test"), nil
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 8)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func testEngineResult() engine.Result {
	return engine.Result{
		Overall:         "Abnormal - High Confidence",
		ConfidenceScore: 0.82,
		Findings: []engine.Finding{
			{Label: "Disc Space Narrowing", Description: "narrowing", Probability: 0.82},
			{Label: "Osteophytes", Description: "spurs", Probability: 0.41},
		},
		ModelVersion: "v0.1-stub",
		ProcessedAt:  time.Now().UTC(),
	}
}

func newTestService(t *testing.T) (*Service, *MemoryRepo, string) {
	t.Helper()
	dir := t.TempDir()
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:           repo,
		Store:          local.New(dir),
		Engine:         &engineStub{result: testEngineResult()},
		Heatmaps:       &heatmapStub{data: []byte("fake-png")},
		Reports:        &reportStub{},
		MaxUploadBytes: 50 << 20,
	}
	return svc, repo, dir
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return count
}

func TestSubmitHappyPath(t *testing.T) {
	svc, repo, dir := newTestService(t)
	ctx := context.Background()

	upload, result, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		DoctorName:  "Dr. Roe",
		FileName:    "spine.png",
		ContentType: "image/png",
		Data:        testImage(t),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if upload.Status != StatusDone {
		t.Fatalf("expected status done, got %q", upload.Status)
	}
	if result.Classification != "Abnormal - High Confidence" {
		t.Fatalf("unexpected classification %q", result.Classification)
	}
	if result.HeatmapKey == "" || result.ReportKey == "" {
		t.Fatalf("expected heatmap and report keys, got %q %q", result.HeatmapKey, result.ReportKey)
	}
	for i := 1; i < len(result.Findings); i++ {
		if result.Findings[i].Probability > result.Findings[i-1].Probability {
			t.Fatalf("findings not ordered by probability desc")
		}
	}

	stored, err := repo.GetByID(ctx, "user-1", upload.ID)
	if err != nil {
		t.Fatalf("get upload: %v", err)
	}
	if stored.Status != StatusDone {
		t.Fatalf("stored status = %q, want done", stored.Status)
	}
	if _, err := repo.GetResult(ctx, upload.ID); err != nil {
		t.Fatalf("get result: %v", err)
	}

	// original + heatmap + report
	if got := countFiles(t, dir); got != 3 {
		t.Fatalf("expected 3 stored artifacts, got %d", got)
	}
}

func TestSubmitRejectsInvalidFileBeforePersisting(t *testing.T) {
	svc, repo, dir := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		FileName:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("hello"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if got := countFiles(t, dir); got != 0 {
		t.Fatalf("expected no stored files, got %d", got)
	}
	if _, total, err := repo.ListByUser(ctx, "user-1", "", 10, 0); err != nil || total != 0 {
		t.Fatalf("expected no rows, total=%d err=%v", total, err)
	}
}

func TestSubmitAnalysisFailureMarksFailed(t *testing.T) {
	svc, repo, _ := newTestService(t)
	svc.Engine = &engineStub{err: engine.ErrUnreadableImage}
	ctx := context.Background()

	upload, _, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		FileName:    "spine.png",
		ContentType: "image/png",
		Data:        testImage(t),
	})
	if !errors.Is(err, ErrAnalysis) {
		t.Fatalf("expected ErrAnalysis, got %v", err)
	}
	stored, err := repo.GetByID(ctx, "user-1", upload.ID)
	if err != nil {
		t.Fatalf("get upload: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", stored.Status)
	}
	if _, err := repo.GetResult(ctx, upload.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no result row, got %v", err)
	}
}

func TestSubmitHeatmapFailureIsSoft(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.Heatmaps = &heatmapStub{data: nil}
	ctx := context.Background()

	upload, result, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		FileName:    "spine.png",
		ContentType: "image/png",
		Data:        testImage(t),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if upload.Status != StatusDone {
		t.Fatalf("status = %q, want done", upload.Status)
	}
	if result.HeatmapKey != "" {
		t.Fatalf("expected empty heatmap key, got %q", result.HeatmapKey)
	}
	if result.ReportKey == "" {
		t.Fatalf("expected report key")
	}
}

func TestSubmitReportFailureIsFatal(t *testing.T) {
	svc, repo, dir := newTestService(t)
	svc.Reports = &reportStub{err: errors.New("layout broke")}
	ctx := context.Background()

	upload, _, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		FileName:    "spine.png",
		ContentType: "image/png",
		Data:        testImage(t),
	})
	if !errors.Is(err, ErrRender) {
		t.Fatalf("expected ErrRender, got %v", err)
	}
	stored, err := repo.GetByID(ctx, "user-1", upload.ID)
	if err != nil {
		t.Fatalf("get upload: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", stored.Status)
	}
	if _, err := repo.GetResult(ctx, upload.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no result row, got %v", err)
	}
	// the already-saved heatmap artifact must be cleaned up; only the
	// original remains
	if entries, err := os.ReadDir(filepath.Join(dir, string(artifact.KindHeatmap))); err == nil && len(entries) > 0 {
		t.Fatalf("expected heatmap artifacts removed, found %d", len(entries))
	}
	if got := countFiles(t, dir); got != 1 {
		t.Fatalf("expected only the original artifact, got %d files", got)
	}
}

func TestDeleteCascadesAndIsTerminal(t *testing.T) {
	svc, _, dir := newTestService(t)
	ctx := context.Background()

	upload, _, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		FileName:    "spine.png",
		ContentType: "image/png",
		Data:        testImage(t),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := svc.Delete(ctx, "user-1", upload.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := countFiles(t, dir); got != 0 {
		t.Fatalf("expected all artifacts removed, got %d files", got)
	}
	if _, _, err := svc.Get(ctx, "user-1", upload.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, "user-1", upload.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

func TestDeleteOtherUsersUploadNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	upload, _, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		FileName:    "spine.png",
		ContentType: "image/png",
		Data:        testImage(t),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.Delete(ctx, "user-2", upload.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign upload, got %v", err)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Submit(ctx, SubmitInput{
			UserID:      "user-1",
			FileName:    "spine.png",
			ContentType: "image/png",
			Data:        testImage(t),
		}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	items, total, err := svc.List(ctx, "user-1", StatusDone, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(items) != 2 {
		t.Fatalf("page size = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.Result == nil {
			t.Fatalf("expected result attached to done upload")
		}
	}

	if _, _, err := svc.List(ctx, "user-1", "bogus", 10, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}
}

func TestStatisticsCounts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		FileName:    "spine.png",
		ContentType: "image/png",
		Data:        testImage(t),
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	svc.Engine = &engineStub{err: engine.ErrUnreadableImage}
	if _, _, err := svc.Submit(ctx, SubmitInput{
		UserID:      "user-1",
		FileName:    "spine.png",
		ContentType: "image/png",
		Data:        testImage(t),
	}); !errors.Is(err, ErrAnalysis) {
		t.Fatalf("expected ErrAnalysis, got %v", err)
	}

	stats, err := svc.Statistics(ctx, "user-1")
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Total != 2 || stats.Done != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Abnormal != 1 || stats.Normal != 0 {
		t.Fatalf("unexpected classification split %+v", stats)
	}
}
