package uploads

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"spinevision-backend/internal/engine"
	"spinevision-backend/internal/heatmap"
	"spinevision-backend/internal/report"
	"spinevision-backend/internal/shared/auth"
	"spinevision-backend/internal/shared/server/middleware"
	"spinevision-backend/internal/shared/storage/artifact/local"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := &Service{
		Repo:           NewMemoryRepo(),
		Store:          local.New(t.TempDir()),
		Engine:         engine.NewStub("v0.1-stub"),
		Heatmaps:       heatmap.New(),
		Reports:        report.NewRenderer(),
		MaxUploadBytes: 50 << 20,
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	api := router.Group("/api/v1")
	api.Use(middleware.Auth())
	NewHandler(svc).RegisterRoutes(api)
	return router
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.SignJWT(auth.Claims{Sub: userID, Name: "Dr. Test", Role: auth.RoleDoctor})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func multipartUpload(t *testing.T, fileName string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.WriteField("doctorName", "Dr. Test"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func doUpload(t *testing.T, router *gin.Engine, token, fileName string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, fileName, data)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

type uploadViewResponse struct {
	UploadID string `json:"uploadId"`
	FileName string `json:"fileName"`
	Status   string `json:"status"`
	Result   *struct {
		ID              string           `json:"id"`
		Classification  string           `json:"classification"`
		ConfidenceScore float64          `json:"confidenceScore"`
		Findings        []engine.Finding `json:"findings"`
		ModelVersion    string           `json:"modelVersion"`
		HeatmapURL      string           `json:"heatmapUrl"`
		ReportURL       string           `json:"reportUrl"`
	} `json:"result"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestUploadEndToEnd(t *testing.T) {
	router := setupRouter(t)
	token := signToken(t, "doctor-1")

	resp := doUpload(t, router, token, "spine.png", testImage(t))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created uploadViewResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Status != StatusDone {
		t.Fatalf("status = %q, want done", created.Status)
	}
	if created.Result == nil {
		t.Fatalf("expected result in response")
	}
	if created.Result.Classification == "" || created.Result.ModelVersion != "v0.1-stub" {
		t.Fatalf("unexpected result %+v", created.Result)
	}
	if !strings.HasPrefix(created.Result.HeatmapURL, "/storage/") {
		t.Fatalf("heatmapUrl = %q, want /storage/ prefix", created.Result.HeatmapURL)
	}
	if len(created.Result.Findings) < 3 || len(created.Result.Findings) > 5 {
		t.Fatalf("expected 3-5 findings, got %d", len(created.Result.Findings))
	}

	// fetch the combined view back
	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+created.UploadID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	getResp := httptest.NewRecorder()
	router.ServeHTTP(getResp, req)
	if getResp.Code != http.StatusOK {
		t.Fatalf("get upload: expected 200, got %d", getResp.Code)
	}

	// artifact endpoints
	req = httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+created.UploadID+"/report", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	reportResp := httptest.NewRecorder()
	router.ServeHTTP(reportResp, req)
	if reportResp.Code != http.StatusOK {
		t.Fatalf("get report: expected 200, got %d", reportResp.Code)
	}
	if !bytes.HasPrefix(reportResp.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("report body is not a PDF")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+created.UploadID+"/heatmap", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	heatmapResp := httptest.NewRecorder()
	router.ServeHTTP(heatmapResp, req)
	if heatmapResp.Code != http.StatusOK {
		t.Fatalf("get heatmap: expected 200, got %d", heatmapResp.Code)
	}

	// delete removes everything; the second delete is a 404
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/"+created.UploadID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	delResp := httptest.NewRecorder()
	router.ServeHTTP(delResp, req)
	if delResp.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", delResp.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/"+created.UploadID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	delAgain := httptest.NewRecorder()
	router.ServeHTTP(delAgain, req)
	if delAgain.Code != http.StatusNotFound {
		t.Fatalf("repeat delete: expected 404, got %d", delAgain.Code)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	router := setupRouter(t)
	token := signToken(t, "doctor-1")

	resp := doUpload(t, router, token, "notes.txt", []byte("plain text"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if envelope.Error.Code != ErrorCodeValidation {
		t.Fatalf("error code = %q, want %q", envelope.Error.Code, ErrorCodeValidation)
	}
}

func TestUploadCorruptImageReturnsAnalysisError(t *testing.T) {
	router := setupRouter(t)
	token := signToken(t, "doctor-1")

	resp := doUpload(t, router, token, "broken.png", []byte("not a png at all"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if envelope.Error.Code != ErrorCodeAnalysis {
		t.Fatalf("error code = %q, want %q", envelope.Error.Code, ErrorCodeAnalysis)
	}
}

func TestUploadRequiresAuth(t *testing.T) {
	router := setupRouter(t)

	body, contentType := multipartUpload(t, "spine.png", testImage(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestGetUnknownUploadReturns404(t *testing.T) {
	router := setupRouter(t)
	token := signToken(t, "doctor-1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/no-such-id", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestUploadsAreOwnerScoped(t *testing.T) {
	router := setupRouter(t)
	owner := signToken(t, "doctor-1")
	other := signToken(t, "doctor-2")

	resp := doUpload(t, router, owner, "spine.png", testImage(t))
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d", resp.Code)
	}
	var created uploadViewResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+created.UploadID, nil)
	req.Header.Set("Authorization", "Bearer "+other)
	foreign := httptest.NewRecorder()
	router.ServeHTTP(foreign, req)
	if foreign.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign upload, got %d", foreign.Code)
	}
}

func TestHistoryAndStatistics(t *testing.T) {
	router := setupRouter(t)
	token := signToken(t, "doctor-1")

	resp := doUpload(t, router, token, "spine.png", testImage(t))
	if resp.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history?page=1&pageSize=10", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	histResp := httptest.NewRecorder()
	router.ServeHTTP(histResp, req)
	if histResp.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", histResp.Code)
	}
	var page struct {
		Items []struct {
			UploadID       string `json:"uploadId"`
			Status         string `json:"status"`
			Classification string `json:"classification"`
		} `json:"items"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(histResp.Body).Decode(&page); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("unexpected history page %+v", page)
	}
	if page.Items[0].Status != StatusDone || page.Items[0].Classification == "" {
		t.Fatalf("unexpected history item %+v", page.Items[0])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/history/statistics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	statsResp := httptest.NewRecorder()
	router.ServeHTTP(statsResp, req)
	if statsResp.Code != http.StatusOK {
		t.Fatalf("statistics: expected 200, got %d", statsResp.Code)
	}
	var stats Stats
	if err := json.NewDecoder(statsResp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode statistics: %v", err)
	}
	if stats.Total != 1 || stats.Done != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
