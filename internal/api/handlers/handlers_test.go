package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/apk-analysis/apk-intake-go/internal/domain"
	"github.com/apk-analysis/apk-intake-go/internal/installed"
	"github.com/apk-analysis/apk-intake-go/internal/repository"
	"github.com/apk-analysis/apk-intake-go/internal/service"
)

// MockAnalysisService Mock Service
type MockAnalysisService struct {
	mock.Mock
}

func (m *MockAnalysisService) Analyse(ctx context.Context, req service.AnalyseRequest) (*service.AnalysisOutcome, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnalysisOutcome), args.Error(1)
}

func (m *MockAnalysisService) Get(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisRecord), args.Error(1)
}

func (m *MockAnalysisService) List(ctx context.Context, page, pageSize int, status string) ([]*domain.AnalysisRecord, int64, error) {
	args := m.Called(page, pageSize, status)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.AnalysisRecord), args.Get(1).(int64), args.Error(2)
}

func (m *MockAnalysisService) Delete(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockAnalysisService) StatusCounts(ctx context.Context) (map[string]int64, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// MockInstalledStore Mock 快照存储
type MockInstalledStore struct {
	mock.Mock
}

func (m *MockInstalledStore) List(ctx context.Context) ([]*domain.InstalledPackage, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InstalledPackage), args.Error(1)
}

func (m *MockInstalledStore) Replace(ctx context.Context, packages []*domain.InstalledPackage) error {
	args := m.Called(packages)
	return args.Error(0)
}

type mapProvider map[string]*domain.InstalledAppInfo

var _ installed.Provider = mapProvider{}

func (p mapProvider) Lookup(_ context.Context, packageName string) (*domain.InstalledAppInfo, error) {
	if packageName == "com.broken" {
		return nil, errors.New("device offline")
	}
	return p[packageName], nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	logger.SetOutput(os.Stderr)
	return logger
}

// setupTestRouter 设置测试路由
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func sampleRecord() *domain.AnalysisRecord {
	return &domain.AnalysisRecord{
		ID:           "a-1",
		SessionID:    "s-1",
		Status:       domain.AnalysisStatusCompleted,
		PackageCount: 1,
		ResultJSON:   `[{"package_name":"com.example.app"}]`,
		CreatedAt:    time.Now(),
	}
}

func TestAnalysisHandler_CreateJSON(t *testing.T) {
	svc := new(MockAnalysisService)
	handler := NewAnalysisHandler(svc, quietLogger(), t.TempDir())
	router := setupTestRouter()
	router.POST("/api/analyses", handler.CreateAnalysis)

	svc.On("Analyse", mock.MatchedBy(func(req service.AnalyseRequest) bool {
		return len(req.Paths) == 2 && req.SplitChooseAll != nil && *req.SplitChooseAll && req.SessionID == "s-1"
	})).Return(&service.AnalysisOutcome{Record: sampleRecord()}, nil)

	body := `{"paths":["/data/a.apk","/data/b.xapk"],"split_choose_all":true,"session_id":"s-1"}`
	req := httptest.NewRequest("POST", "/api/analyses", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Record  map[string]any   `json:"record"`
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a-1", resp.Record["id"])
	assert.NotContains(t, resp.Record, "result_json")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "com.example.app", resp.Results[0]["package_name"])
	svc.AssertExpectations(t)
}

func TestAnalysisHandler_CreateNoSources(t *testing.T) {
	svc := new(MockAnalysisService)
	handler := NewAnalysisHandler(svc, quietLogger(), t.TempDir())
	router := setupTestRouter()
	router.POST("/api/analyses", handler.CreateAnalysis)

	svc.On("Analyse", mock.Anything).Return(nil, service.ErrNoSources)

	req := httptest.NewRequest("POST", "/api/analyses", strings.NewReader(`{"paths":[]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest("POST", "/api/analyses", strings.NewReader(`not json`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalysisHandler_CreateUpload(t *testing.T) {
	svc := new(MockAnalysisService)
	uploadDir := t.TempDir()
	handler := NewAnalysisHandler(svc, quietLogger(), uploadDir)
	router := setupTestRouter()
	router.POST("/api/analyses", handler.CreateAnalysis)

	var saved []string
	svc.On("Analyse", mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(0).(service.AnalyseRequest).Paths
	}).Return(&service.AnalysisOutcome{Record: sampleRecord()}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"app.apk", "bundle.xapk"} {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		fmt.Fprintf(fw, "content of %s", name)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/analyses", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, saved, 2)
	for _, p := range saved {
		assert.True(t, strings.HasPrefix(p, uploadDir))
		assert.FileExists(t, p)
	}
	data, err := os.ReadFile(saved[1])
	require.NoError(t, err)
	assert.Equal(t, "content of bundle.xapk", string(data))
	assert.Equal(t, "bundle.xapk", filepath.Base(saved[1]))
}

func TestAnalysisHandler_List(t *testing.T) {
	svc := new(MockAnalysisService)
	handler := NewAnalysisHandler(svc, quietLogger(), t.TempDir())
	router := setupTestRouter()
	router.GET("/api/analyses", handler.ListAnalyses)

	svc.On("List", 2, 100, "completed").Return([]*domain.AnalysisRecord{sampleRecord()}, int64(21), nil)

	req := httptest.NewRequest("GET", "/api/analyses?page=2&page_size=500&status=completed", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 21, resp["total"])
	assert.EqualValues(t, 100, resp["page_size"])
	svc.AssertExpectations(t)
}

func TestAnalysisHandler_GetAndDelete(t *testing.T) {
	svc := new(MockAnalysisService)
	handler := NewAnalysisHandler(svc, quietLogger(), t.TempDir())
	router := setupTestRouter()
	router.GET("/api/analyses/:id", handler.GetAnalysis)
	router.DELETE("/api/analyses/:id", handler.DeleteAnalysis)

	notFound := fmt.Errorf("获取分析记录失败: %w", repository.ErrRecordNotFound)
	svc.On("Get", "a-1").Return(sampleRecord(), nil)
	svc.On("Get", "missing").Return(nil, notFound)
	svc.On("Delete", "a-1").Return(nil)
	svc.On("Delete", "missing").Return(notFound)
	svc.On("Delete", "broken").Return(errors.New("disk error"))

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/api/analyses/a-1", http.StatusOK},
		{"GET", "/api/analyses/missing", http.StatusNotFound},
		{"DELETE", "/api/analyses/a-1", http.StatusOK},
		{"DELETE", "/api/analyses/missing", http.StatusNotFound},
		{"DELETE", "/api/analyses/broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, w.Code, tt.method+" "+tt.path)
	}
	svc.AssertExpectations(t)
}

func TestAnalysisHandler_ExportReport(t *testing.T) {
	svc := new(MockAnalysisService)
	handler := NewAnalysisHandler(svc, quietLogger(), t.TempDir())
	router := setupTestRouter()
	router.GET("/api/analyses/:id/report", handler.ExportReport)

	svc.On("Get", "a-1").Return(sampleRecord(), nil)
	svc.On("Get", "missing").Return(nil, repository.ErrRecordNotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/analyses/a-1/report?format=jsonl", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "analysis-a-1.jsonl")
	assert.Contains(t, w.Body.String(), `"package_name":"com.example.app"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/analyses/a-1/report?format=pdf", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/analyses/a-1/report?format=csv", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/analyses/missing/report", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisHandler_GetStats(t *testing.T) {
	svc := new(MockAnalysisService)
	handler := NewAnalysisHandler(svc, quietLogger(), t.TempDir())
	router := setupTestRouter()
	router.GET("/api/stats", handler.GetStats)

	svc.On("StatusCounts").Return(map[string]int64{"completed": 3, "empty": 1}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"analyses":{"completed":3,"empty":1}}`, w.Body.String())

	t.Run("with queue", func(t *testing.T) {
		handler.SetQueue(fakeQueue{running: true, workers: 2, depth: 5})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"analyses":{"completed":3,"empty":1},"queue":{"running":true,"active_workers":2,"depth":5}}`, w.Body.String())
	})

	t.Run("queue disconnected", func(t *testing.T) {
		handler.SetQueue(fakeQueue{depthErr: errors.New("not connected")})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"analyses":{"completed":3,"empty":1},"queue":{"running":false,"active_workers":0}}`, w.Body.String())
	})
}

type fakeQueue struct {
	running  bool
	workers  int
	depth    int
	depthErr error
}

func (q fakeQueue) IsRunning() bool          { return q.running }
func (q fakeQueue) GetActiveWorkers() int    { return q.workers }
func (q fakeQueue) QueueDepth() (int, error) { return q.depth, q.depthErr }

func TestInstalledHandler(t *testing.T) {
	store := new(MockInstalledStore)
	provider := mapProvider{
		"com.tencent.mm": {PackageName: "com.tencent.mm", Label: "微信", VersionCode: 2400},
	}
	handler := NewInstalledHandler(store, provider, quietLogger())
	router := setupTestRouter()
	router.PUT("/api/installed", handler.ReplaceInstalled)
	router.GET("/api/installed", handler.ListInstalled)
	router.GET("/api/installed/:package", handler.GetInstalled)

	store.On("Replace", mock.MatchedBy(func(p []*domain.InstalledPackage) bool {
		return len(p) == 2 && p[0].PackageName == "com.tencent.mm"
	})).Return(nil)
	store.On("List").Return([]*domain.InstalledPackage{
		{PackageName: "com.tencent.mm", Label: "微信"},
		{PackageName: "com.eg.android.AlipayGphone", Label: "支付宝"},
	}, nil)

	t.Run("replace", func(t *testing.T) {
		body := `[{"package_name":"com.tencent.mm","label":"微信","version_code":2400},{"package_name":"com.example"}]`
		req := httptest.NewRequest("PUT", "/api/installed", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"count":2}`, w.Body.String())
	})

	t.Run("replace rejects blank package", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/api/installed", strings.NewReader(`[{"package_name":" "}]`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("search by pinyin initials", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/installed?q=zfb", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data  []domain.InstalledPackage `json:"data"`
			Total int                       `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Total)
		assert.Equal(t, "com.eg.android.AlipayGphone", resp.Data[0].PackageName)
	})

	t.Run("lookup", func(t *testing.T) {
		tests := []struct {
			path string
			want int
		}{
			{"/api/installed/com.tencent.mm", http.StatusOK},
			{"/api/installed/com.unknown", http.StatusNotFound},
			{"/api/installed/com.broken", http.StatusInternalServerError},
		}
		for _, tt := range tests {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.want, w.Code, tt.path)
		}
	})

	store.AssertExpectations(t)
}

func TestResultsHub_Broadcast(t *testing.T) {
	hub := NewResultsHub(quietLogger())
	hub.Start()
	defer hub.Stop()

	router := setupTestRouter()
	router.GET("/ws/analyses", hub.HandleWebSocket)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/analyses"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	record := sampleRecord()
	hub.NotifyAnalysis(record, []domain.ResultView{{PackageName: "com.example.app"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg AnalysisMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "analysis_completed", msg.Type)
	assert.Equal(t, "a-1", msg.Record.ID)
	assert.Empty(t, msg.Record.ResultJSON)
	require.Len(t, msg.Results, 1)
	assert.Equal(t, "com.example.app", msg.Results[0].PackageName)
	assert.NotEmpty(t, record.ResultJSON)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
