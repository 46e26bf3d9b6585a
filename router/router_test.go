package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"TrainAI/config"
	"TrainAI/internal/dto"
	"TrainAI/internal/handler"
	"TrainAI/internal/repo"
	"TrainAI/internal/service"
	"TrainAI/internal/storage"
	"TrainAI/model"
	"TrainAI/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

// countingStore counts every object store call.
type countingStore struct {
	storage.Store
	calls atomic.Int32
}

func (s *countingStore) PutObject(ctx context.Context, key string, r io.Reader, size int64, opts storage.PutOptions) error {
	s.calls.Add(1)
	return s.Store.PutObject(ctx, key, r, size, opts)
}

func (s *countingStore) GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.calls.Add(1)
	return s.Store.GetObject(ctx, key)
}

func (s *countingStore) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.calls.Add(1)
	return s.Store.ListObjects(ctx, prefix)
}

func (s *countingStore) RemoveObjects(ctx context.Context, keys []string) error {
	s.calls.Add(1)
	return s.Store.RemoveObjects(ctx, keys)
}

// countingSessions counts every session store call.
type countingSessions struct {
	repo.SessionStore
	calls atomic.Int32
}

func (s *countingSessions) Create(ctx context.Context, sess *model.UploadSession, ttl time.Duration) error {
	s.calls.Add(1)
	return s.SessionStore.Create(ctx, sess, ttl)
}

func (s *countingSessions) Get(ctx context.Context, ownerID, sessionID string) (*model.UploadSession, error) {
	s.calls.Add(1)
	return s.SessionStore.Get(ctx, ownerID, sessionID)
}

type testServer struct {
	engine   *gin.Engine
	store    *countingStore
	sessions *countingSessions
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := repo.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	assets := repo.NewVideoAssetRepo(db)

	ts := &testServer{
		store:    &countingStore{Store: storage.NewMemoryStore("http://cdn.local/training-videos")},
		sessions: &countingSessions{SessionStore: repo.NewMemorySessionStore()},
	}
	cfg := config.Config{JWTSecret: testSecret, MaxUploadSize: maxUpload}
	uploads := service.NewUploadService(
		ts.store,
		ts.sessions,
		repo.NewMemoryLocker(),
		assets,
		nil,
		service.OptionsFromConfig(cfg),
		logger,
	)
	ts.engine = InitRouter(cfg, logger, Handlers{
		Upload: handler.NewUploadHandler(uploads, maxUpload, logger),
		Video:  handler.NewVideoHandler(service.NewVideoService(assets), logger),
	})
	return ts
}

func bearer(t *testing.T, ownerID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, utils.Claims{
		UserID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return "Bearer " + token
}

func (ts *testServer) do(req *http.Request, auth string) *httptest.ResponseRecorder {
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func chunkRequest(t *testing.T, sessionID, index string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if sessionID != "" {
		_ = mw.WriteField("sessionId", sessionID)
	}
	if index != "" {
		_ = mw.WriteField("chunkIndex", index)
	}
	if data != nil {
		part, err := mw.CreateFormFile("chunk", "blob")
		if err != nil {
			t.Fatalf("create form file failed: %v", err)
		}
		_, _ = part.Write(data)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload/chunk", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q failed: %v", w.Body.String(), err)
	}
	return out
}

func initSession(t *testing.T, ts *testServer, auth string, size int64) dto.InitUploadResponse {
	t.Helper()
	w := ts.do(jsonRequest(t, http.MethodPost, "/upload/init", map[string]any{
		"fileName": "a.webm", "fileSize": size, "fileType": "video/webm", "uploadId": "u1",
	}), auth)
	if w.Code != http.StatusOK {
		t.Fatalf("init returned %d: %s", w.Code, w.Body.String())
	}
	return decode[dto.InitUploadResponse](t, w)
}

func TestUnauthenticatedCallsTouchNoStore(t *testing.T) {
	ts := newTestServer(t, config.DefaultMaxUploadSize)
	requests := []*http.Request{
		jsonRequest(t, http.MethodPost, "/upload/init", map[string]any{"fileName": "a", "fileSize": 1, "fileType": "t", "uploadId": "u"}),
		chunkRequest(t, "session-u-1", "0", []byte("x")),
		jsonRequest(t, http.MethodPost, "/upload/finalize", map[string]any{"sessionId": "session-u-1"}),
		httptest.NewRequest(http.MethodGet, "/upload/status/session-u-1", nil),
		httptest.NewRequest(http.MethodGet, "/upload/videos", nil),
	}
	for _, auth := range []string{"", "Bearer nope", "Basic abc"} {
		for _, req := range requests {
			w := ts.do(req.Clone(req.Context()), auth)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("%s %s with %q: expected 401, got %d", req.Method, req.URL.Path, auth, w.Code)
			}
			if body := decode[map[string]string](t, w); body["error"] == "" {
				t.Fatalf("expected error body, got %s", w.Body.String())
			}
		}
	}
	if ts.store.calls.Load() != 0 || ts.sessions.calls.Load() != 0 {
		t.Fatalf("store touched: objects=%d sessions=%d", ts.store.calls.Load(), ts.sessions.calls.Load())
	}
}

func TestEndToEndUpload(t *testing.T) {
	ts := newTestServer(t, config.DefaultMaxUploadSize)
	auth := bearer(t, "owner-1")

	opened := initSession(t, ts, auth, 300)
	if opened.ChunkEndpoint != "/upload/chunk" || opened.UploadPath != "owner-1/"+opened.SessionID {
		t.Fatalf("unexpected init response %+v", opened)
	}

	for i := 0; i < 2; i++ {
		w := ts.do(chunkRequest(t, opened.SessionID, strconv.Itoa(i), bytes.Repeat([]byte{'a' + byte(i)}, 150)), auth)
		if w.Code != http.StatusOK {
			t.Fatalf("chunk %d returned %d: %s", i, w.Code, w.Body.String())
		}
		resp := decode[dto.ChunkResponse](t, w)
		if !resp.Success || resp.ChunkIndex != i || resp.ChunkPath != model.ChunkPath("owner-1", opened.SessionID, i) {
			t.Fatalf("unexpected chunk response %+v", resp)
		}
	}

	w := ts.do(jsonRequest(t, http.MethodPost, "/upload/finalize", map[string]string{"sessionId": opened.SessionID}), auth)
	if w.Code != http.StatusOK {
		t.Fatalf("finalize returned %d: %s", w.Code, w.Body.String())
	}
	fin := decode[dto.FinalizeResponse](t, w)
	if fin.FileSize != 300 || fin.ChunksProcessed != 2 || fin.URL == "" {
		t.Fatalf("unexpected finalize response %+v", fin)
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/upload/status/"+opened.SessionID, nil), auth)
	if st := decode[dto.StatusResponse](t, w); w.Code != http.StatusOK || st.Status != model.UploadStatusFinalized {
		t.Fatalf("unexpected status %d %s", w.Code, w.Body.String())
	}

	w = ts.do(httptest.NewRequest(http.MethodGet, "/upload/videos", nil), auth)
	list := decode[dto.ListVideosResponse](t, w)
	if w.Code != http.StatusOK || len(list.Videos) != 1 || list.Videos[0].PublicURL != fin.URL {
		t.Fatalf("unexpected video list %d %s", w.Code, w.Body.String())
	}

	// another owner sees nothing
	w = ts.do(httptest.NewRequest(http.MethodGet, "/upload/videos", nil), bearer(t, "owner-2"))
	if list := decode[dto.ListVideosResponse](t, w); len(list.Videos) != 0 {
		t.Fatalf("videos leaked across owners")
	}
}

func TestInitValidationAndSizeBoundary(t *testing.T) {
	ts := newTestServer(t, config.DefaultMaxUploadSize)
	auth := bearer(t, "owner-1")

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"missing fileName", map[string]any{"fileSize": 1, "fileType": "video/webm", "uploadId": "u1"}, http.StatusBadRequest},
		{"missing uploadId", map[string]any{"fileName": "a", "fileSize": 1, "fileType": "video/webm"}, http.StatusBadRequest},
		{"zero size", map[string]any{"fileName": "a", "fileSize": 0, "fileType": "video/webm", "uploadId": "u1"}, http.StatusBadRequest},
		{"string size", map[string]any{"fileName": "a", "fileSize": "big", "fileType": "video/webm", "uploadId": "u1"}, http.StatusBadRequest},
		{"unsafe uploadId", map[string]any{"fileName": "a", "fileSize": 1, "fileType": "video/webm", "uploadId": "a/b"}, http.StatusBadRequest},
		{"one over limit", map[string]any{"fileName": "a", "fileSize": config.DefaultMaxUploadSize + 1, "fileType": "video/webm", "uploadId": "u1"}, http.StatusRequestEntityTooLarge},
		{"exact limit", map[string]any{"fileName": "a", "fileSize": config.DefaultMaxUploadSize, "fileType": "video/webm", "uploadId": "u1"}, http.StatusOK},
	}
	for _, tc := range cases {
		w := ts.do(jsonRequest(t, http.MethodPost, "/upload/init", tc.body), auth)
		if w.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.code, w.Code, w.Body.String())
		}
		if tc.code != http.StatusOK {
			if body := decode[map[string]string](t, w); body["error"] == "" {
				t.Fatalf("%s: missing error message", tc.name)
			}
		}
	}
}

func TestChunkValidation(t *testing.T) {
	ts := newTestServer(t, 1024)
	auth := bearer(t, "owner-1")
	opened := initSession(t, ts, auth, 1024)

	cases := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"missing session", chunkRequest(t, "", "0", []byte("x")), http.StatusBadRequest},
		{"missing index", chunkRequest(t, opened.SessionID, "", []byte("x")), http.StatusBadRequest},
		{"missing chunk", chunkRequest(t, opened.SessionID, "0", nil), http.StatusBadRequest},
		{"negative index", chunkRequest(t, opened.SessionID, "-1", []byte("x")), http.StatusBadRequest},
		{"non-numeric index", chunkRequest(t, opened.SessionID, "one", []byte("x")), http.StatusBadRequest},
		{"malformed session", chunkRequest(t, "nope", "0", []byte("x")), http.StatusBadRequest},
		{"unknown session", chunkRequest(t, "session-zz-1", "0", []byte("x")), http.StatusNotFound},
		{"oversized chunk", chunkRequest(t, opened.SessionID, "0", make([]byte, 1025)), http.StatusRequestEntityTooLarge},
		{"limit-sized chunk", chunkRequest(t, opened.SessionID, "0", make([]byte, 1024)), http.StatusOK},
	}
	for _, tc := range cases {
		w := ts.do(tc.req, auth)
		if w.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.code, w.Code, w.Body.String())
		}
	}

	// owner-2 cannot write into owner-1's session
	w := ts.do(chunkRequest(t, opened.SessionID, "1", []byte("x")), bearer(t, "owner-2"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session, got %d", w.Code)
	}
}

func TestFinalizeErrors(t *testing.T) {
	ts := newTestServer(t, config.DefaultMaxUploadSize)
	auth := bearer(t, "owner-1")

	w := ts.do(jsonRequest(t, http.MethodPost, "/upload/finalize", map[string]string{}), auth)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing sessionId: expected 400, got %d", w.Code)
	}
	w = ts.do(jsonRequest(t, http.MethodPost, "/upload/finalize", map[string]string{"sessionId": "session-x-1"}), auth)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", w.Code)
	}
	opened := initSession(t, ts, auth, 10)
	w = ts.do(jsonRequest(t, http.MethodPost, "/upload/finalize", map[string]string{"sessionId": opened.SessionID}), auth)
	if w.Code != http.StatusNotFound {
		t.Fatalf("no chunks: expected 404, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, config.DefaultMaxUploadSize)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
