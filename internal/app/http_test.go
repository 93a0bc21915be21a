package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	rr := doRequest(t, env.server.Handler(), http.MethodGet, "/api/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	response := decodeJSON[map[string]any](t, rr)
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantState  string
	}{
		{name: "store reachable", wantStatus: http.StatusOK, wantState: "ready"},
		{name: "store down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantState: "not_ready"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, fakePinger{err: tc.pingErr})
			rr := doRequest(t, env.server.Handler(), http.MethodGet, "/api/ready")

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			response := decodeJSON[map[string]any](t, rr)
			if response["status"] != tc.wantState {
				t.Fatalf("expected status %q, got %v", tc.wantState, response["status"])
			}
			checks := response["checks"].(map[string]any)
			searchCheck := checks["search"].(map[string]any)
			if searchCheck["backend"] != "local" {
				t.Fatalf("expected local search backend, got %v", searchCheck["backend"])
			}
		})
	}
}

func TestQueryEndpoints(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	h := env.server.Handler()

	tests := []struct {
		name    string
		path    string
		wantIDs []string
	}{
		{name: "all memos", path: "/api/memos", wantIDs: []string{"m1", "m2"}},
		{name: "memos filtered by board", path: "/api/memos?boardId=ideas", wantIDs: []string{"m2"}},
		{name: "memos on unknown board filter", path: "/api/memos?boardId=nope", wantIDs: []string{}},
		{name: "boards", path: "/api/boards", wantIDs: []string{"default", "ideas"}},
		{name: "board memos", path: "/api/boards/default/memos", wantIDs: []string{"m1"}},
		{name: "memo likes", path: "/api/memos/m1/likes", wantIDs: []string{"l1"}},
		{name: "memo comments in order", path: "/api/memos/m1/comments", wantIDs: []string{"c1", "c2"}},
		{name: "memo without likes", path: "/api/memos/m2/likes", wantIDs: []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodGet, tc.path)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
			}
			items := decodeJSON[[]map[string]any](t, rr)
			if len(items) != len(tc.wantIDs) {
				t.Fatalf("expected %d items, got %d: %s", len(tc.wantIDs), len(items), rr.Body.String())
			}
			for i, want := range tc.wantIDs {
				if items[i]["id"] != want {
					t.Fatalf("item %d: expected id %s, got %v", i, want, items[i]["id"])
				}
			}
		})
	}
}

func TestSingleResourceEndpoints(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	h := env.server.Handler()

	rr := doRequest(t, h, http.MethodGet, "/api/memos/m2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	memo := decodeJSON[map[string]any](t, rr)
	if memo["content"] != "ship it" || memo["boardId"] != "ideas" {
		t.Fatalf("unexpected memo %v", memo)
	}

	rr = doRequest(t, h, http.MethodGet, "/api/boards/ideas")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if board := decodeJSON[map[string]any](t, rr); board["name"] != "Ideas" {
		t.Fatalf("unexpected board %v", board)
	}
}

func TestUnknownResourcesAreNotFound(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	h := env.server.Handler()

	for _, path := range []string{
		"/api/memos/missing",
		"/api/memos/missing/likes",
		"/api/memos/missing/comments",
		"/api/boards/missing",
		"/api/boards/missing/memos",
		"/api/nothing-here",
	} {
		t.Run(path, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodGet, path)
			if rr.Code != http.StatusNotFound {
				t.Fatalf("expected status 404, got %d", rr.Code)
			}
			if payload := decodeJSON[map[string]any](t, rr); payload["code"] != "NOT_FOUND" {
				t.Fatalf("expected code NOT_FOUND, got %v", payload["code"])
			}
		})
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	rr := doRequest(t, env.server.Handler(), http.MethodGet, "/api/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	stats := decodeJSON[Stats](t, rr)
	want := Stats{OnlineCount: 0, BoardCount: 2, MemoCount: 2, LikeCount: 1, CommentCount: 2}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	h := env.server.Handler()

	rr := doRequest(t, h, http.MethodGet, "/api/search?q=MILK")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if response.Total != 1 || response.Results[0].ID != "m1" {
		t.Fatalf("unexpected search response %s", rr.Body.String())
	}

	rr = doRequest(t, h, http.MethodGet, "/api/search")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing q, got %d", rr.Code)
	}
}

func multipartBody(t *testing.T, field string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("note", "ignored"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	part, err := writer.CreateFormFile(field, "upload.bin")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("part.Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestUploadEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		content    []byte
		wantStatus int
		wantCode   string
	}{
		{name: "png accepted", field: "image", content: pngBytes, wantStatus: http.StatusCreated},
		{name: "text rejected", field: "image", content: []byte("plain text, not an image"), wantStatus: http.StatusUnsupportedMediaType, wantCode: "UNSUPPORTED_MEDIA_TYPE"},
		{name: "over ceiling", field: "image", content: append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 2048)...), wantStatus: http.StatusRequestEntityTooLarge, wantCode: "FILE_TOO_LARGE"},
		{name: "wrong field", field: "file", content: pngBytes, wantStatus: http.StatusBadRequest, wantCode: "INVALID_BODY"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, fakePinger{})
			body, contentType := multipartBody(t, tc.field, tc.content)
			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set("Content-Type", contentType)
			rr := httptest.NewRecorder()

			env.server.Handler().ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d body=%s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			payload := decodeJSON[map[string]any](t, rr)
			if tc.wantCode != "" {
				if payload["code"] != tc.wantCode {
					t.Fatalf("expected code %s, got %v", tc.wantCode, payload["code"])
				}
				if len(env.blobs.names) != 0 {
					t.Fatal("rejected upload reached the blob store")
				}
				return
			}
			url, _ := payload["url"].(string)
			if len(env.blobs.names) != 1 || url != "https://cdn.test/"+env.blobs.names[0] {
				t.Fatalf("unexpected url %q for stored %v", url, env.blobs.names)
			}
			if !strings.HasSuffix(url, ".png") {
				t.Fatalf("expected png extension, got %q", url)
			}
		})
	}
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"image":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	env.server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	req := httptest.NewRequest(http.MethodOptions, "/api/memos", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()

	env.server.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	env := newTestEnv(t, fakePinger{})
	h := env.server.Handler()

	doRequest(t, h, http.MethodGet, "/api/memos/m1")
	rr := doRequest(t, h, http.MethodGet, "/metrics")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `route="/api/memos/{memoID}"`) {
		t.Fatalf("expected route pattern label in metrics output")
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "domain", err: memoNotFound("x"), wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "max bytes", err: &http.MaxBytesError{Limit: 10}, wantStatus: http.StatusRequestEntityTooLarge, wantCode: "FILE_TOO_LARGE"},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "SERVER_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, code, _, _ := mapError(tc.err)
			if status != tc.wantStatus || code != tc.wantCode {
				t.Fatalf("expected %d/%s, got %d/%s", tc.wantStatus, tc.wantCode, status, code)
			}
		})
	}
}
