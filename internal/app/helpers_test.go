package app

import (
	"context"
	"io"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"memoboard/api/internal/auth"
	"memoboard/api/internal/canvas"
	"memoboard/api/internal/metrics"
	"memoboard/api/internal/search"
	"memoboard/api/internal/upload"
)

const testAdminToken = "letmein"

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeBlobStore struct {
	names []string
}

func (f *fakeBlobStore) Put(_ context.Context, name, _ string, _ int64, _ io.Reader) (string, error) {
	f.names = append(f.names, name)
	return "https://cdn.test/" + name, nil
}

type testEnv struct {
	server  *HTTPServer
	hub     *canvas.Hub
	blobs   *fakeBlobStore
	metrics *metrics.Collector
}

// seedState builds a board with two memos plus reactions on the first one.
func seedState() *canvas.State {
	state := canvas.NewState(testEpoch)
	state.Boards.Insert(canvas.Board{ID: "ideas", Name: "Ideas", Theme: "default", CreatedAt: testEpoch, CreatedBy: "s1", IsPublic: true})
	state.Memos.Insert(canvas.Memo{ID: "m1", Content: "buy milk", X: 10, Y: 20, Color: canvas.DefaultMemoColor, BoardID: canvas.DefaultBoardID, CreatedAt: testEpoch, CreatedBy: "s1"})
	state.Memos.Insert(canvas.Memo{ID: "m2", Content: "ship it", X: 30, Y: 40, Color: canvas.DefaultMemoColor, BoardID: "ideas", CreatedAt: testEpoch.Add(time.Minute), CreatedBy: "s2"})
	state.Likes.Insert(canvas.Like{ID: "l1", MemoID: "m1", UserID: "s2", UserName: "User_s2", CreatedAt: testEpoch})
	state.Comments.Insert(canvas.Comment{ID: "c1", MemoID: "m1", UserID: "s2", UserName: "User_s2", Content: "first", CreatedAt: testEpoch})
	state.Comments.Insert(canvas.Comment{ID: "c2", MemoID: "m1", UserID: "s3", UserName: "User_s3", Content: "second", CreatedAt: testEpoch.Add(time.Second)})
	return state
}

func newTestEnv(t *testing.T, pinger Pinger) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	collector := metrics.NewCollector("memoboard")

	router := canvas.NewRouter(seedState(),
		canvas.WithAdmission(auth.NewAuthority(testAdminToken)),
		canvas.WithMetrics(collector),
		canvas.WithLogger(logger),
	)
	hub := canvas.NewHub(router, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	searchSvc := search.NewService(nil, search.NewLocal(func(ctx context.Context) ([]canvas.Memo, error) {
		var memos []canvas.Memo
		err := hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
			memos = state.Memos.All()
		})
		return memos, err
	}), logger)

	blobs := &fakeBlobStore{}
	uploads := upload.NewService(blobs, 1024, logger)

	svc := NewService(hub, pinger, searchSvc, uploads, logger)
	server := NewHTTPServer(svc, ServerOptions{
		CORSOrigins: []string{"http://localhost:5173"},
		Metrics:     collector,
		Logger:      logger,
	})
	return &testEnv{server: server, hub: hub, blobs: blobs, metrics: collector}
}
