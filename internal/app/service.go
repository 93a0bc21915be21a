package app

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"memoboard/api/internal/canvas"
	"memoboard/api/internal/search"
	"memoboard/api/internal/upload"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service answers the HTTP surface. Every read runs on the hub loop, so a
// response never mixes two states.
type Service struct {
	hub     *canvas.Hub
	store   Pinger
	search  *search.Service
	uploads *upload.Service
	logger  *zap.Logger
}

func NewService(hub *canvas.Hub, store Pinger, searchSvc *search.Service, uploads *upload.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{hub: hub, store: store, search: searchSvc, uploads: uploads, logger: logger}
}

type Stats struct {
	OnlineCount  int `json:"onlineCount"`
	BoardCount   int `json:"boardCount"`
	MemoCount    int `json:"memoCount"`
	LikeCount    int `json:"likeCount"`
	CommentCount int `json:"commentCount"`
}

func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Ping(ctx)
}

func (s *Service) Boards(ctx context.Context) ([]canvas.Board, error) {
	var boards []canvas.Board
	err := s.hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
		boards = state.Boards.All()
	})
	return boards, err
}

func (s *Service) Board(ctx context.Context, id string) (canvas.Board, error) {
	var (
		board canvas.Board
		found bool
	)
	err := s.hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
		board, found = state.Boards.First(func(b canvas.Board) bool { return b.ID == id })
	})
	if err != nil {
		return canvas.Board{}, err
	}
	if !found {
		return canvas.Board{}, domainError(http.StatusNotFound, "NOT_FOUND", "Board not found", map[string]any{"boardId": id})
	}
	return board, nil
}

// Memos lists every memo, or only those on boardID when it is set.
func (s *Service) Memos(ctx context.Context, boardID string) ([]canvas.Memo, error) {
	var memos []canvas.Memo
	err := s.hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
		if boardID == "" {
			memos = state.Memos.All()
			return
		}
		memos = state.MemosOnBoard(boardID)
	})
	return memos, err
}

// BoardMemos is Memos for an existing board; unknown boards are NOT_FOUND.
func (s *Service) BoardMemos(ctx context.Context, boardID string) ([]canvas.Memo, error) {
	var (
		memos []canvas.Memo
		found bool
	)
	err := s.hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
		if found = state.HasBoard(boardID); found {
			memos = state.MemosOnBoard(boardID)
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Board not found", map[string]any{"boardId": boardID})
	}
	return memos, nil
}

func (s *Service) Memo(ctx context.Context, id string) (canvas.Memo, error) {
	var (
		memo  canvas.Memo
		found bool
	)
	err := s.hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
		memo, found = state.Memos.Get(id)
	})
	if err != nil {
		return canvas.Memo{}, err
	}
	if !found {
		return canvas.Memo{}, memoNotFound(id)
	}
	return memo, nil
}

func (s *Service) Likes(ctx context.Context, memoID string) ([]canvas.Like, error) {
	var (
		likes []canvas.Like
		found bool
	)
	err := s.hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
		if found = state.HasMemo(memoID); found {
			likes = state.LikesFor(memoID)
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, memoNotFound(memoID)
	}
	return likes, nil
}

func (s *Service) Comments(ctx context.Context, memoID string) ([]canvas.Comment, error) {
	var (
		comments []canvas.Comment
		found    bool
	)
	err := s.hub.Query(ctx, func(state *canvas.State, _ *canvas.SessionRegistry) {
		if found = state.HasMemo(memoID); found {
			comments = state.CommentsFor(memoID)
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, memoNotFound(memoID)
	}
	return comments, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.hub.Query(ctx, func(state *canvas.State, sessions *canvas.SessionRegistry) {
		stats = Stats{
			OnlineCount:  sessions.Count(),
			BoardCount:   state.Boards.Len(),
			MemoCount:    state.Memos.Len(),
			LikeCount:    state.Likes.Len(),
			CommentCount: state.Comments.Len(),
		}
	})
	return stats, err
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) SearchBackend() string {
	if s.search == nil {
		return "disabled"
	}
	return s.search.Backend()
}

func (s *Service) Upload(ctx context.Context, r io.Reader) (string, error) {
	if s.uploads == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPLOAD_UNAVAILABLE", "Uploads are not configured", nil)
	}
	return s.uploads.Accept(ctx, r)
}

func (s *Service) UploadLimit() int64 {
	if s.uploads == nil {
		return upload.DefaultMaxBytes
	}
	return s.uploads.MaxBytes()
}

func memoNotFound(id string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Memo not found", map[string]any{"memoId": id})
}
