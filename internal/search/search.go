package search

import (
	"time"

	"memoboard/api/internal/canvas"
)

const defaultLimit = 20

// Result is a single memo hit returned to the caller.
type Result struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"boardId"`
	Content   string    `json:"content"`
	UserName  string    `json:"userName,omitempty"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"createdAt"`
}

// Query describes a search request.
type Query struct {
	Text    string
	BoardID string // empty = every board
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// MemoRecord is the data we index for a memo.
type MemoRecord struct {
	ID        string `json:"id"`
	BoardID   string `json:"boardId"`
	Content   string `json:"content"`
	UserName  string `json:"userName"`
	CreatedAt int64  `json:"createdAt"`
}

func recordFromMemo(m canvas.Memo) MemoRecord {
	return MemoRecord{
		ID:        m.ID,
		BoardID:   m.BoardID,
		Content:   m.Content,
		UserName:  m.UserName,
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}
