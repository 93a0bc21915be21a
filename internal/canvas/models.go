package canvas

import "time"

const (
	// DefaultBoardID identifies the board that always exists and cannot be deleted.
	DefaultBoardID = "default"

	DefaultMemoColor  = "#fff59d"
	DefaultBoardTheme = "default"

	CanvasWidth  = 800.0
	CanvasHeight = 600.0

	MaxCommentLength = 500
)

type Board struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Theme       string    `json:"theme"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy"`
	IsPublic    bool      `json:"isPublic"`
}

type Memo struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Color     string    `json:"color"`
	BoardID   string    `json:"boardId"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
	UserName  string    `json:"userName,omitempty"`
}

type Like struct {
	ID        string    `json:"id"`
	MemoID    string    `json:"memoId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	CreatedAt time.Time `json:"createdAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	MemoID    string    `json:"memoId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultBoard returns the board that is created when no boards have been persisted.
func DefaultBoard(now time.Time) Board {
	return Board{
		ID:          DefaultBoardID,
		Name:        "Main Board",
		Theme:       DefaultBoardTheme,
		Description: "Shared board for everyone",
		CreatedAt:   now,
		CreatedBy:   "system",
		IsPublic:    true,
	}
}
