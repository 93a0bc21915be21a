package canvas

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Snapshot keys, one per durable collection.
const (
	KeyBoards   = "boards"
	KeyMemos    = "memos"
	KeyLikes    = "likes"
	KeyComments = "comments"
)

// Gateway is the key-value snapshot store behind the in-memory state.
// Load reports false when nothing has been stored under key yet.
type Gateway interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Save(ctx context.Context, key string, value any) error
}

// LoadState restores every collection through gw. Keys that were never saved
// start empty. The default board is created (and saved) when missing, and
// likes or comments left behind by an interrupted cascade are dropped.
func LoadState(ctx context.Context, gw Gateway, now time.Time, logger *zap.Logger) (*State, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		boards   []Board
		memos    []Memo
		likes    []Like
		comments []Comment
	)
	targets := []struct {
		key string
		dst any
	}{
		{key: KeyBoards, dst: &boards},
		{key: KeyMemos, dst: &memos},
		{key: KeyLikes, dst: &likes},
		{key: KeyComments, dst: &comments},
	}
	for _, target := range targets {
		found, err := gw.Load(ctx, target.key, target.dst)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", target.key, err)
		}
		if !found {
			logger.Info("no snapshot found, starting empty", zap.String("key", target.key))
		}
	}

	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})

	state := &State{
		Boards:   NewCollection(boards),
		Memos:    &MemoStore{},
		Likes:    NewCollection(likes),
		Comments: NewCollection(comments),
	}
	state.Memos.Reset(memos)

	if state.EnsureDefaultBoard(now) {
		if err := gw.Save(ctx, KeyBoards, state.Boards.All()); err != nil {
			logger.Error("save default board failed", zap.Error(err))
		}
	}
	if droppedLikes, droppedComments := state.PruneOrphans(); droppedLikes+droppedComments > 0 {
		logger.Warn("dropped orphaned reactions",
			zap.Int("likes", droppedLikes),
			zap.Int("comments", droppedComments),
		)
		for key, value := range map[string]any{KeyLikes: state.Likes.All(), KeyComments: state.Comments.All()} {
			if err := gw.Save(ctx, key, value); err != nil {
				logger.Error("save pruned snapshot failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	logger.Info("state loaded",
		zap.Int("boards", state.Boards.Len()),
		zap.Int("memos", state.Memos.Len()),
		zap.Int("likes", state.Likes.Len()),
		zap.Int("comments", state.Comments.Len()),
	)
	return state, nil
}

// collection returns the current contents stored under key.
func (s *State) collection(key string) (any, bool) {
	switch key {
	case KeyBoards:
		return s.Boards.All(), true
	case KeyMemos:
		return s.Memos.All(), true
	case KeyLikes:
		return s.Likes.All(), true
	case KeyComments:
		return s.Comments.All(), true
	default:
		return nil, false
	}
}
