package canvas

import "time"

// State is the authoritative container for every collection shared between sessions.
type State struct {
	Boards   *Collection[Board]
	Memos    *MemoStore
	Likes    *Collection[Like]
	Comments *Collection[Comment]
}

// NewState returns an empty state holding only the default board.
func NewState(now time.Time) *State {
	s := &State{
		Boards:   NewCollection[Board](nil),
		Memos:    &MemoStore{},
		Likes:    NewCollection[Like](nil),
		Comments: NewCollection[Comment](nil),
	}
	s.EnsureDefaultBoard(now)
	return s
}

// EnsureDefaultBoard inserts the default board when it is missing and reports
// whether it did so.
func (s *State) EnsureDefaultBoard(now time.Time) bool {
	if s.HasBoard(DefaultBoardID) {
		return false
	}
	s.Boards.Insert(DefaultBoard(now))
	return true
}

func (s *State) HasBoard(id string) bool {
	_, ok := s.Boards.First(func(b Board) bool { return b.ID == id })
	return ok
}

func (s *State) HasMemo(id string) bool {
	_, ok := s.Memos.Get(id)
	return ok
}

// Removal describes everything one cascade took out of the state.
type Removal struct {
	Boards   []Board
	Memos    []Memo
	Likes    []Like
	Comments []Comment
}

func (r Removal) MemoIDs() []string {
	ids := make([]string, 0, len(r.Memos))
	for _, m := range r.Memos {
		ids = append(ids, m.ID)
	}
	return ids
}

// RemoveMemos deletes the memos matching pred together with every like and
// comment attached to them. The id set is computed once, before likes and
// comments are filtered, so no orphan can survive.
func (s *State) RemoveMemos(pred func(Memo) bool) Removal {
	memos := s.Memos.Remove(pred)
	if len(memos) == 0 {
		return Removal{}
	}
	ids := make(map[string]struct{}, len(memos))
	for _, m := range memos {
		ids[m.ID] = struct{}{}
	}
	return Removal{
		Memos: memos,
		Likes: s.Likes.Remove(func(l Like) bool {
			_, hit := ids[l.MemoID]
			return hit
		}),
		Comments: s.Comments.Remove(func(c Comment) bool {
			_, hit := ids[c.MemoID]
			return hit
		}),
	}
}

func (s *State) RemoveMemo(id string) Removal {
	return s.RemoveMemos(func(m Memo) bool { return m.ID == id })
}

// RemoveBoard deletes a non-default board and cascades to its memos. It
// reports false when the board is the default board or does not exist.
func (s *State) RemoveBoard(id string) (Removal, bool) {
	if id == DefaultBoardID || !s.HasBoard(id) {
		return Removal{}, false
	}
	removal := s.RemoveMemos(func(m Memo) bool { return m.BoardID == id })
	removal.Boards = s.Boards.Remove(func(b Board) bool { return b.ID == id })
	return removal, true
}

// Clear empties the memo, like and comment collections. Boards are kept.
func (s *State) Clear() Removal {
	removal := Removal{
		Memos:    s.Memos.All(),
		Likes:    s.Likes.All(),
		Comments: s.Comments.All(),
	}
	s.Memos.Reset(nil)
	s.Likes.Reset(nil)
	s.Comments.Reset(nil)
	return removal
}

// PruneOrphans drops likes and comments whose memo no longer exists. Used when
// loading collections that were snapshotted independently.
func (s *State) PruneOrphans() (likes, comments int) {
	live := make(map[string]struct{}, s.Memos.Len())
	for _, m := range s.Memos.All() {
		live[m.ID] = struct{}{}
	}
	orphan := func(memoID string) bool {
		_, ok := live[memoID]
		return !ok
	}
	likes = len(s.Likes.Remove(func(l Like) bool { return orphan(l.MemoID) }))
	comments = len(s.Comments.Remove(func(c Comment) bool { return orphan(c.MemoID) }))
	return likes, comments
}

func (s *State) MemosOnBoard(boardID string) []Memo {
	return s.Memos.Find(func(m Memo) bool { return m.BoardID == boardID })
}

func (s *State) LikesFor(memoID string) []Like {
	return s.Likes.Find(func(l Like) bool { return l.MemoID == memoID })
}

func (s *State) CommentsFor(memoID string) []Comment {
	return s.Comments.Find(func(c Comment) bool { return c.MemoID == memoID })
}
