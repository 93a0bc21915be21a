package canvas

import (
	"testing"
	"time"
)

func TestCollectionRemoveKeepsOrder(t *testing.T) {
	c := NewCollection([]int{1, 2, 3, 4, 5, 6})

	removed := c.Remove(func(v int) bool { return v%2 == 0 })

	if got := c.All(); len(got) != 3 || got[0] != 1 || got[1] != 3 || got[2] != 5 {
		t.Fatalf("unexpected remaining items %v", got)
	}
	if len(removed) != 3 || removed[0] != 2 || removed[2] != 6 {
		t.Fatalf("unexpected removed items %v", removed)
	}
	if found := c.Find(func(v int) bool { return v > 10 }); found == nil || len(found) != 0 {
		t.Fatalf("Find must return an empty, non-nil slice, got %#v", found)
	}
}

func TestCollectionAllReturnsCopy(t *testing.T) {
	c := NewCollection([]string{"a"})
	snapshot := c.All()
	c.Insert("b")
	snapshot[0] = "z"

	if got := c.All(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("collection changed through snapshot: %v", got)
	}
}

func TestMemoStoreUpdate(t *testing.T) {
	store := &MemoStore{}
	store.Insert(Memo{ID: "m1", Content: "old"})

	updated, ok := store.Update("m1", func(m *Memo) { m.Content = "new" })
	if !ok || updated.Content != "new" {
		t.Fatalf("unexpected update result %+v ok=%v", updated, ok)
	}
	if _, ok := store.Update("missing", func(m *Memo) { m.Content = "x" }); ok {
		t.Fatal("expected update of missing memo to report false")
	}
	if got, _ := store.Get("m1"); got.Content != "new" {
		t.Fatalf("update not stored: %+v", got)
	}
}

func seededState(t *testing.T) *State {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewState(now)
	s.Boards.Insert(Board{ID: "b1", Name: "One"})
	s.Memos.Insert(Memo{ID: "m1", BoardID: DefaultBoardID})
	s.Memos.Insert(Memo{ID: "m2", BoardID: "b1"})
	s.Memos.Insert(Memo{ID: "m3", BoardID: "b1"})
	for _, memoID := range []string{"m1", "m2", "m3"} {
		s.Likes.Insert(Like{ID: "l-" + memoID, MemoID: memoID, UserID: "u"})
		s.Comments.Insert(Comment{ID: "c-" + memoID, MemoID: memoID, UserID: "u"})
	}
	return s
}

func TestRemoveBoardCascades(t *testing.T) {
	s := seededState(t)

	removal, ok := s.RemoveBoard("b1")

	if !ok {
		t.Fatal("expected board removal")
	}
	if len(removal.Boards) != 1 || len(removal.Memos) != 2 || len(removal.Likes) != 2 || len(removal.Comments) != 2 {
		t.Fatalf("unexpected removal %+v", removal)
	}
	if s.Memos.Len() != 1 || s.Likes.Len() != 1 || s.Comments.Len() != 1 {
		t.Fatalf("unexpected remaining sizes memos=%d likes=%d comments=%d", s.Memos.Len(), s.Likes.Len(), s.Comments.Len())
	}
	if ids := removal.MemoIDs(); len(ids) != 2 || ids[0] != "m2" || ids[1] != "m3" {
		t.Fatalf("unexpected memo ids %v", ids)
	}
}

func TestRemoveBoardRefusesDefaultAndMissing(t *testing.T) {
	s := seededState(t)

	if _, ok := s.RemoveBoard(DefaultBoardID); ok {
		t.Fatal("default board must not be removable")
	}
	if _, ok := s.RemoveBoard("nope"); ok {
		t.Fatal("missing board must report false")
	}
	if s.Memos.Len() != 3 {
		t.Fatalf("refused removal changed memos: %d", s.Memos.Len())
	}
}

func TestRemoveMemosWithoutMatchIsNoop(t *testing.T) {
	s := seededState(t)

	removal := s.RemoveMemo("ghost")

	if len(removal.Memos)+len(removal.Likes)+len(removal.Comments) != 0 {
		t.Fatalf("expected empty removal, got %+v", removal)
	}
	if s.Likes.Len() != 3 || s.Comments.Len() != 3 {
		t.Fatal("reactions changed without a memo removal")
	}
}

func TestClearKeepsBoards(t *testing.T) {
	s := seededState(t)

	removal := s.Clear()

	if len(removal.Memos) != 3 || s.Memos.Len() != 0 || s.Likes.Len() != 0 || s.Comments.Len() != 0 {
		t.Fatalf("clear incomplete: %+v", removal)
	}
	if s.Boards.Len() != 2 {
		t.Fatalf("boards must survive clear, have %d", s.Boards.Len())
	}
}

func TestPruneOrphans(t *testing.T) {
	s := seededState(t)
	s.Likes.Insert(Like{ID: "stray", MemoID: "gone"})
	s.Comments.Insert(Comment{ID: "stray", MemoID: "gone"})
	s.Comments.Insert(Comment{ID: "stray2", MemoID: "gone"})

	likes, comments := s.PruneOrphans()

	if likes != 1 || comments != 2 {
		t.Fatalf("expected 1 like and 2 comments pruned, got %d and %d", likes, comments)
	}
	if s.Likes.Len() != 3 || s.Comments.Len() != 3 {
		t.Fatal("live reactions were pruned")
	}
}
