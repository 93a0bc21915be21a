package search

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"memoboard/api/internal/canvas"
)

// MemoSource returns a snapshot of the current memos.
type MemoSource func(ctx context.Context) ([]canvas.Memo, error)

// Local implements Searcher with a case-insensitive substring scan over the
// live memo snapshot. It is the fallback when Meilisearch is absent or down.
type Local struct {
	source  MemoSource
	timeout time.Duration
}

func NewLocal(source MemoSource) *Local {
	return &Local{source: source, timeout: 3 * time.Second}
}

// Healthy is always true; the snapshot lives in this process.
func (l *Local) Healthy() bool {
	return true
}

func (l *Local) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	memos, err := l.source(ctx)
	if err != nil {
		return nil, 0, err
	}

	var matches []Result
	for _, m := range memos {
		if q.BoardID != "" && m.BoardID != q.BoardID {
			continue
		}
		content := strings.ToLower(m.Content)
		if !strings.Contains(content, needle) && !strings.Contains(strings.ToLower(m.UserName), needle) {
			continue
		}
		matches = append(matches, Result{
			ID:        m.ID,
			BoardID:   m.BoardID,
			Content:   m.Content,
			UserName:  m.UserName,
			Snippet:   highlight(m.Content, needle),
			CreatedAt: m.CreatedAt,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	if limit := q.limit(); len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, total, nil
}

// highlight wraps the first occurrence of needle in <mark> tags. The match is
// located on the lowered text, so it only applies when lowering kept the byte
// length unchanged.
func highlight(content, needle string) string {
	lower := strings.ToLower(content)
	idx := strings.Index(lower, needle)
	if idx < 0 || len(lower) != len(content) || !utf8.ValidString(content) {
		return content
	}
	end := idx + len(needle)
	return content[:idx] + "<mark>" + content[idx:end] + "</mark>" + content[end:]
}
