package search

import (
	"go.uber.org/zap"

	"memoboard/api/internal/canvas"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-process scan. It also satisfies canvas.Indexer.
type Service struct {
	meili  *Meili
	local  Searcher
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, local Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, local: local, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to the local scan.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to local search", zap.Error(err))
	}

	if s.local == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.local.Search(q)
	if err != nil {
		s.logger.Error("local search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Backend names the searcher that would answer right now.
func (s *Service) Backend() string {
	if s.meili != nil && s.meili.Healthy() {
		return "meilisearch"
	}
	return "local"
}

// IndexMemo indexes a memo (fire-and-forget to Meilisearch).
func (s *Service) IndexMemo(m canvas.Memo) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := recordFromMemo(m)
	go func() {
		if err := s.meili.IndexMemos([]MemoRecord{record}); err != nil {
			s.logger.Warn("index memo", zap.String("memoId", record.ID), zap.Error(err))
		}
	}()
}

// DeleteMemos removes memos from the search index (fire-and-forget).
func (s *Service) DeleteMemos(ids []string) {
	if s.meili == nil || !s.meili.Healthy() || len(ids) == 0 {
		return
	}
	ids = append([]string(nil), ids...)
	go func() {
		for _, id := range ids {
			if err := s.meili.DeleteMemo(id); err != nil {
				s.logger.Warn("delete memo from index", zap.String("memoId", id), zap.Error(err))
			}
		}
	}()
}

// ReindexAll pushes every memo to Meilisearch. Called at startup so the index
// matches the loaded snapshot.
func (s *Service) ReindexAll(memos []canvas.Memo) {
	if s.meili == nil || !s.meili.Healthy() || len(memos) == 0 {
		return
	}
	records := make([]MemoRecord, 0, len(memos))
	for _, m := range memos {
		records = append(records, recordFromMemo(m))
	}
	if err := s.meili.IndexMemos(records); err != nil {
		s.logger.Warn("reindex memos", zap.Int("count", len(records)), zap.Error(err))
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
