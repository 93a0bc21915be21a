package canvas

// Metrics receives counters from the router. Implementations must be cheap;
// they are called on the hub loop.
type Metrics interface {
	EventHandled(event string)
	PermissionDenied(event string)
	ReactionSuppressed()
	SessionsChanged(count int)
	SnapshotFailed(key string)
}

// Indexer mirrors memo text into a search index. Calls are fire-and-forget.
type Indexer interface {
	IndexMemo(memo Memo)
	DeleteMemos(ids []string)
}

type nopMetrics struct{}

func (nopMetrics) EventHandled(string)     {}
func (nopMetrics) PermissionDenied(string) {}
func (nopMetrics) ReactionSuppressed()     {}
func (nopMetrics) SessionsChanged(int)     {}
func (nopMetrics) SnapshotFailed(string)   {}

type nopIndexer struct{}

func (nopIndexer) IndexMemo(Memo)       {}
func (nopIndexer) DeleteMemos([]string) {}
