package canvas

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"memoboard/api/internal/rbac"
	"memoboard/api/internal/util"
)

// Admission decides, once per connection, whether a credential grants the
// administrator capability.
type Admission interface {
	Evaluate(credential string) bool
}

type denyAll struct{}

func (denyAll) Evaluate(string) bool { return false }

// Router turns one inbound event into state mutations and the emissions that
// describe them. It is not safe for concurrent use; the Hub serializes calls.
type Router struct {
	state       *State
	sessions    *SessionRegistry
	admission   Admission
	debouncer   *Debouncer
	gateway     Gateway
	indexer     Indexer
	metrics     Metrics
	logger      *zap.Logger
	now         func() time.Time
	rand        *rand.Rand
	newID       func(prefix string) string
	saveTimeout time.Duration
}

type RouterOption func(*Router)

func WithAdmission(a Admission) RouterOption {
	return func(r *Router) { r.admission = a }
}

func WithGateway(gw Gateway) RouterOption {
	return func(r *Router) { r.gateway = gw }
}

func WithIndexer(idx Indexer) RouterOption {
	return func(r *Router) { r.indexer = idx }
}

func WithMetrics(m Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

func WithRand(src *rand.Rand) RouterOption {
	return func(r *Router) { r.rand = src }
}

func WithIDGenerator(newID func(prefix string) string) RouterOption {
	return func(r *Router) { r.newID = newID }
}

func WithDebounceWindow(window time.Duration) RouterOption {
	return func(r *Router) { r.debouncer = NewDebouncer(window) }
}

func NewRouter(state *State, opts ...RouterOption) *Router {
	r := &Router{
		state:       state,
		sessions:    NewSessionRegistry(),
		admission:   denyAll{},
		debouncer:   NewDebouncer(DefaultDebounceWindow),
		metrics:     nopMetrics{},
		indexer:     nopIndexer{},
		now:         time.Now,
		newID:       util.NewID,
		saveTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.state == nil {
		r.state = NewState(r.now())
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.rand == nil {
		r.rand = rand.New(rand.NewPCG(uint64(r.now().UnixNano()), 0x6d656d6f))
	}
	if r.admission == nil {
		r.admission = denyAll{}
	}
	return r
}

func (r *Router) State() *State {
	return r.state
}

func (r *Router) Sessions() *SessionRegistry {
	return r.sessions
}

// Connect registers a session and returns its initial snapshot plus the new
// online count. The admin capability is evaluated here and only here.
func (r *Router) Connect(sessionID, credential string) []Emission {
	isAdmin := r.admission.Evaluate(credential)
	session := r.sessions.Register(sessionID, isAdmin, r.now())
	r.metrics.EventHandled(EventConnect)
	r.metrics.SessionsChanged(r.sessions.Count())
	r.logger.Info("session connected",
		zap.String("session", session.ID),
		zap.Bool("admin", session.IsAdmin),
		zap.Int("online", r.sessions.Count()),
	)

	return []Emission{
		toSender(EventLoadMemos, MemoListPayload{Memos: r.state.Memos.All()}),
		toSender(EventLoadBoards, BoardListPayload{Boards: r.state.Boards.All()}),
		toSender(EventUserInfo, session),
		toAll(EventUserCount, UserCountPayload{Count: r.sessions.Count()}),
	}
}

// Disconnect removes a session. Unknown sessions produce no emissions.
func (r *Router) Disconnect(sessionID string) []Emission {
	session, ok := r.sessions.Unregister(sessionID)
	if !ok {
		return nil
	}
	r.debouncer.Forget(sessionID)
	r.metrics.EventHandled(EventDisconnect)
	r.metrics.SessionsChanged(r.sessions.Count())
	r.logger.Info("session disconnected",
		zap.String("session", session.ID),
		zap.Int("online", r.sessions.Count()),
	)

	return []Emission{
		toAll(EventUserCount, UserCountPayload{Count: r.sessions.Count()}),
		toAll(EventUserDisconnected, UserDisconnectedPayload{UserID: session.ID, UserName: session.Name}),
	}
}

// Handle processes one event from a registered session.
func (r *Router) Handle(sessionID string, in Inbound) []Emission {
	session, ok := r.sessions.Get(sessionID)
	if !ok {
		r.logger.Warn("event from unknown session", zap.String("session", sessionID), zap.String("event", in.Event))
		return nil
	}

	var out []Emission
	switch in.Event {
	case EventCreateMemo:
		out = r.createMemo(session, in)
	case EventUpdateMemoPosition:
		out = r.updateMemoPosition(in)
	case EventUpdateMemoContent:
		out = r.updateMemoContent(in)
	case EventDeleteMemo:
		out = r.deleteMemo(session, in, rbac.ActionEdit)
	case EventCursorMove:
		out = r.cursorMove(session, in)
	case EventCreateBoard:
		out = r.createBoard(session, in)
	case EventDeleteBoard:
		out = r.deleteBoard(session, in)
	case EventAdminDeleteMemo:
		out = r.deleteMemo(session, in, rbac.ActionModerate)
	case EventAdminClearAllMemos:
		out = r.clearMemos(session, in)
	case EventSwitchBoard:
		out = r.switchBoard(in)
	case EventLikeMemo:
		out = r.likeMemo(session, in)
	case EventCommentMemo:
		out = r.commentMemo(session, in)
	case EventGetMemoLikes:
		if memoID := in.id("memoId", "id"); memoID != "" {
			out = []Emission{toSender(EventMemoLikes, r.likeList(memoID))}
		}
	case EventGetMemoComments:
		if memoID := in.id("memoId", "id"); memoID != "" {
			out = []Emission{toSender(EventMemoComments, r.commentList(memoID))}
		}
	default:
		r.logger.Debug("ignoring unknown event", zap.String("event", in.Event))
		return nil
	}
	r.metrics.EventHandled(in.Event)
	return out
}

func (r *Router) allowed(session Session, action rbac.Action, event string) bool {
	if rbac.Can(session.Role(), action) {
		return true
	}
	r.metrics.PermissionDenied(event)
	r.logger.Debug("permission denied",
		zap.String("session", session.ID),
		zap.String("event", event),
	)
	return false
}

func denied(event string) []Emission {
	return []Emission{toSender(EventPermissionError, permissionDenied(event))}
}

func (r *Router) createMemo(session Session, in Inbound) []Emission {
	var body struct {
		Content  *string  `json:"content"`
		Image    *string  `json:"image"`
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
		Color    *string  `json:"color"`
		BoardID  *string  `json:"boardId"`
		UserName *string  `json:"userName"`
	}
	in.decode(&body)

	memo := Memo{
		ID:        r.newID("memo"),
		Content:   deref(body.Content, ""),
		Image:     strings.TrimSpace(deref(body.Image, "")),
		X:         r.coordinate(body.X, CanvasWidth),
		Y:         r.coordinate(body.Y, CanvasHeight),
		Color:     nonEmpty(deref(body.Color, ""), DefaultMemoColor),
		BoardID:   DefaultBoardID,
		CreatedAt: r.now(),
		CreatedBy: session.ID,
		UserName:  strings.TrimSpace(deref(body.UserName, "")),
	}
	if boardID := strings.TrimSpace(deref(body.BoardID, "")); boardID != "" && r.state.HasBoard(boardID) {
		memo.BoardID = boardID
	}

	r.state.Memos.Insert(memo)
	r.persist(KeyMemos)
	r.indexer.IndexMemo(memo)
	return []Emission{toAll(EventNewMemo, memo)}
}

func (r *Router) coordinate(value *float64, limit float64) float64 {
	if value != nil {
		return *value
	}
	return r.rand.Float64() * limit
}

func (r *Router) updateMemoPosition(in Inbound) []Emission {
	var body struct {
		ID string   `json:"id"`
		X  *float64 `json:"x"`
		Y  *float64 `json:"y"`
	}
	in.decode(&body)
	if body.ID == "" {
		body.ID = in.id("id", "memoId")
	}

	memo, ok := r.state.Memos.Update(body.ID, func(m *Memo) {
		if body.X != nil {
			m.X = *body.X
		}
		if body.Y != nil {
			m.Y = *body.Y
		}
	})
	if !ok {
		return nil
	}
	r.persist(KeyMemos)
	return []Emission{toOthers(EventMemoPositionUpdated, PositionPayload{ID: memo.ID, X: memo.X, Y: memo.Y})}
}

func (r *Router) updateMemoContent(in Inbound) []Emission {
	var body struct {
		ID      string  `json:"id"`
		Content *string `json:"content"`
	}
	in.decode(&body)
	if body.ID == "" {
		body.ID = in.id("id", "memoId")
	}
	if body.Content == nil {
		return nil
	}

	memo, ok := r.state.Memos.Update(body.ID, func(m *Memo) {
		m.Content = *body.Content
	})
	if !ok {
		return nil
	}
	r.persist(KeyMemos)
	r.indexer.IndexMemo(memo)
	return []Emission{toOthers(EventMemoContentUpdated, ContentPayload{ID: memo.ID, Content: memo.Content})}
}

func (r *Router) deleteMemo(session Session, in Inbound, action rbac.Action) []Emission {
	if !r.allowed(session, action, in.Event) {
		return denied(in.Event)
	}
	memoID := in.id("id", "memoId")
	if memoID == "" {
		return nil
	}
	r.applyRemoval(r.state.RemoveMemo(memoID))
	return []Emission{toAll(EventMemoDeleted, MemoIDPayload{ID: memoID})}
}

func (r *Router) cursorMove(session Session, in Inbound) []Emission {
	var body struct {
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		BoardID string  `json:"boardId"`
	}
	in.decode(&body)
	return []Emission{toOthers(EventCursorMove, CursorPayload{
		UserID:   session.ID,
		UserName: session.Name,
		X:        body.X,
		Y:        body.Y,
		BoardID:  body.BoardID,
	})}
}

func (r *Router) createBoard(session Session, in Inbound) []Emission {
	if !r.allowed(session, rbac.ActionManageBoards, in.Event) {
		return denied(in.Event)
	}
	var body struct {
		Name        *string `json:"name"`
		Theme       *string `json:"theme"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"isPublic"`
	}
	in.decode(&body)

	board := Board{
		ID:          r.newID("board"),
		Name:        nonEmpty(strings.TrimSpace(deref(body.Name, "")), "Untitled Board"),
		Theme:       nonEmpty(strings.TrimSpace(deref(body.Theme, "")), DefaultBoardTheme),
		Description: strings.TrimSpace(deref(body.Description, "")),
		CreatedAt:   r.now(),
		CreatedBy:   session.ID,
		IsPublic:    deref(body.IsPublic, true),
	}
	r.state.Boards.Insert(board)
	r.persist(KeyBoards)
	return []Emission{toAll(EventBoardCreated, board)}
}

func (r *Router) deleteBoard(session Session, in Inbound) []Emission {
	boardID := in.id("boardId", "id")
	if !r.allowed(session, rbac.ActionManageBoards, in.Event) || boardID == DefaultBoardID {
		return denied(in.Event)
	}
	if boardID == "" {
		return nil
	}
	if removal, ok := r.state.RemoveBoard(boardID); ok {
		r.applyRemoval(removal)
	}
	return []Emission{toAll(EventBoardDeleted, BoardIDPayload{BoardID: boardID})}
}

func (r *Router) clearMemos(session Session, in Inbound) []Emission {
	if !r.allowed(session, rbac.ActionModerate, in.Event) {
		return denied(in.Event)
	}
	var removal Removal
	if boardID := in.id("boardId"); boardID != "" {
		removal = r.state.RemoveMemos(func(m Memo) bool { return m.BoardID == boardID })
	} else {
		removal = r.state.Clear()
	}
	r.applyRemoval(removal)
	r.logger.Info("memos cleared",
		zap.String("session", session.ID),
		zap.Int("memos", len(removal.Memos)),
	)
	return []Emission{toAll(EventLoadMemos, MemoListPayload{Memos: r.state.Memos.All()})}
}

func (r *Router) switchBoard(in Inbound) []Emission {
	boardID := nonEmpty(in.id("boardId", "id"), DefaultBoardID)
	return []Emission{toSender(EventLoadMemos, MemoListPayload{
		Memos:   r.state.MemosOnBoard(boardID),
		BoardID: boardID,
	})}
}

func (r *Router) likeMemo(session Session, in Inbound) []Emission {
	var body struct {
		UserName string `json:"userName"`
	}
	in.decode(&body)
	memoID := in.id("memoId", "id")
	if !r.state.HasMemo(memoID) {
		return nil
	}
	if r.debouncer.ShouldSuppress(session.ID, memoID, r.now()) {
		r.metrics.ReactionSuppressed()
		r.logger.Debug("like suppressed", zap.String("session", session.ID), zap.String("memo", memoID))
		return nil
	}

	mine := func(l Like) bool { return l.MemoID == memoID && l.UserID == session.ID }
	var out []Emission
	if removed := r.state.Likes.Remove(mine); len(removed) == 0 {
		like := Like{
			ID:        r.newID("like"),
			MemoID:    memoID,
			UserID:    session.ID,
			UserName:  nonEmpty(strings.TrimSpace(body.UserName), session.Name),
			CreatedAt: r.now(),
		}
		r.state.Likes.Insert(like)
		out = append(out, toAll(EventNewLike, like))
	}
	r.persist(KeyLikes)
	return append(out, toAll(EventMemoLikes, r.likeList(memoID)))
}

func (r *Router) commentMemo(session Session, in Inbound) []Emission {
	var body struct {
		MemoID   string `json:"memoId"`
		Content  string `json:"content"`
		UserName string `json:"userName"`
	}
	in.decode(&body)
	content := strings.TrimSpace(body.Content)
	switch {
	case content == "":
		return []Emission{toSender(EventCommentError, validationError("Comment cannot be empty"))}
	case utf8.RuneCountInString(content) > MaxCommentLength:
		return []Emission{toSender(EventCommentError, validationError("Comment must be 500 characters or fewer"))}
	}
	if !r.state.HasMemo(body.MemoID) {
		return nil
	}

	comment := Comment{
		ID:        r.newID("comment"),
		MemoID:    body.MemoID,
		UserID:    session.ID,
		UserName:  nonEmpty(strings.TrimSpace(body.UserName), session.Name),
		Content:   content,
		CreatedAt: r.now(),
	}
	r.state.Comments.Insert(comment)
	r.persist(KeyComments)
	return []Emission{
		toAll(EventNewComment, comment),
		toAll(EventMemoComments, r.commentList(body.MemoID)),
	}
}

func (r *Router) likeList(memoID string) LikeListPayload {
	return LikeListPayload{MemoID: memoID, Likes: r.state.LikesFor(memoID)}
}

func (r *Router) commentList(memoID string) CommentListPayload {
	comments := r.state.CommentsFor(memoID)
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return CommentListPayload{MemoID: memoID, Comments: comments}
}

// applyRemoval snapshots and de-indexes whatever a cascade removed.
func (r *Router) applyRemoval(removal Removal) {
	var keys []string
	if len(removal.Boards) > 0 {
		keys = append(keys, KeyBoards)
	}
	if len(removal.Memos) > 0 {
		keys = append(keys, KeyMemos, KeyLikes, KeyComments)
		r.indexer.DeleteMemos(removal.MemoIDs())
	}
	r.persist(keys...)
}

// persist writes the named collections through the gateway. Failures are
// logged and counted; the in-memory state stays authoritative.
func (r *Router) persist(keys ...string) {
	if r.gateway == nil {
		return
	}
	for _, key := range keys {
		value, ok := r.state.collection(key)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.saveTimeout)
		err := r.gateway.Save(ctx, key, value)
		cancel()
		if err != nil {
			r.metrics.SnapshotFailed(key)
			r.logger.Error("snapshot save failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// id extracts an identifier from a payload that is either a bare JSON string
// or an object carrying one of the given fields.
func (in Inbound) id(fields ...string) string {
	if len(in.Data) == 0 {
		return ""
	}
	var bare string
	if err := json.Unmarshal(in.Data, &bare); err == nil {
		return strings.TrimSpace(bare)
	}
	var object map[string]any
	if err := json.Unmarshal(in.Data, &object); err != nil {
		return ""
	}
	for _, field := range fields {
		if value, ok := object[field].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func deref[T any](value *T, fallback T) T {
	if value == nil {
		return fallback
	}
	return *value
}

func nonEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
