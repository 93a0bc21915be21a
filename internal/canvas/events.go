package canvas

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventCreateMemo         = "create-memo"
	EventUpdateMemoPosition = "update-memo-position"
	EventUpdateMemoContent  = "update-memo-content"
	EventDeleteMemo         = "delete-memo"
	EventCursorMove         = "cursor-move"
	EventCreateBoard        = "create-board"
	EventDeleteBoard        = "delete-board"
	EventAdminDeleteMemo    = "admin-delete-memo"
	EventAdminClearAllMemos = "admin-clear-all-memos"
	EventSwitchBoard        = "switch-board"
	EventLikeMemo           = "like-memo"
	EventCommentMemo        = "comment-memo"
	EventGetMemoLikes       = "get-memo-likes"
	EventGetMemoComments    = "get-memo-comments"
	EventConnect            = "connect"
	EventDisconnect         = "disconnect"
)

// Outbound event names.
const (
	EventLoadMemos           = "load-memos"
	EventLoadBoards          = "load-boards"
	EventUserInfo            = "user-info"
	EventUserCount           = "user-count"
	EventNewMemo             = "new-memo"
	EventMemoPositionUpdated = "memo-position-updated"
	EventMemoContentUpdated  = "memo-content-updated"
	EventMemoDeleted         = "memo-deleted"
	EventBoardCreated        = "board-created"
	EventBoardDeleted        = "board-deleted"
	EventPermissionError     = "permission-error"
	EventNewLike             = "new-like"
	EventMemoLikes           = "memo-likes"
	EventCommentError        = "comment-error"
	EventNewComment          = "new-comment"
	EventMemoComments        = "memo-comments"
	EventUserDisconnected    = "user-disconnected"
)

// Inbound is a single event received from a session.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// decode fills target from the payload. Absent or malformed payloads leave
// target at its zero value so handlers fall back to defaults.
func (in Inbound) decode(target any) {
	if len(in.Data) == 0 {
		return
	}
	_ = json.Unmarshal(in.Data, target)
}

// Audience selects which sessions receive an emission.
type Audience int

const (
	AudienceAll Audience = iota
	AudienceOthers
	AudienceSender
)

func (a Audience) String() string {
	switch a {
	case AudienceAll:
		return "all"
	case AudienceOthers:
		return "others"
	case AudienceSender:
		return "sender"
	default:
		return fmt.Sprintf("audience(%d)", int(a))
	}
}

// Emission is one outbound event and who should receive it.
type Emission struct {
	Audience Audience
	Event    string
	Payload  any
}

// Frame is the wire shape of an outbound event.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (e Emission) Frame() Frame {
	return Frame{Event: e.Event, Data: e.Payload}
}

func toAll(event string, payload any) Emission {
	return Emission{Audience: AudienceAll, Event: event, Payload: payload}
}

func toOthers(event string, payload any) Emission {
	return Emission{Audience: AudienceOthers, Event: event, Payload: payload}
}

func toSender(event string, payload any) Emission {
	return Emission{Audience: AudienceSender, Event: event, Payload: payload}
}

// ErrorKind classifies the errors reported back to a single session.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission_denied"
	KindValidation       ErrorKind = "validation"
)

// EventError is the payload of permission-error and comment-error.
type EventError struct {
	Kind    ErrorKind `json:"-"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Action  string    `json:"action,omitempty"`
}

func (e *EventError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func permissionDenied(action string) *EventError {
	return &EventError{
		Kind:    KindPermissionDenied,
		Code:    "PERMISSION_DENIED",
		Message: "Administrator privileges are required",
		Action:  action,
	}
}

func validationError(message string) *EventError {
	return &EventError{
		Kind:    KindValidation,
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

// Payloads of outbound events that are not a bare model.

type MemoListPayload struct {
	Memos   []Memo `json:"memos"`
	BoardID string `json:"boardId,omitempty"`
}

type BoardListPayload struct {
	Boards []Board `json:"boards"`
}

type UserCountPayload struct {
	Count int `json:"count"`
}

type PositionPayload struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type ContentPayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type MemoIDPayload struct {
	ID string `json:"id"`
}

type BoardIDPayload struct {
	BoardID string `json:"boardId"`
}

type CursorPayload struct {
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	BoardID  string  `json:"boardId,omitempty"`
}

type LikeListPayload struct {
	MemoID string `json:"memoId"`
	Likes  []Like `json:"likes"`
}

type CommentListPayload struct {
	MemoID   string    `json:"memoId"`
	Comments []Comment `json:"comments"`
}

type UserDisconnectedPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}
