// Package rbac describes the two privilege tiers of the board and what each
// tier may do.
package rbac

type Role string
type Action string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

const (
	// ActionRead covers snapshots, board switching and like/comment lists.
	ActionRead Action = "read"
	// ActionEdit covers creating, moving, editing and deleting any memo.
	// There is no ownership check on memos.
	ActionEdit Action = "edit"
	// ActionReact covers likes and comments.
	ActionReact Action = "react"
	// ActionManageBoards covers creating and deleting boards.
	ActionManageBoards Action = "manage_boards"
	// ActionModerate covers admin memo deletion and clearing memos.
	ActionModerate Action = "moderate"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleParticipant:
		return action == ActionRead || action == ActionEdit || action == ActionReact
	default:
		return false
	}
}
