package rbac

type Role string
type Action string

const (
	// RoleAnonymous is the zero role of an unauthenticated viewer.
	RoleAnonymous Role = ""
	RoleMember    Role = "member"
	RoleObserver  Role = "observer"
	RoleAlpha     Role = "alpha"
	RoleCustodian Role = "custodian"
)

const (
	ActionViewBoard        Action = "view_board"
	ActionPostChat         Action = "post_chat"
	ActionPostOffRecord    Action = "post_off_record"
	ActionCreateIssue      Action = "create_issue"
	ActionCastVote         Action = "cast_vote"
	ActionCreateActionItem Action = "create_action_item"
	ActionUpdateActionItem Action = "update_action_item"
	ActionViewMembers      Action = "view_members"
	ActionChangeMemberRole Action = "change_member_role"
)

// Can is the single authorization rule table. The chat, issue, and
// action-item panels are readable by anyone including anonymous viewers;
// every mutation requires an authenticated membership; the roster and
// role changes are custodian-only; off-the-record chat is alpha-only.
func Can(role Role, action Action) bool {
	switch action {
	case ActionViewBoard:
		return true
	case ActionPostChat, ActionCreateIssue, ActionCastVote,
		ActionCreateActionItem, ActionUpdateActionItem:
		return role != RoleAnonymous
	case ActionPostOffRecord:
		return role == RoleAlpha
	case ActionViewMembers, ActionChangeMemberRole:
		return role == RoleCustodian
	default:
		return false
	}
}

// Normalize maps stored role strings onto the known set. An empty string
// stays anonymous; any unrecognized non-empty value degrades to member,
// the least privileged authenticated role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleObserver, RoleAlpha, RoleCustodian:
		return Role(role)
	case RoleAnonymous:
		return RoleAnonymous
	default:
		return RoleMember
	}
}
