package store

import "encoding/json"

// Event families. Each family is one serialized stream: chat inserts,
// issue and vote changes (combined, they invalidate the same cards), and
// action item changes. No ordering is guaranteed across families.
const (
	FamilyChat        = "board:chat"
	FamilyIssues      = "board:issues"
	FamilyActionItems = "board:actions"
)

const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// ChangeEvent is the wire form of one row change, published to the
// family channel after the write commits.
type ChangeEvent struct {
	Table     string          `json:"table"`
	EventType string          `json:"event_type"`
	NewRow    json.RawMessage `json:"new_row,omitempty"`
	OldRow    json.RawMessage `json:"old_row,omitempty"`
}

// Publisher fans a change event out to every subscribed session. The
// store publishes best-effort after each successful write; a nil
// publisher disables fan-out (tests, offline tooling).
type Publisher interface {
	Publish(family string, event ChangeEvent)
}

func chatInsertEvent(message ChatMessage) ChangeEvent {
	raw, _ := json.Marshal(map[string]any{
		"id":             message.ID,
		"user_email":     message.UserEmail,
		"user_name":      message.UserName,
		"message":        message.Message,
		"off_the_record": message.OffTheRecord,
		"created_at":     message.CreatedAt,
	})
	return ChangeEvent{Table: "chat_messages", EventType: EventInsert, NewRow: raw}
}

func issueEvent(eventType, issueID string) ChangeEvent {
	raw, _ := json.Marshal(map[string]any{"id": issueID})
	return ChangeEvent{Table: "issues", EventType: eventType, NewRow: raw}
}

func voteEvent(eventType, issueID, directorName string) ChangeEvent {
	raw, _ := json.Marshal(map[string]any{"issue_id": issueID, "director_name": directorName})
	return ChangeEvent{Table: "votes", EventType: eventType, NewRow: raw}
}

func actionItemEvent(eventType, actionItemID string) ChangeEvent {
	raw, _ := json.Marshal(map[string]any{"id": actionItemID})
	return ChangeEvent{Table: "action_items", EventType: eventType, NewRow: raw}
}

// IssueIDFromEvent extracts the affected issue id from an issues-family
// event, whichever table it came from.
func IssueIDFromEvent(event ChangeEvent) string {
	var row struct {
		ID      string `json:"id"`
		IssueID string `json:"issue_id"`
	}
	if len(event.NewRow) > 0 {
		_ = json.Unmarshal(event.NewRow, &row)
	}
	if row.IssueID != "" {
		return row.IssueID
	}
	return row.ID
}
