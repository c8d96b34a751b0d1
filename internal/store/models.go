package store

import "time"

type Member struct {
	ID                    string
	Email                 string
	DisplayName           string
	Role                  string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type ChatMessage struct {
	ID           string
	UserEmail    string
	UserName     string
	Message      string
	OffTheRecord bool
	CreatedAt    time.Time
}

type Issue struct {
	ID          string
	Title       string
	Description string
	Status      string
	CreatedBy   string
	CreatedAt   time.Time
}

type Vote struct {
	IssueID      string
	DirectorName string
	VoteType     string
	Weight       int
	Rationale    string
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Action item status machine: open -> in_progress -> completed, with
// cancelled reachable from open and in_progress. completed and cancelled
// are terminal.
const (
	ActionStatusOpen       = "open"
	ActionStatusInProgress = "in_progress"
	ActionStatusCompleted  = "completed"
	ActionStatusCancelled  = "cancelled"
)

type ActionItem struct {
	ID          string
	Title       string
	Description string
	AssignedTo  string
	DueDate     *time.Time
	Status      string
	IssueID     string
	CreatedBy   string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

type Director struct {
	DirectorName      string
	PositionType      string
	CollegeCode       string
	CollegeName       string
	PlatformStatement string
	PortraitURL       string
}

// VoteSummaryRow is one bucket of the server-side aggregate. It mirrors
// tally.Summary; the two are asserted equal in tests so client and server
// recomputations cannot drift.
type VoteSummaryRow struct {
	VoteType      string
	Count         int
	WeightedCount int
	Directors     []string
}

type MinutesEntry struct {
	ID         int64
	IssueID    string
	Rationale  string
	RecordedBy string
	CommitHash string
	RecordedAt time.Time
}
