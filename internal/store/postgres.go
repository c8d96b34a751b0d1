package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"boardroom/api/internal/util"
)

type PostgresStore struct {
	db        *sql.DB
	publisher Publisher
}

func NewPostgresStore(db *sql.DB, publisher Publisher) *PostgresStore {
	return &PostgresStore{db: db, publisher: publisher}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) publish(family string, event ChangeEvent) {
	if s.publisher != nil {
		s.publisher.Publish(family, event)
	}
}

// EnsureMemberExists inserts a roster row for the email if none exists and
// returns the row either way. Safe to call on every sign-in.
func (s *PostgresStore) EnsureMemberExists(ctx context.Context, email, displayName string) (Member, error) {
	member, err := s.GetMemberByEmail(ctx, email)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Member{}, fmt.Errorf("lookup member: %w", err)
	}

	insertMember := `
		INSERT INTO members (id, email, display_name, role)
		VALUES ($1, $2, $3, 'member')
		ON CONFLICT (email) DO UPDATE SET email=EXCLUDED.email
		RETURNING id, email, display_name, role, COALESCE(password_hash, ''), is_email_verified, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, insertMember, util.NewID("mem"), email, displayName).Scan(
		&member.ID,
		&member.Email,
		&member.DisplayName,
		&member.Role,
		&member.PasswordHash,
		&member.IsEmailVerified,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return Member{}, fmt.Errorf("insert member: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) CreateMember(ctx context.Context, member Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, email, display_name, role, password_hash, is_email_verified, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, member.ID, member.Email, member.DisplayName, member.Role, member.PasswordHash, member.IsEmailVerified, member.VerificationToken, member.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMemberByEmail(ctx context.Context, email string) (Member, error) {
	var member Member
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, COALESCE(password_hash, ''), is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM members
		WHERE LOWER(email)=LOWER($1)
	`, email).Scan(
		&member.ID,
		&member.Email,
		&member.DisplayName,
		&member.Role,
		&member.PasswordHash,
		&member.IsEmailVerified,
		&member.VerificationToken,
		&member.VerificationExpiresAt,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *PostgresStore) GetMemberByID(ctx context.Context, memberID string) (Member, error) {
	var member Member
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, COALESCE(password_hash, ''), is_email_verified, COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM members
		WHERE id=$1
	`, memberID).Scan(
		&member.ID,
		&member.Email,
		&member.DisplayName,
		&member.Role,
		&member.PasswordHash,
		&member.IsEmailVerified,
		&member.VerificationToken,
		&member.VerificationExpiresAt,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *PostgresStore) VerifyEmailToken(ctx context.Context, token string) (Member, error) {
	var member Member
	err := s.db.QueryRowContext(ctx, `
		UPDATE members
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
		RETURNING id, email, display_name, role
	`, token).Scan(&member.ID, &member.Email, &member.DisplayName, &member.Role)
	if err != nil {
		return Member{}, err
	}
	member.IsEmailVerified = true
	return member, nil
}

func (s *PostgresStore) SavePasswordReset(ctx context.Context, email, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token_hash, email, expires_at)
		VALUES ($1, LOWER($2), $3)
		ON CONFLICT (token_hash) DO UPDATE SET email=EXCLUDED.email, expires_at=EXCLUDED.expires_at, used_at=NULL
	`, tokenHash, email, expiresAt)
	if err != nil {
		return fmt.Errorf("save password reset: %w", err)
	}
	return nil
}

// ConsumePasswordReset marks the reset used and returns the member email it
// was issued for. Expired or already-used tokens come back as sql.ErrNoRows.
func (s *PostgresStore) ConsumePasswordReset(ctx context.Context, tokenHash string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, `
		UPDATE password_resets
		SET used_at=NOW()
		WHERE token_hash=$1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING email
	`, tokenHash).Scan(&email)
	if err != nil {
		return "", err
	}
	return email, nil
}

func (s *PostgresStore) UpdateMemberPassword(ctx context.Context, email, passwordHash string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE members SET password_hash=$2, updated_at=NOW() WHERE LOWER(email)=LOWER($1)
	`, email, passwordHash)
	if err != nil {
		return false, fmt.Errorf("update member password: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update member password rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, role, is_email_verified, created_at, updated_at
		FROM members
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Member, 0)
	for rows.Next() {
		var item Member
		if err := rows.Scan(&item.ID, &item.Email, &item.DisplayName, &item.Role, &item.IsEmailVerified, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateMemberRole(ctx context.Context, email, role string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE members SET role=$2, updated_at=NOW() WHERE LOWER(email)=LOWER($1)
	`, email, role)
	if err != nil {
		return false, fmt.Errorf("update member role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update member role rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) InsertChatMessage(ctx context.Context, message ChatMessage) (ChatMessage, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (id, user_email, user_name, message, off_the_record)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, message.ID, message.UserEmail, message.UserName, message.Message, message.OffTheRecord).Scan(&message.CreatedAt)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	s.publish(FamilyChat, chatInsertEvent(message))
	return message, nil
}

func (s *PostgresStore) ListChatMessages(ctx context.Context, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, user_name, message, off_the_record, created_at
		FROM (
			SELECT id, user_email, user_name, message, off_the_record, created_at
			FROM chat_messages
			ORDER BY created_at DESC
			LIMIT $1
		) latest
		ORDER BY created_at ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	items := make([]ChatMessage, 0)
	for rows.Next() {
		var item ChatMessage
		if err := rows.Scan(&item.ID, &item.UserEmail, &item.UserName, &item.Message, &item.OffTheRecord, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ChatMessageCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chat messages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertIssue(ctx context.Context, issue Issue) (Issue, error) {
	status := issue.Status
	if status == "" {
		status = "open"
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO issues (id, title, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING status, created_at
	`, issue.ID, issue.Title, issue.Description, status, issue.CreatedBy).Scan(&issue.Status, &issue.CreatedAt)
	if err != nil {
		return Issue{}, fmt.Errorf("insert issue: %w", err)
	}
	s.publish(FamilyIssues, issueEvent(EventInsert, issue.ID))
	return issue, nil
}

func (s *PostgresStore) ListIssues(ctx context.Context) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(description, ''), status, COALESCE(created_by, ''), created_at
		FROM issues
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	items := make([]Issue, 0)
	for rows.Next() {
		var item Issue
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.Status, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, issueID string) (Issue, error) {
	var item Issue
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(description, ''), status, COALESCE(created_by, ''), created_at
		FROM issues
		WHERE id=$1
	`, issueID).Scan(&item.ID, &item.Title, &item.Description, &item.Status, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return Issue{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateIssueStatus(ctx context.Context, issueID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE issues SET status=$2 WHERE id=$1`, issueID, status)
	if err != nil {
		return false, fmt.Errorf("update issue status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update issue status rows: %w", err)
	}
	if affected > 0 {
		s.publish(FamilyIssues, issueEvent(EventUpdate, issueID))
	}
	return affected > 0, nil
}

// UpsertVote records a director's vote on an issue. One row per
// (issue_id, director_name): a second submission replaces the first.
func (s *PostgresStore) UpsertVote(ctx context.Context, vote Vote) (Vote, error) {
	if vote.Weight < 1 {
		vote.Weight = 1
	}
	var inserted bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO votes (issue_id, director_name, vote_type, weight, rationale, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (issue_id, director_name)
		DO UPDATE SET vote_type=EXCLUDED.vote_type, weight=EXCLUDED.weight, rationale=EXCLUDED.rationale, notes=EXCLUDED.notes, updated_at=NOW()
		RETURNING created_at, updated_at, (xmax = 0)
	`, vote.IssueID, vote.DirectorName, vote.VoteType, vote.Weight, vote.Rationale, vote.Notes).Scan(&vote.CreatedAt, &vote.UpdatedAt, &inserted)
	if err != nil {
		return Vote{}, fmt.Errorf("upsert vote: %w", err)
	}

	eventType := EventUpdate
	if inserted {
		eventType = EventInsert
	}
	s.publish(FamilyIssues, voteEvent(eventType, vote.IssueID, vote.DirectorName))
	return vote, nil
}

func (s *PostgresStore) ListVotes(ctx context.Context, issueID string) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, director_name, vote_type, weight, COALESCE(rationale, ''), COALESCE(notes, ''), created_at, updated_at
		FROM votes
		WHERE issue_id=$1
		ORDER BY created_at ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	items := make([]Vote, 0)
	for rows.Next() {
		var item Vote
		if err := rows.Scan(&item.IssueID, &item.DirectorName, &item.VoteType, &item.Weight, &item.Rationale, &item.Notes, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return items, nil
}

// GetVoteSummary aggregates an issue's votes per vote type, server side.
// Buckets come back in first-ballot order and director lists in submission
// order, matching the in-memory tally of the same rows.
func (s *PostgresStore) GetVoteSummary(ctx context.Context, issueID string) ([]VoteSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vote_type,
			COUNT(*)::int,
			SUM(GREATEST(weight, 1))::int,
			ARRAY_AGG(director_name ORDER BY created_at ASC)
		FROM votes
		WHERE issue_id=$1
		GROUP BY vote_type
		ORDER BY MIN(created_at) ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("vote summary: %w", err)
	}
	defer rows.Close()

	items := make([]VoteSummaryRow, 0)
	for rows.Next() {
		var item VoteSummaryRow
		if err := rows.Scan(&item.VoteType, &item.Count, &item.WeightedCount, pq.Array(&item.Directors)); err != nil {
			return nil, fmt.Errorf("scan vote summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote summary: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListVoteTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM vote_types ORDER BY sort_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("list vote types: %w", err)
	}
	defer rows.Close()

	items := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan vote type: %w", err)
		}
		items = append(items, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote types: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertActionItem(ctx context.Context, item ActionItem) (ActionItem, error) {
	status := item.Status
	if status == "" {
		status = ActionStatusOpen
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO action_items (id, title, description, assigned_to, due_date, status, issue_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING status, created_at
	`, item.ID, item.Title, item.Description, item.AssignedTo, item.DueDate, status, item.IssueID, item.CreatedBy).Scan(&item.Status, &item.CreatedAt)
	if err != nil {
		return ActionItem{}, fmt.Errorf("insert action item: %w", err)
	}
	s.publish(FamilyActionItems, actionItemEvent(EventInsert, item.ID))
	return item, nil
}

func (s *PostgresStore) ListActionItems(ctx context.Context) ([]ActionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(description, ''), COALESCE(assigned_to, ''), due_date, status, COALESCE(issue_id, ''), COALESCE(created_by, ''), created_at, completed_at
		FROM action_items
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}
	defer rows.Close()

	items := make([]ActionItem, 0)
	for rows.Next() {
		var item ActionItem
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Description,
			&item.AssignedTo,
			&item.DueDate,
			&item.Status,
			&item.IssueID,
			&item.CreatedBy,
			&item.CreatedAt,
			&item.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan action item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetActionItem(ctx context.Context, actionItemID string) (ActionItem, error) {
	var item ActionItem
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(description, ''), COALESCE(assigned_to, ''), due_date, status, COALESCE(issue_id, ''), COALESCE(created_by, ''), created_at, completed_at
		FROM action_items
		WHERE id=$1
	`, actionItemID).Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.AssignedTo,
		&item.DueDate,
		&item.Status,
		&item.IssueID,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.CompletedAt,
	)
	if err != nil {
		return ActionItem{}, err
	}
	return item, nil
}

// SetActionItemStatus moves an action item to the given status.
// completed_at is stamped on entry into completed and cleared on any other
// status, so a reopened item never carries a stale completion time.
func (s *PostgresStore) SetActionItemStatus(ctx context.Context, actionItemID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE action_items
		SET status=$2,
			completed_at=CASE WHEN $2='completed' THEN NOW() ELSE NULL END
		WHERE id=$1
	`, actionItemID, status)
	if err != nil {
		return false, fmt.Errorf("set action item status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set action item status rows: %w", err)
	}
	if affected > 0 {
		s.publish(FamilyActionItems, actionItemEvent(EventUpdate, actionItemID))
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListDirectors(ctx context.Context) ([]Director, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.director_name, d.position_type, COALESCE(d.college_code, ''), COALESCE(c.college_name, ''), COALESCE(d.platform_statement, ''), COALESCE(d.portrait_url, '')
		FROM board_of_directors d
		LEFT JOIN colleges c ON c.college_code = d.college_code
		ORDER BY CASE WHEN d.position_type = 'heretic' THEN 1 ELSE 0 END ASC, d.college_code ASC, d.director_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list directors: %w", err)
	}
	defer rows.Close()

	items := make([]Director, 0)
	for rows.Next() {
		var item Director
		if err := rows.Scan(&item.DirectorName, &item.PositionType, &item.CollegeCode, &item.CollegeName, &item.PlatformStatement, &item.PortraitURL); err != nil {
			return nil, fmt.Errorf("scan director: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate directors: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDirector(ctx context.Context, directorName string) (Director, error) {
	var item Director
	err := s.db.QueryRowContext(ctx, `
		SELECT d.director_name, d.position_type, COALESCE(d.college_code, ''), COALESCE(c.college_name, ''), COALESCE(d.platform_statement, ''), COALESCE(d.portrait_url, '')
		FROM board_of_directors d
		LEFT JOIN colleges c ON c.college_code = d.college_code
		WHERE d.director_name=$1
	`, directorName).Scan(&item.DirectorName, &item.PositionType, &item.CollegeCode, &item.CollegeName, &item.PlatformStatement, &item.PortraitURL)
	if err != nil {
		return Director{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateDirectorPortrait(ctx context.Context, directorName, portraitURL string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE board_of_directors SET portrait_url=$2 WHERE director_name=$1
	`, directorName, portraitURL)
	if err != nil {
		return false, fmt.Errorf("update director portrait: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update director portrait rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) InsertMinutesEntry(ctx context.Context, entry MinutesEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO minutes_log (issue_id, rationale, recorded_by_name, commit_hash)
		VALUES ($1, $2, $3, $4)
	`, entry.IssueID, entry.Rationale, entry.RecordedBy, entry.CommitHash)
	if err != nil {
		return fmt.Errorf("insert minutes entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMinutesEntries(ctx context.Context, issueID string, limit int) ([]MinutesEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, rationale, recorded_by_name, commit_hash, recorded_at
		FROM minutes_log
		WHERE issue_id=$1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, issueID, limit)
	if err != nil {
		return nil, fmt.Errorf("list minutes entries: %w", err)
	}
	defer rows.Close()

	items := make([]MinutesEntry, 0)
	for rows.Next() {
		var item MinutesEntry
		if err := rows.Scan(&item.ID, &item.IssueID, &item.Rationale, &item.RecordedBy, &item.CommitHash, &item.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan minutes entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate minutes entries: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
