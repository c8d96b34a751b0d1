package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"boardroom/api/internal/archive"
	"boardroom/api/internal/config"
	"boardroom/api/internal/store"
	"boardroom/api/internal/tally"
	"boardroom/api/internal/util"
)

type fakeStore struct {
	members   map[string]store.Member
	revoked   map[string]bool
	resets    map[string]string
	chat      []store.ChatMessage
	issues    map[string]store.Issue
	issueIDs  []string
	votes     map[string][]store.Vote
	voteTypes []string
	actions   map[string]store.ActionItem
	actionIDs []string
	directors []store.Director
	minutes   []store.MinutesEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:   make(map[string]store.Member),
		revoked:   make(map[string]bool),
		resets:    make(map[string]string),
		issues:    make(map[string]store.Issue),
		votes:     make(map[string][]store.Vote),
		voteTypes: []string{"for", "against", "abstain"},
		actions:   make(map[string]store.ActionItem),
	}
}

func (f *fakeStore) addMember(email, displayName, role string) store.Member {
	member := store.Member{
		ID:              util.NewID("mem"),
		Email:           email,
		DisplayName:     displayName,
		Role:            role,
		IsEmailVerified: true,
		CreatedAt:       time.Now(),
	}
	f.members[member.ID] = member
	return member
}

func (f *fakeStore) GetMemberByID(_ context.Context, memberID string) (store.Member, error) {
	member, ok := f.members[memberID]
	if !ok {
		return store.Member{}, sql.ErrNoRows
	}
	return member, nil
}

func (f *fakeStore) GetMemberByEmail(_ context.Context, email string) (store.Member, error) {
	for _, member := range f.members {
		if strings.EqualFold(member.Email, email) {
			return member, nil
		}
	}
	return store.Member{}, sql.ErrNoRows
}

func (f *fakeStore) EnsureMemberExists(_ context.Context, email, displayName string) (store.Member, error) {
	for _, member := range f.members {
		if strings.EqualFold(member.Email, email) {
			return member, nil
		}
	}
	member := store.Member{ID: util.NewID("mem"), Email: email, DisplayName: displayName, Role: "member"}
	f.members[member.ID] = member
	return member, nil
}

func (f *fakeStore) CreateMember(_ context.Context, member store.Member) error {
	for _, existing := range f.members {
		if strings.EqualFold(existing.Email, member.Email) {
			return errors.New("duplicate email")
		}
	}
	f.members[member.ID] = member
	return nil
}

func (f *fakeStore) VerifyEmailToken(_ context.Context, token string) (store.Member, error) {
	for id, member := range f.members {
		if member.VerificationToken == token && token != "" {
			member.IsEmailVerified = true
			member.VerificationToken = ""
			f.members[id] = member
			return member, nil
		}
	}
	return store.Member{}, sql.ErrNoRows
}

func (f *fakeStore) SavePasswordReset(_ context.Context, email, tokenHash string, _ time.Time) error {
	f.resets[tokenHash] = email
	return nil
}

func (f *fakeStore) ConsumePasswordReset(_ context.Context, tokenHash string) (string, error) {
	email, ok := f.resets[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	delete(f.resets, tokenHash)
	return email, nil
}

func (f *fakeStore) UpdateMemberPassword(_ context.Context, email, passwordHash string) (bool, error) {
	for id, member := range f.members {
		if strings.EqualFold(member.Email, email) {
			member.PasswordHash = passwordHash
			f.members[id] = member
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListMembers(_ context.Context) ([]store.Member, error) {
	members := make([]store.Member, 0, len(f.members))
	for _, member := range f.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Email < members[j].Email })
	return members, nil
}

func (f *fakeStore) UpdateMemberRole(_ context.Context, email, role string) (bool, error) {
	for id, member := range f.members {
		if strings.EqualFold(member.Email, email) {
			member.Role = role
			f.members[id] = member
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

func (f *fakeStore) InsertChatMessage(_ context.Context, message store.ChatMessage) (store.ChatMessage, error) {
	message.CreatedAt = time.Now()
	f.chat = append(f.chat, message)
	return message, nil
}

func (f *fakeStore) ListChatMessages(_ context.Context, limit int) ([]store.ChatMessage, error) {
	if limit <= 0 || limit > len(f.chat) {
		limit = len(f.chat)
	}
	out := make([]store.ChatMessage, limit)
	copy(out, f.chat[len(f.chat)-limit:])
	return out, nil
}

func (f *fakeStore) ChatMessageCount(_ context.Context) (int, error) {
	return len(f.chat), nil
}

func (f *fakeStore) InsertIssue(_ context.Context, issue store.Issue) (store.Issue, error) {
	if issue.Status == "" {
		issue.Status = "open"
	}
	issue.CreatedAt = time.Now()
	f.issues[issue.ID] = issue
	f.issueIDs = append(f.issueIDs, issue.ID)
	return issue, nil
}

func (f *fakeStore) ListIssues(_ context.Context) ([]store.Issue, error) {
	issues := make([]store.Issue, 0, len(f.issueIDs))
	for _, id := range f.issueIDs {
		issues = append(issues, f.issues[id])
	}
	return issues, nil
}

func (f *fakeStore) GetIssue(_ context.Context, issueID string) (store.Issue, error) {
	issue, ok := f.issues[issueID]
	if !ok {
		return store.Issue{}, sql.ErrNoRows
	}
	return issue, nil
}

func (f *fakeStore) UpdateIssueStatus(_ context.Context, issueID, status string) (bool, error) {
	issue, ok := f.issues[issueID]
	if !ok {
		return false, nil
	}
	issue.Status = status
	f.issues[issueID] = issue
	return true, nil
}

func (f *fakeStore) UpsertVote(_ context.Context, vote store.Vote) (store.Vote, error) {
	if vote.Weight < 1 {
		vote.Weight = 1
	}
	now := time.Now()
	votes := f.votes[vote.IssueID]
	for i, existing := range votes {
		if existing.DirectorName == vote.DirectorName {
			vote.CreatedAt = existing.CreatedAt
			vote.UpdatedAt = now
			votes[i] = vote
			return vote, nil
		}
	}
	vote.CreatedAt = now
	vote.UpdatedAt = now
	f.votes[vote.IssueID] = append(votes, vote)
	return vote, nil
}

func (f *fakeStore) ListVotes(_ context.Context, issueID string) ([]store.Vote, error) {
	out := make([]store.Vote, len(f.votes[issueID]))
	copy(out, f.votes[issueID])
	return out, nil
}

func (f *fakeStore) GetVoteSummary(_ context.Context, issueID string) ([]store.VoteSummaryRow, error) {
	summary := tally.Compute(tallyVotes(f.votes[issueID]))
	rows := make([]store.VoteSummaryRow, 0, len(summary))
	for _, bucket := range summary {
		rows = append(rows, store.VoteSummaryRow{
			VoteType:      bucket.VoteType,
			Count:         bucket.Count,
			WeightedCount: bucket.WeightedCount,
			Directors:     bucket.Directors,
		})
	}
	return rows, nil
}

func (f *fakeStore) ListVoteTypes(_ context.Context) ([]string, error) {
	return f.voteTypes, nil
}

func (f *fakeStore) InsertActionItem(_ context.Context, item store.ActionItem) (store.ActionItem, error) {
	item.CreatedAt = time.Now()
	f.actions[item.ID] = item
	f.actionIDs = append(f.actionIDs, item.ID)
	return item, nil
}

func (f *fakeStore) ListActionItems(_ context.Context) ([]store.ActionItem, error) {
	items := make([]store.ActionItem, 0, len(f.actionIDs))
	for _, id := range f.actionIDs {
		items = append(items, f.actions[id])
	}
	return items, nil
}

func (f *fakeStore) GetActionItem(_ context.Context, actionItemID string) (store.ActionItem, error) {
	item, ok := f.actions[actionItemID]
	if !ok {
		return store.ActionItem{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) SetActionItemStatus(_ context.Context, actionItemID, status string) (bool, error) {
	item, ok := f.actions[actionItemID]
	if !ok {
		return false, nil
	}
	item.Status = status
	if status == store.ActionStatusCompleted {
		now := time.Now()
		item.CompletedAt = &now
	} else {
		item.CompletedAt = nil
	}
	f.actions[actionItemID] = item
	return true, nil
}

func (f *fakeStore) ListDirectors(_ context.Context) ([]store.Director, error) {
	return f.directors, nil
}

func (f *fakeStore) GetDirector(_ context.Context, directorName string) (store.Director, error) {
	for _, director := range f.directors {
		if director.DirectorName == directorName {
			return director, nil
		}
	}
	return store.Director{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateDirectorPortrait(_ context.Context, directorName, portraitURL string) (bool, error) {
	for i, director := range f.directors {
		if director.DirectorName == directorName {
			f.directors[i].PortraitURL = portraitURL
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertMinutesEntry(_ context.Context, entry store.MinutesEntry) error {
	f.minutes = append(f.minutes, entry)
	return nil
}

func (f *fakeStore) ListMinutesEntries(_ context.Context, issueID string, _ int) ([]store.MinutesEntry, error) {
	entries := make([]store.MinutesEntry, 0)
	for _, entry := range f.minutes {
		if entry.IssueID == issueID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (f *fakeStore) Ping(_ context.Context) error { return nil }

type fakeSessions struct {
	sessions map[string]store.Member
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]store.Member)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, member store.Member, _ time.Time) error {
	f.sessions[tokenHash] = member
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.Member, error) {
	member, ok := f.sessions[tokenHash]
	if !ok {
		return store.Member{}, fmt.Errorf("session not found")
	}
	return member, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeSessions) Ping(_ context.Context) error { return nil }

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg:          testConfig(),
		store:        fs,
		sessions:     newFakeSessions(),
		coordinators: make(map[string]coordinatorEntry),
	}
}

func sessionWithRole(role string) Session {
	return Session{
		MemberID:  "mem_test",
		UserName:  "Marla",
		Email:     "marla@example.com",
		Role:      role,
		JTI:       "jti_test",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func assertDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, domainErr.Status, domainErr.Code)
	}
	return domainErr
}

func TestSendMessageOffRecordRequiresAlpha(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, sessionWithRole("member"), SendMessageInput{Message: "aside", OffTheRecord: true})
	assertDomainError(t, err, 403, "FORBIDDEN")

	payload, err := svc.SendMessage(ctx, sessionWithRole("alpha"), SendMessageInput{Message: "aside", OffTheRecord: true})
	if err != nil {
		t.Fatalf("alpha off-record send failed: %v", err)
	}
	if payload["off_the_record"] != true {
		t.Fatalf("expected off_the_record true, got %v", payload["off_the_record"])
	}

	payload, err = svc.SendMessage(ctx, sessionWithRole("member"), SendMessageInput{Message: "on record"})
	if err != nil {
		t.Fatalf("member send failed: %v", err)
	}
	if payload["off_the_record"] != false {
		t.Fatalf("expected off_the_record false, got %v", payload["off_the_record"])
	}

	_, err = svc.SendMessage(ctx, sessionWithRole(""), SendMessageInput{Message: "anon"})
	assertDomainError(t, err, 403, "FORBIDDEN")
}

func TestSendMessageRequiresText(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.SendMessage(context.Background(), sessionWithRole("member"), SendMessageInput{Message: "   "})
	assertDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestCastVoteUpsertReplacesPriorVote(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	alpha := sessionWithRole("alpha")

	issuePayload, err := svc.CreateIssue(ctx, alpha, CreateIssueInput{Title: "Budget ratification"})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	issueID := issuePayload["id"].(string)

	if _, err := svc.CastVote(ctx, alpha, issueID, CastVoteInput{DirectorName: "Quill", VoteType: "for"}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	result, err := svc.CastVote(ctx, alpha, issueID, CastVoteInput{DirectorName: "Quill", VoteType: "against", Weight: 3})
	if err != nil {
		t.Fatalf("replacing vote: %v", err)
	}

	votes := fs.votes[issueID]
	if len(votes) != 1 {
		t.Fatalf("expected 1 vote row after upsert, got %d", len(votes))
	}
	if votes[0].VoteType != "against" || votes[0].Weight != 3 {
		t.Fatalf("unexpected vote row: %+v", votes[0])
	}

	summary := result["summary"].([]map[string]any)
	if len(summary) != 1 {
		t.Fatalf("expected 1 summary bucket, got %d", len(summary))
	}
	if summary[0]["vote_type"] != "against" || summary[0]["weighted_count"] != 3 {
		t.Fatalf("unexpected summary: %+v", summary[0])
	}
}

func TestCastVoteValidation(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()
	member := sessionWithRole("member")

	issuePayload, err := svc.CreateIssue(ctx, member, CreateIssueInput{Title: "Quorum rules"})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	issueID := issuePayload["id"].(string)

	_, err = svc.CastVote(ctx, member, issueID, CastVoteInput{DirectorName: "Quill", VoteType: "maybe"})
	domainErr := assertDomainError(t, err, 422, "VALIDATION_ERROR")
	details := domainErr.Details.(map[string]any)
	allowed := details["allowed"].([]string)
	if len(allowed) != 3 {
		t.Fatalf("expected allowed vote types in details, got %v", details)
	}

	_, err = svc.CastVote(ctx, member, issueID, CastVoteInput{VoteType: "for"})
	assertDomainError(t, err, 422, "VALIDATION_ERROR")

	_, err = svc.CastVote(ctx, member, issueID, CastVoteInput{DirectorName: "Quill", VoteType: "for", Weight: -2})
	domainErr = assertDomainError(t, err, 422, "VALIDATION_ERROR")
	if domainErr.Message != "weight must be at least 1" {
		t.Fatalf("unexpected negative-weight message: %q", domainErr.Message)
	}

	_, err = svc.CastVote(ctx, member, "iss_missing", CastVoteInput{DirectorName: "Quill", VoteType: "for"})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for unknown issue, got %v", err)
	}

	// Omitted weight defaults to 1.
	result, err := svc.CastVote(ctx, member, issueID, CastVoteInput{DirectorName: "Quill", VoteType: "for"})
	if err != nil {
		t.Fatalf("vote without weight: %v", err)
	}
	vote := result["vote"].(map[string]any)
	if vote["weight"] != 1 {
		t.Fatalf("expected default weight 1, got %v", vote["weight"])
	}
}

func TestActionItemStatusTransitions(t *testing.T) {
	tests := []struct {
		from  string
		to    string
		valid bool
	}{
		{"open", "in_progress", true},
		{"open", "cancelled", true},
		{"open", "completed", false},
		{"in_progress", "completed", true},
		{"in_progress", "cancelled", true},
		{"in_progress", "open", false},
		{"completed", "open", false},
		{"completed", "in_progress", false},
		{"cancelled", "in_progress", false},
		{"cancelled", "completed", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			fs := newFakeStore()
			svc := newTestService(fs)
			ctx := context.Background()
			member := sessionWithRole("member")

			item, err := fs.InsertActionItem(ctx, store.ActionItem{ID: "act_1", Title: "Circulate minutes", Status: tt.from})
			if err != nil {
				t.Fatalf("seed action item: %v", err)
			}

			payload, err := svc.UpdateActionItemStatus(ctx, member, item.ID, tt.to)
			if tt.valid {
				if err != nil {
					t.Fatalf("expected transition %s -> %s to pass: %v", tt.from, tt.to, err)
				}
				if payload["status"] != tt.to {
					t.Fatalf("expected status %q, got %v", tt.to, payload["status"])
				}
				if tt.to == store.ActionStatusCompleted {
					if _, ok := payload["completed_at"]; !ok {
						t.Fatal("expected completed_at to be set on completion")
					}
				}
			} else {
				assertDomainError(t, err, 422, "VALIDATION_ERROR")
				if fs.actions[item.ID].Status != tt.from {
					t.Fatalf("rejected transition must not change status, got %q", fs.actions[item.ID].Status)
				}
			}
		})
	}
}

func TestMinutesHistoryServedFromLogWithoutArchive(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	issue, err := fs.InsertIssue(ctx, store.Issue{ID: "iss_1", Title: "Adopt bylaws"})
	if err != nil {
		t.Fatalf("insert issue: %v", err)
	}

	_, err = svc.MinutesHistory(ctx, issue.ID, 20)
	assertDomainError(t, err, 404, "NOT_FOUND")

	entries := []store.MinutesEntry{
		{IssueID: issue.ID, Rationale: "First reading", RecordedBy: "Marla", CommitHash: "aaa111"},
		{IssueID: issue.ID, Rationale: "Second reading", RecordedBy: "Marla", CommitHash: "bbb222"},
	}
	for _, entry := range entries {
		if err := fs.InsertMinutesEntry(ctx, entry); err != nil {
			t.Fatalf("insert minutes entry: %v", err)
		}
	}

	payload, err := svc.MinutesHistory(ctx, issue.ID, 20)
	if err != nil {
		t.Fatalf("minutes history: %v", err)
	}
	history, ok := payload["history"].([]map[string]any)
	if !ok {
		t.Fatalf("unexpected history payload: %#v", payload["history"])
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0]["hash"] != "aaa111" || history[0]["author"] != "Marla" || history[0]["message"] != "First reading" {
		t.Errorf("unexpected first entry: %#v", history[0])
	}
}

func TestMinutesAtRevisionReadsOlderReading(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	svc.archive = archive.New(t.TempDir())
	ctx := context.Background()

	issue, err := fs.InsertIssue(ctx, store.Issue{ID: "iss_1", Title: "Adopt bylaws"})
	if err != nil {
		t.Fatalf("insert issue: %v", err)
	}

	first := archive.Minutes{IssueID: issue.ID, Title: issue.Title, Status: "open", Rationale: "First reading"}
	if err := svc.archive.EnsureIssueRepo(issue.ID, first, "Marla"); err != nil {
		t.Fatalf("ensure repo: %v", err)
	}
	firstCommit, err := svc.archive.CommitMinutes(issue.ID, first, "Marla", "Record minutes: Adopt bylaws")
	if err != nil {
		t.Fatalf("commit first reading: %v", err)
	}
	second := first
	second.Rationale = "Second reading"
	if _, err := svc.archive.CommitMinutes(issue.ID, second, "Marla", "Record minutes: Adopt bylaws"); err != nil {
		t.Fatalf("commit second reading: %v", err)
	}

	payload, err := svc.MinutesAtRevision(ctx, issue.ID, firstCommit.Hash)
	if err != nil {
		t.Fatalf("minutes at revision: %v", err)
	}
	if payload["rationale"] != "First reading" {
		t.Errorf("expected the first reading at %s, got %#v", firstCommit.Hash, payload["rationale"])
	}

	_, err = svc.MinutesAtRevision(ctx, issue.ID, "ffffffffffffffffffffffffffffffffffffffff")
	assertDomainError(t, err, 404, "NOT_FOUND")
}

func TestRosterIsCustodianOnly(t *testing.T) {
	fs := newFakeStore()
	fs.addMember("quill@example.com", "Quill", "member")
	svc := newTestService(fs)
	ctx := context.Background()

	_, err := svc.Members(ctx, sessionWithRole("member"))
	assertDomainError(t, err, 403, "FORBIDDEN")
	_, err = svc.Members(ctx, sessionWithRole("alpha"))
	assertDomainError(t, err, 403, "FORBIDDEN")

	members, err := svc.Members(ctx, sessionWithRole("custodian"))
	if err != nil {
		t.Fatalf("custodian list members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}

	_, err = svc.ChangeMemberRole(ctx, sessionWithRole("member"), "quill@example.com", "alpha")
	assertDomainError(t, err, 403, "FORBIDDEN")

	_, err = svc.ChangeMemberRole(ctx, sessionWithRole("custodian"), "quill@example.com", "chairman")
	assertDomainError(t, err, 422, "VALIDATION_ERROR")

	_, err = svc.ChangeMemberRole(ctx, sessionWithRole("custodian"), "ghost@example.com", "alpha")
	assertDomainError(t, err, 404, "NOT_FOUND")

	payload, err := svc.ChangeMemberRole(ctx, sessionWithRole("custodian"), "quill@example.com", "alpha")
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if payload["role"] != "alpha" {
		t.Fatalf("expected role alpha, got %v", payload["role"])
	}
}

func TestAddMemberAssignsRole(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	_, err := svc.AddMember(ctx, sessionWithRole("member"), AddMemberInput{Email: "new@example.com"})
	assertDomainError(t, err, 403, "FORBIDDEN")

	payload, err := svc.AddMember(ctx, sessionWithRole("custodian"), AddMemberInput{
		Email:       "New@Example.com",
		DisplayName: "Newcomer",
		Role:        "observer",
	})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if payload["email"] != "new@example.com" {
		t.Fatalf("expected lowercased email, got %v", payload["email"])
	}
	if payload["role"] != "observer" {
		t.Fatalf("expected role observer, got %v", payload["role"])
	}

	_, err = svc.AddMember(ctx, sessionWithRole("custodian"), AddMemberInput{Email: "not-an-email"})
	assertDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestCapabilitiesFollowPolicyTable(t *testing.T) {
	anon := Capabilities("")
	if !anon["view_board"] {
		t.Fatal("anonymous must keep view_board")
	}
	if anon["post_chat"] || anon["change_member_role"] {
		t.Fatalf("anonymous must not mutate: %v", anon)
	}

	member := Capabilities("member")
	if !member["post_chat"] || !member["cast_vote"] {
		t.Fatalf("member capabilities wrong: %v", member)
	}
	if member["post_off_record"] || member["view_members"] {
		t.Fatalf("member over-privileged: %v", member)
	}

	alpha := Capabilities("alpha")
	if !alpha["post_off_record"] {
		t.Fatal("alpha must have post_off_record")
	}
	if alpha["change_member_role"] {
		t.Fatal("alpha must not manage the roster")
	}

	custodian := Capabilities("custodian")
	if !custodian["view_members"] || !custodian["change_member_role"] {
		t.Fatalf("custodian capabilities wrong: %v", custodian)
	}
	if custodian["post_off_record"] {
		t.Fatal("custodian must not post off the record")
	}
}

func TestBoardSnapshotFiltersOffRecordForAnonymous(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	if _, err := svc.SendMessage(ctx, sessionWithRole("member"), SendMessageInput{Message: "public note"}); err != nil {
		t.Fatalf("send public: %v", err)
	}
	if _, err := svc.SendMessage(ctx, sessionWithRole("alpha"), SendMessageInput{Message: "private aside", OffTheRecord: true}); err != nil {
		t.Fatalf("send off-record: %v", err)
	}

	anonSnapshot, err := svc.BoardSnapshot(ctx, "")
	if err != nil {
		t.Fatalf("anonymous snapshot: %v", err)
	}
	if got := len(anonSnapshot["chat"].([]map[string]any)); got != 1 {
		t.Fatalf("anonymous viewer should see 1 message, got %d", got)
	}
	if anonSnapshot["chat_count"] != 2 {
		t.Fatalf("chat_count should stay 2, got %v", anonSnapshot["chat_count"])
	}

	memberSnapshot, err := svc.BoardSnapshot(ctx, "member")
	if err != nil {
		t.Fatalf("member snapshot: %v", err)
	}
	if got := len(memberSnapshot["chat"].([]map[string]any)); got != 2 {
		t.Fatalf("member should see both messages, got %d", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	fs := newFakeStore()
	member := fs.addMember("marla@example.com", "Marla", "member")
	svc := newTestService(fs)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, member.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" || session.JTI == "" {
		t.Fatalf("incomplete session: %+v", session)
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if parsed.MemberID != member.ID || parsed.Role != "member" {
		t.Fatalf("wrong session identity: %+v", parsed)
	}
	// The email claim is required at parse time, so a token missing it
	// would never authenticate.
	if parsed.Email != "marla@example.com" {
		t.Fatalf("email not carried through token, got %q", parsed.Email)
	}

	refreshed, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Token == session.Token {
		t.Fatal("refresh must mint a new access token")
	}
	// Refresh tokens are single use.
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Fatal("expected replayed refresh token to fail")
	}

	if err := svc.Logout(ctx, refreshed, refreshed.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, refreshed.Token); err == nil {
		t.Fatal("expected revoked access token to be rejected")
	}
	if _, err := svc.Refresh(ctx, refreshed.RefreshToken); err == nil {
		t.Fatal("expected revoked refresh token to fail")
	}
}
