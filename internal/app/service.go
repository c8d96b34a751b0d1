package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"boardroom/api/internal/archive"
	"boardroom/api/internal/auth"
	"boardroom/api/internal/authpw"
	"boardroom/api/internal/config"
	"boardroom/api/internal/export"
	"boardroom/api/internal/portraits"
	"boardroom/api/internal/rbac"
	"boardroom/api/internal/realtime"
	"boardroom/api/internal/search"
	"boardroom/api/internal/session"
	"boardroom/api/internal/store"
	"boardroom/api/internal/tally"
	"boardroom/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	MemberID     string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type SendMessageInput struct {
	Message      string `json:"message"`
	OffTheRecord bool   `json:"off_the_record"`
}

type CreateIssueInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type CastVoteInput struct {
	DirectorName string `json:"director_name"`
	VoteType     string `json:"vote_type"`
	Weight       int    `json:"weight"`
	Rationale    string `json:"rationale"`
	Notes        string `json:"notes"`
}

type CreateActionItemInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
	DueDate     string `json:"due_date"`
	IssueID     string `json:"issue_id"`
}

type AddMemberInput struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type RecordMinutesInput struct {
	Rationale string `json:"rationale"`
}

type dataStore interface {
	GetMemberByID(context.Context, string) (store.Member, error)
	EnsureMemberExists(context.Context, string, string) (store.Member, error)
	ListMembers(context.Context) ([]store.Member, error)
	UpdateMemberRole(context.Context, string, string) (bool, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertChatMessage(context.Context, store.ChatMessage) (store.ChatMessage, error)
	ListChatMessages(context.Context, int) ([]store.ChatMessage, error)
	ChatMessageCount(context.Context) (int, error)
	InsertIssue(context.Context, store.Issue) (store.Issue, error)
	ListIssues(context.Context) ([]store.Issue, error)
	GetIssue(context.Context, string) (store.Issue, error)
	UpdateIssueStatus(context.Context, string, string) (bool, error)
	UpsertVote(context.Context, store.Vote) (store.Vote, error)
	ListVotes(context.Context, string) ([]store.Vote, error)
	GetVoteSummary(context.Context, string) ([]store.VoteSummaryRow, error)
	ListVoteTypes(context.Context) ([]string, error)
	InsertActionItem(context.Context, store.ActionItem) (store.ActionItem, error)
	ListActionItems(context.Context) ([]store.ActionItem, error)
	GetActionItem(context.Context, string) (store.ActionItem, error)
	SetActionItemStatus(context.Context, string, string) (bool, error)
	ListDirectors(context.Context) ([]store.Director, error)
	GetDirector(context.Context, string) (store.Director, error)
	UpdateDirectorPortrait(context.Context, string, string) (bool, error)
	InsertMinutesEntry(context.Context, store.MinutesEntry) error
	ListMinutesEntries(context.Context, string, int) ([]store.MinutesEntry, error)
	Ping(context.Context) error
}

type refreshStore interface {
	SaveRefreshSession(context.Context, string, store.Member, time.Time) error
	LookupRefreshSession(context.Context, string) (store.Member, error)
	RevokeRefreshSession(context.Context, string) error
	Ping(context.Context) error
}

type coordinatorEntry struct {
	coordinator *realtime.Coordinator
	expiresAt   time.Time
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  refreshStore
	authPW    *authpw.Service
	search    *search.Service
	portraits *portraits.Service
	archive   *archive.Service
	export    *export.Service
	bus       *realtime.RedisBus

	coordMu      sync.Mutex
	coordinators map[string]coordinatorEntry
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, authPW *authpw.Service, searchSvc *search.Service, portraitSvc *portraits.Service, archiveSvc *archive.Service, exportSvc *export.Service, bus *realtime.RedisBus) *Service {
	return &Service{
		cfg:          cfg,
		store:        dataStore,
		sessions:     sessions,
		authPW:       authPW,
		search:       searchSvc,
		portraits:    portraitSvc,
		archive:      archiveSvc,
		export:       exportSvc,
		bus:          bus,
		coordinators: make(map[string]coordinatorEntry),
	}
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authPW
}

// Sessions

func (s *Service) CreateSession(ctx context.Context, memberID string) (Session, error) {
	member, err := s.store.GetMemberByID(ctx, memberID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, member)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	member, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, member)
}

func (s *Service) issueSession(ctx context.Context, member store.Member) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   member.ID,
		Email: member.Email,
		Name:  member.DisplayName,
		Role:  member.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), member, refreshExpires); err != nil {
		return Session{}, err
	}

	s.startCoordinator(jti, expiresAt)

	return Session{
		Token:        token,
		RefreshToken: refresh,
		MemberID:     member.ID,
		UserName:     member.DisplayName,
		Email:        member.Email,
		Role:         member.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// startCoordinator subscribes a fresh realtime coordinator for the
// session and registers it under the token's JTI. Realtime is an
// enhancement: a subscribe failure degrades the session to plain
// request/response instead of failing the sign-in.
func (s *Service) startCoordinator(jti string, sessionExpiresAt time.Time) {
	if s.bus == nil {
		return
	}
	coordinator := realtime.NewCoordinator(s.bus, s)
	if err := coordinator.Start(context.Background()); err != nil {
		log.Printf(`{"component":"realtime","op":"start","error":%q}`, err.Error())
		return
	}

	s.coordMu.Lock()
	defer s.coordMu.Unlock()
	for id, entry := range s.coordinators {
		if time.Now().After(entry.expiresAt) {
			entry.coordinator.Close()
			delete(s.coordinators, id)
		}
	}
	s.coordinators[jti] = coordinatorEntry{
		coordinator: coordinator,
		expiresAt:   sessionExpiresAt.Add(time.Minute),
	}
}

// Coordinator returns the realtime coordinator attached to a session
// token, if one is running.
func (s *Service) Coordinator(jti string) (*realtime.Coordinator, bool) {
	s.coordMu.Lock()
	defer s.coordMu.Unlock()
	entry, ok := s.coordinators[jti]
	if !ok {
		return nil, false
	}
	return entry.coordinator, true
}

func (s *Service) closeCoordinator(jti string) {
	s.coordMu.Lock()
	entry, ok := s.coordinators[jti]
	if ok {
		delete(s.coordinators, jti)
	}
	s.coordMu.Unlock()
	if ok {
		entry.coordinator.Close()
	}
}

// CloseAllCoordinators shuts down every session stream. Called on
// server shutdown.
func (s *Service) CloseAllCoordinators() {
	s.coordMu.Lock()
	entries := make([]coordinatorEntry, 0, len(s.coordinators))
	for id, entry := range s.coordinators {
		entries = append(entries, entry)
		delete(s.coordinators, id)
	}
	s.coordMu.Unlock()
	for _, entry := range entries {
		entry.coordinator.Close()
	}
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	member, err := s.store.GetMemberByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		MemberID:  member.ID,
		UserName:  member.DisplayName,
		Email:     member.Email,
		Role:      member.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout tears the session down. The realtime subscriptions go first:
// only after the coordinator has fully closed are the tokens revoked,
// so no event callback can observe a session mid-release.
func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		s.closeCoordinator(sess.JTI)
		_ = s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Capabilities is the gated-UI snapshot for a role: one entry per
// action, recomputed from the policy table on every session change.
func Capabilities(role string) map[string]bool {
	r := rbac.Normalize(role)
	actions := []rbac.Action{
		rbac.ActionViewBoard,
		rbac.ActionPostChat,
		rbac.ActionPostOffRecord,
		rbac.ActionCreateIssue,
		rbac.ActionCastVote,
		rbac.ActionCreateActionItem,
		rbac.ActionUpdateActionItem,
		rbac.ActionViewMembers,
		rbac.ActionChangeMemberRole,
	}
	caps := make(map[string]bool, len(actions))
	for _, action := range actions {
		caps[string(action)] = rbac.Can(r, action)
	}
	return caps
}

// Board

// BoardSnapshot is the public board read: chat log, issue cards with
// tallies, action items, and the roster. Off-the-record messages are
// dropped for anonymous viewers.
func (s *Service) BoardSnapshot(ctx context.Context, role string) (map[string]any, error) {
	messages, err := s.store.ListChatMessages(ctx, 200)
	if err != nil {
		return nil, err
	}
	count, err := s.store.ChatMessageCount(ctx)
	if err != nil {
		return nil, err
	}
	cards, err := s.LoadIssueCards(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListActionItems(ctx)
	if err != nil {
		return nil, err
	}
	directors, err := s.store.ListDirectors(ctx)
	if err != nil {
		return nil, err
	}

	authenticated := rbac.Normalize(role) != rbac.RoleAnonymous
	chat := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		if message.OffTheRecord && !authenticated {
			continue
		}
		chat = append(chat, chatMessagePayload(message))
	}

	issuePayloads := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		issuePayloads = append(issuePayloads, issueCardPayload(card))
	}
	actionPayloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		actionPayloads = append(actionPayloads, actionItemPayload(item))
	}
	directorPayloads := make([]map[string]any, 0, len(directors))
	for _, director := range directors {
		directorPayloads = append(directorPayloads, directorPayload(director))
	}

	return map[string]any{
		"chat":          chat,
		"chat_count":    count,
		"issues":        issuePayloads,
		"action_items":  actionPayloads,
		"directors":     directorPayloads,
		"capabilities":  Capabilities(role),
		"authenticated": authenticated,
	}, nil
}

// Chat

func (s *Service) SendMessage(ctx context.Context, sess Session, input SendMessageInput) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionPostChat) {
		return nil, forbiddenError("Forbidden")
	}
	text := strings.TrimSpace(input.Message)
	if text == "" {
		return nil, validationError("message is required", nil)
	}
	if input.OffTheRecord && !s.Can(sess.Role, rbac.ActionPostOffRecord) {
		return nil, forbiddenError("Off-the-record messages require the alpha seat")
	}

	message, err := s.store.InsertChatMessage(ctx, store.ChatMessage{
		ID:           util.NewID("msg"),
		UserEmail:    sess.Email,
		UserName:     sess.UserName,
		Message:      text,
		OffTheRecord: input.OffTheRecord,
	})
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexMessage(search.MessageRecord{
			ID:           message.ID,
			UserName:     message.UserName,
			Message:      message.Message,
			OffTheRecord: message.OffTheRecord,
		})
	}
	return chatMessagePayload(message), nil
}

func (s *Service) ChatHistory(ctx context.Context, role string, limit int) (map[string]any, error) {
	messages, err := s.store.ListChatMessages(ctx, limit)
	if err != nil {
		return nil, err
	}
	count, err := s.store.ChatMessageCount(ctx)
	if err != nil {
		return nil, err
	}
	authenticated := rbac.Normalize(role) != rbac.RoleAnonymous
	payload := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		if message.OffTheRecord && !authenticated {
			continue
		}
		payload = append(payload, chatMessagePayload(message))
	}
	return map[string]any{"messages": payload, "count": count}, nil
}

// Issues and votes

func (s *Service) CreateIssue(ctx context.Context, sess Session, input CreateIssueInput) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionCreateIssue) {
		return nil, forbiddenError("Forbidden")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required", nil)
	}

	issue, err := s.store.InsertIssue(ctx, store.Issue{
		ID:          util.NewID("iss"),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		CreatedBy:   sess.UserName,
	})
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		if err := s.archive.EnsureIssueRepo(issue.ID, archive.Minutes{
			IssueID: issue.ID,
			Title:   issue.Title,
			Status:  issue.Status,
		}, sess.UserName); err != nil {
			log.Printf(`{"component":"archive","op":"ensure","issue_id":%q,"error":%q}`, issue.ID, err.Error())
		}
	}
	if s.search != nil {
		s.search.IndexIssue(search.IssueRecord{
			ID:          issue.ID,
			Title:       issue.Title,
			Description: issue.Description,
			Status:      issue.Status,
		})
	}
	return issuePayload(issue), nil
}

func (s *Service) Issues(ctx context.Context) ([]map[string]any, error) {
	cards, err := s.LoadIssueCards(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		payload = append(payload, issueCardPayload(card))
	}
	return payload, nil
}

func (s *Service) UpdateIssueStatus(ctx context.Context, sess Session, issueID, status string) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionCreateIssue) {
		return nil, forbiddenError("Forbidden")
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, validationError("status is required", nil)
	}
	updated, err := s.store.UpdateIssueStatus(ctx, issueID, status)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, notFoundError("Issue not found")
	}
	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexIssue(search.IssueRecord{
			ID:          issue.ID,
			Title:       issue.Title,
			Description: issue.Description,
			Status:      issue.Status,
		})
	}
	return issuePayload(issue), nil
}

func (s *Service) CastVote(ctx context.Context, sess Session, issueID string, input CastVoteInput) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionCastVote) {
		return nil, forbiddenError("Forbidden")
	}
	directorName := strings.TrimSpace(input.DirectorName)
	if directorName == "" {
		return nil, validationError("director_name is required", nil)
	}
	// Weight 0 means the caller omitted it and gets the default of 1;
	// only explicit negatives are rejected.
	if input.Weight < 0 {
		return nil, validationError("weight must be at least 1", nil)
	}

	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}

	voteTypes, err := s.store.ListVoteTypes(ctx)
	if err != nil {
		return nil, err
	}
	voteType := strings.TrimSpace(input.VoteType)
	if !containsString(voteTypes, voteType) {
		return nil, validationError("unknown vote type", map[string]any{"allowed": voteTypes})
	}

	weight := input.Weight
	if weight == 0 {
		weight = 1
	}
	vote, err := s.store.UpsertVote(ctx, store.Vote{
		IssueID:      issueID,
		DirectorName: directorName,
		VoteType:     voteType,
		Weight:       weight,
		Rationale:    strings.TrimSpace(input.Rationale),
		Notes:        strings.TrimSpace(input.Notes),
	})
	if err != nil {
		return nil, err
	}

	summary, err := s.store.GetVoteSummary(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"vote":    votePayload(vote),
		"summary": summaryPayload(summary),
	}, nil
}

func (s *Service) VoteSummary(ctx context.Context, issueID string) (map[string]any, error) {
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	summary, err := s.store.GetVoteSummary(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue_id": issueID, "summary": summaryPayload(summary)}, nil
}

// Action items

// actionTransitions is the status machine: completed and cancelled are
// terminal.
var actionTransitions = map[string][]string{
	store.ActionStatusOpen:       {store.ActionStatusInProgress, store.ActionStatusCancelled},
	store.ActionStatusInProgress: {store.ActionStatusCompleted, store.ActionStatusCancelled},
	store.ActionStatusCompleted:  {},
	store.ActionStatusCancelled:  {},
}

func validTransition(from, to string) bool {
	return containsString(actionTransitions[from], to)
}

func (s *Service) CreateActionItem(ctx context.Context, sess Session, input CreateActionItemInput) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionCreateActionItem) {
		return nil, forbiddenError("Forbidden")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required", nil)
	}

	var dueDate *time.Time
	if trimmed := strings.TrimSpace(input.DueDate); trimmed != "" {
		parsed, err := time.Parse(time.RFC3339, trimmed)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", trimmed)
		}
		if err != nil {
			return nil, validationError("due_date must be RFC 3339 or YYYY-MM-DD", nil)
		}
		dueDate = &parsed
	}

	if issueID := strings.TrimSpace(input.IssueID); issueID != "" {
		if _, err := s.store.GetIssue(ctx, issueID); err != nil {
			return nil, err
		}
	}

	item, err := s.store.InsertActionItem(ctx, store.ActionItem{
		ID:          util.NewID("act"),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		AssignedTo:  strings.TrimSpace(input.AssignedTo),
		DueDate:     dueDate,
		Status:      store.ActionStatusOpen,
		IssueID:     strings.TrimSpace(input.IssueID),
		CreatedBy:   sess.UserName,
	})
	if err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexAction(search.ActionRecord{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			AssignedTo:  item.AssignedTo,
			Status:      item.Status,
		})
	}
	return actionItemPayload(item), nil
}

func (s *Service) ActionItems(ctx context.Context) ([]map[string]any, error) {
	items, err := s.store.ListActionItems(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, actionItemPayload(item))
	}
	return payload, nil
}

func (s *Service) UpdateActionItemStatus(ctx context.Context, sess Session, actionItemID, status string) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionUpdateActionItem) {
		return nil, forbiddenError("Forbidden")
	}
	item, err := s.store.GetActionItem(ctx, actionItemID)
	if err != nil {
		return nil, err
	}
	if !validTransition(item.Status, status) {
		return nil, validationError("invalid status transition", map[string]any{
			"from":    item.Status,
			"to":      status,
			"allowed": actionTransitions[item.Status],
		})
	}
	updated, err := s.store.SetActionItemStatus(ctx, actionItemID, status)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, notFoundError("Action item not found")
	}
	item, err = s.store.GetActionItem(ctx, actionItemID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexAction(search.ActionRecord{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			AssignedTo:  item.AssignedTo,
			Status:      item.Status,
		})
	}
	return actionItemPayload(item), nil
}

// ActivateActionItemsView flips the sync gate for the session's action
// item events. Without a running coordinator there is nothing to gate.
func (s *Service) ActivateActionItemsView(ctx context.Context, sess Session, active bool) error {
	coordinator, ok := s.Coordinator(sess.JTI)
	if !ok {
		return nil
	}
	return coordinator.SetActionItemsViewActive(ctx, active)
}

// Roster

func (s *Service) Members(ctx context.Context, sess Session) ([]map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionViewMembers) {
		return nil, forbiddenError("Forbidden")
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(members))
	for _, member := range members {
		payload = append(payload, memberPayload(member))
	}
	return payload, nil
}

func (s *Service) AddMember(ctx context.Context, sess Session, input AddMemberInput) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionChangeMemberRole) {
		return nil, forbiddenError("Forbidden")
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationError("a valid email is required", nil)
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = email
	}

	member, err := s.store.EnsureMemberExists(ctx, email, displayName)
	if err != nil {
		return nil, err
	}
	if role := strings.TrimSpace(input.Role); role != "" && role != member.Role {
		if !knownRole(role) {
			return nil, validationError("unknown role", map[string]any{"allowed": knownRoles()})
		}
		if _, err := s.store.UpdateMemberRole(ctx, email, role); err != nil {
			return nil, err
		}
		member.Role = role
	}
	return memberPayload(member), nil
}

func (s *Service) ChangeMemberRole(ctx context.Context, sess Session, email, role string) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionChangeMemberRole) {
		return nil, forbiddenError("Forbidden")
	}
	role = strings.TrimSpace(role)
	if !knownRole(role) {
		return nil, validationError("unknown role", map[string]any{"allowed": knownRoles()})
	}
	updated, err := s.store.UpdateMemberRole(ctx, strings.ToLower(strings.TrimSpace(email)), role)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, notFoundError("Member not found")
	}
	return map[string]any{"email": strings.ToLower(strings.TrimSpace(email)), "role": role}, nil
}

func knownRole(role string) bool {
	return containsString(knownRoles(), role)
}

func knownRoles() []string {
	return []string{
		string(rbac.RoleMember),
		string(rbac.RoleObserver),
		string(rbac.RoleAlpha),
		string(rbac.RoleCustodian),
	}
}

// Directors

func (s *Service) Directors(ctx context.Context) ([]map[string]any, error) {
	directors, err := s.store.ListDirectors(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(directors))
	for _, director := range directors {
		payload = append(payload, directorPayload(director))
	}
	return payload, nil
}

func (s *Service) SetDirectorPortrait(ctx context.Context, sess Session, directorName, contentType string, body io.Reader, size int64) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionChangeMemberRole) {
		return nil, forbiddenError("Forbidden")
	}
	if s.portraits == nil {
		return nil, domainError(http.StatusServiceUnavailable, "PORTRAITS_UNAVAILABLE", "Portrait storage not configured", nil)
	}

	director, err := s.store.GetDirector(ctx, directorName)
	if err != nil {
		return nil, err
	}

	url, err := s.portraits.Upload(ctx, director.DirectorName, contentType, body, size)
	if err != nil {
		return nil, validationError(err.Error(), nil)
	}
	if _, err := s.store.UpdateDirectorPortrait(ctx, director.DirectorName, url); err != nil {
		return nil, err
	}
	director.PortraitURL = url
	return directorPayload(director), nil
}

// Minutes

func (s *Service) RecordMinutes(ctx context.Context, sess Session, issueID string, input RecordMinutesInput) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionCreateIssue) {
		return nil, forbiddenError("Forbidden")
	}
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MINUTES_UNAVAILABLE", "Minutes archive not configured", nil)
	}
	rationale := strings.TrimSpace(input.Rationale)
	if rationale == "" {
		return nil, validationError("rationale is required", nil)
	}

	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	votes, err := s.store.ListVotes(ctx, issueID)
	if err != nil {
		return nil, err
	}
	summary := tally.Compute(tallyVotes(votes))
	tallyJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal tally: %w", err)
	}

	minutes := archive.Minutes{
		IssueID:   issue.ID,
		Title:     issue.Title,
		Status:    issue.Status,
		Rationale: rationale,
		Tally:     tallyJSON,
	}
	if err := s.archive.EnsureIssueRepo(issue.ID, archive.Minutes{
		IssueID: issue.ID,
		Title:   issue.Title,
		Status:  issue.Status,
	}, sess.UserName); err != nil {
		return nil, err
	}
	commit, err := s.archive.CommitMinutes(issue.ID, minutes, sess.UserName, "Record minutes: "+issue.Title)
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertMinutesEntry(ctx, store.MinutesEntry{
		IssueID:    issue.ID,
		Rationale:  rationale,
		RecordedBy: sess.UserName,
		CommitHash: commit.Hash,
	}); err != nil {
		return nil, err
	}

	return map[string]any{
		"issue_id":    issue.ID,
		"commit_hash": commit.Hash,
		"recorded_by": sess.UserName,
		"recorded_at": commit.CreatedAt,
		"summary":     summary,
	}, nil
}

func (s *Service) MinutesHistory(ctx context.Context, issueID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}

	if s.archive != nil {
		if commits, err := s.archive.History(issueID, limit); err == nil {
			entries := make([]map[string]any, 0, len(commits))
			for _, commit := range commits {
				entries = append(entries, map[string]any{
					"hash":       commit.Hash,
					"message":    commit.Message,
					"author":     commit.Author,
					"created_at": commit.CreatedAt,
				})
			}
			return map[string]any{"issue_id": issueID, "history": entries}, nil
		}
	}

	// The git archive is per-node; the minutes log in the database
	// records the same commits and survives a missing working tree.
	logEntries, err := s.store.ListMinutesEntries(ctx, issueID, limit)
	if err != nil {
		return nil, err
	}
	if len(logEntries) == 0 {
		return nil, notFoundError("No minutes recorded for this issue")
	}
	entries := make([]map[string]any, 0, len(logEntries))
	for _, entry := range logEntries {
		entries = append(entries, map[string]any{
			"hash":       entry.CommitHash,
			"message":    entry.Rationale,
			"author":     entry.RecordedBy,
			"created_at": entry.RecordedAt,
		})
	}
	return map[string]any{"issue_id": issueID, "history": entries}, nil
}

// MinutesAtRevision reads the minutes snapshot a specific commit
// recorded, so older readings stay reachable after later amendments.
func (s *Service) MinutesAtRevision(ctx context.Context, issueID, hash string) (map[string]any, error) {
	if s.archive == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MINUTES_UNAVAILABLE", "Minutes archive not configured", nil)
	}
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	minutes, err := s.archive.GetMinutesByHash(issueID, hash)
	if err != nil {
		return nil, notFoundError("No minutes at that revision")
	}
	return map[string]any{
		"issue_id":  issueID,
		"hash":      hash,
		"title":     minutes.Title,
		"status":    minutes.Status,
		"rationale": minutes.Rationale,
		"tally":     minutes.Tally,
	}, nil
}

func (s *Service) ExportMinutes(ctx context.Context, issueID string, format export.Format) (*export.Result, error) {
	if s.archive == nil || s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MINUTES_UNAVAILABLE", "Minutes archive not configured", nil)
	}
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	minutes, head, err := s.archive.GetHeadMinutes(issueID)
	if err != nil {
		return nil, notFoundError("No minutes recorded for this issue")
	}
	commits, err := s.archive.History(issueID, 20)
	if err != nil {
		return nil, err
	}

	var summary []tally.Summary
	if len(minutes.Tally) > 0 {
		if err := json.Unmarshal(minutes.Tally, &summary); err != nil {
			return nil, fmt.Errorf("decode tally snapshot: %w", err)
		}
	}
	rows := make([]export.TallyRow, 0, len(summary))
	for _, bucket := range summary {
		rows = append(rows, export.TallyRow{
			VoteType:      bucket.VoteType,
			Count:         bucket.Count,
			WeightedCount: bucket.WeightedCount,
			Directors:     bucket.Directors,
		})
	}
	history := make([]export.HistoryEntry, 0, len(commits))
	for _, commit := range commits {
		history = append(history, export.HistoryEntry{
			Hash:      commit.Hash,
			Message:   commit.Message,
			Author:    commit.Author,
			CreatedAt: commit.CreatedAt,
		})
	}

	return s.export.Export(export.MinutesDocument{
		IssueID:    minutes.IssueID,
		Title:      minutes.Title,
		Status:     minutes.Status,
		Rationale:  minutes.Rationale,
		RecordedBy: head.Author,
		RecordedAt: head.CreatedAt,
		Tally:      rows,
		History:    history,
	}, format)
}

// Search

func (s *Service) Search(ctx context.Context, sess Session, query search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search not configured", nil)
	}
	query.IncludeOffRecord = rbac.Normalize(sess.Role) != rbac.RoleAnonymous
	return s.search.Search(query), nil
}

// Realtime loader. One implementation feeds every coordinator; each
// call rebuilds the slice it returns, so per-session snapshots never
// share backing arrays.

func (s *Service) LoadChat(ctx context.Context) ([]store.ChatMessage, int, error) {
	messages, err := s.store.ListChatMessages(ctx, 200)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.store.ChatMessageCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return messages, count, nil
}

func (s *Service) LoadIssueCards(ctx context.Context) ([]realtime.IssueCard, error) {
	issues, err := s.store.ListIssues(ctx)
	if err != nil {
		return nil, err
	}
	cards := make([]realtime.IssueCard, 0, len(issues))
	for _, issue := range issues {
		votes, err := s.store.ListVotes(ctx, issue.ID)
		if err != nil {
			return nil, err
		}
		cards = append(cards, realtime.IssueCard{
			Issue:   issue,
			Summary: tally.Compute(tallyVotes(votes)),
		})
	}
	return cards, nil
}

func (s *Service) LoadActionItems(ctx context.Context) ([]store.ActionItem, error) {
	return s.store.ListActionItems(ctx)
}

// Health

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Ping(ctx)
}

// Payload builders. Wire payloads use snake_case keys throughout,
// matching the event rows on the realtime channels.

func chatMessagePayload(message store.ChatMessage) map[string]any {
	return map[string]any{
		"id":             message.ID,
		"user_email":     message.UserEmail,
		"user_name":      message.UserName,
		"message":        message.Message,
		"off_the_record": message.OffTheRecord,
		"created_at":     message.CreatedAt,
	}
}

func issuePayload(issue store.Issue) map[string]any {
	return map[string]any{
		"id":          issue.ID,
		"title":       issue.Title,
		"description": issue.Description,
		"status":      issue.Status,
		"created_by":  issue.CreatedBy,
		"created_at":  issue.CreatedAt,
	}
}

func issueCardPayload(card realtime.IssueCard) map[string]any {
	payload := issuePayload(card.Issue)
	payload["tally"] = card.Summary
	return payload
}

func votePayload(vote store.Vote) map[string]any {
	return map[string]any{
		"issue_id":      vote.IssueID,
		"director_name": vote.DirectorName,
		"vote_type":     vote.VoteType,
		"weight":        vote.Weight,
		"rationale":     vote.Rationale,
		"notes":         vote.Notes,
		"created_at":    vote.CreatedAt,
		"updated_at":    vote.UpdatedAt,
	}
}

func actionItemPayload(item store.ActionItem) map[string]any {
	payload := map[string]any{
		"id":          item.ID,
		"title":       item.Title,
		"description": item.Description,
		"assigned_to": item.AssignedTo,
		"status":      item.Status,
		"issue_id":    item.IssueID,
		"created_by":  item.CreatedBy,
		"created_at":  item.CreatedAt,
	}
	if item.DueDate != nil {
		payload["due_date"] = item.DueDate
	}
	if item.CompletedAt != nil {
		payload["completed_at"] = item.CompletedAt
	}
	return payload
}

func memberPayload(member store.Member) map[string]any {
	return map[string]any{
		"id":             member.ID,
		"email":          member.Email,
		"display_name":   member.DisplayName,
		"role":           member.Role,
		"email_verified": member.IsEmailVerified,
		"created_at":     member.CreatedAt,
	}
}

func directorPayload(director store.Director) map[string]any {
	return map[string]any{
		"director_name":      director.DirectorName,
		"position_type":      director.PositionType,
		"college_code":       director.CollegeCode,
		"college_name":       director.CollegeName,
		"platform_statement": director.PlatformStatement,
		"portrait_url":       director.PortraitURL,
	}
}

func summaryPayload(rows []store.VoteSummaryRow) []map[string]any {
	payload := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, map[string]any{
			"vote_type":      row.VoteType,
			"count":          row.Count,
			"weighted_count": row.WeightedCount,
			"directors":      row.Directors,
		})
	}
	return payload
}

func tallyVotes(votes []store.Vote) []tally.Vote {
	out := make([]tally.Vote, 0, len(votes))
	for _, vote := range votes {
		out = append(out, tally.Vote{
			DirectorName: vote.DirectorName,
			VoteType:     vote.VoteType,
			Weight:       vote.Weight,
		})
	}
	return out
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
