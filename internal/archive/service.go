// Package archive keeps a git-backed audit trail of board minutes, one
// repository per issue with a linear history on main.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Minutes is the recorded state of an issue at one point in time. Off the
// record chat never flows in here; this file is the public record.
type Minutes struct {
	IssueID   string          `json:"issue_id"`
	Title     string          `json:"title"`
	Status    string          `json:"status"`
	Rationale string          `json:"rationale"`
	Tally     json.RawMessage `json:"tally,omitempty"`
}

// CommitInfo describes one entry in an issue's minutes history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureIssueRepo initializes the minutes repository for an issue if it
// does not exist yet, with an initial baseline commit.
func (s *Service) EnsureIssueRepo(issueID string, initial Minutes, author string) error {
	lock := s.issueLock(issueID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(issueID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial minutes: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "minutes.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial minutes: %w", err)
	}
	if _, err := worktree.Add("minutes.json"); err != nil {
		return fmt.Errorf("git add initial minutes: %w", err)
	}
	hash, err := worktree.Commit("Open issue record", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial minutes: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitMinutes records a new revision of the issue's minutes.
func (s *Service) CommitMinutes(issueID string, minutes Minutes, author, message string) (CommitInfo, error) {
	lock := s.issueLock(issueID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(issueID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(minutes, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal minutes: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "minutes.json"), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write minutes.json: %w", err)
	}

	if _, err := worktree.Add("minutes.json"); err != nil {
		return CommitInfo{}, fmt.Errorf("git add minutes: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit minutes: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// GetHeadMinutes returns the latest recorded minutes for an issue.
func (s *Service) GetHeadMinutes(issueID string) (Minutes, CommitInfo, error) {
	lock := s.issueLock(issueID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(issueID))
	if err != nil {
		return Minutes{}, CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return Minutes{}, CommitInfo{}, fmt.Errorf("resolve main: %w", err)
	}

	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Minutes{}, CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}

	minutes, err := readMinutesFromCommit(commitObj)
	if err != nil {
		return Minutes{}, CommitInfo{}, err
	}
	return minutes, toCommitInfo(commitObj), nil
}

// GetMinutesByHash returns the minutes recorded in a specific revision.
func (s *Service) GetMinutesByHash(issueID, hash string) (Minutes, error) {
	lock := s.issueLock(issueID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(issueID))
	if err != nil {
		return Minutes{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Minutes{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Minutes{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readMinutesFromCommit(commitObj)
}

// History lists an issue's minutes revisions, newest first.
func (s *Service) History(issueID string, limit int) ([]CommitInfo, error) {
	lock := s.issueLock(issueID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(issueID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(issueID string) string {
	return filepath.Join(s.baseDir, issueID)
}

func (s *Service) issueLock(issueID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[issueID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[issueID] = lock
	return lock
}

func readMinutesFromCommit(commitObj *object.Commit) (Minutes, error) {
	file, err := commitObj.File("minutes.json")
	if err != nil {
		return Minutes{}, fmt.Errorf("load minutes.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Minutes{}, fmt.Errorf("open minutes reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Minutes{}, fmt.Errorf("read minutes bytes: %w", err)
	}

	var minutes Minutes
	if err := json.Unmarshal(raw, &minutes); err != nil {
		return Minutes{}, fmt.Errorf("decode commit minutes: %w", err)
	}
	return minutes, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.boardroom.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "member"
	}
	return string(runes)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
