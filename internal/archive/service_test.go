package archive

import (
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(t.TempDir())
}

func TestEnsureIssueRepoIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	initial := Minutes{IssueID: "iss-1", Title: "Budget vote", Status: "open"}

	if err := svc.EnsureIssueRepo("iss-1", initial, "Alice"); err != nil {
		t.Fatalf("EnsureIssueRepo failed: %v", err)
	}
	if err := svc.EnsureIssueRepo("iss-1", initial, "Alice"); err != nil {
		t.Fatalf("second EnsureIssueRepo failed: %v", err)
	}

	history, err := svc.History("iss-1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected exactly one baseline commit, got %d", len(history))
	}
}

func TestCommitAndReadMinutes(t *testing.T) {
	svc := newTestService(t)
	if err := svc.EnsureIssueRepo("iss-1", Minutes{IssueID: "iss-1", Title: "Budget vote", Status: "open"}, "Alice"); err != nil {
		t.Fatalf("EnsureIssueRepo failed: %v", err)
	}

	updated := Minutes{
		IssueID:   "iss-1",
		Title:     "Budget vote",
		Status:    "open",
		Rationale: "Majority carried after second reading",
	}
	info, err := svc.CommitMinutes("iss-1", updated, "Alice", "Record second reading")
	if err != nil {
		t.Fatalf("CommitMinutes failed: %v", err)
	}
	if info.Hash == "" {
		t.Fatal("expected a commit hash")
	}
	if info.Author != "Alice" {
		t.Errorf("expected author Alice, got %s", info.Author)
	}

	head, headInfo, err := svc.GetHeadMinutes("iss-1")
	if err != nil {
		t.Fatalf("GetHeadMinutes failed: %v", err)
	}
	if head.Rationale != updated.Rationale {
		t.Errorf("expected head rationale %q, got %q", updated.Rationale, head.Rationale)
	}
	if headInfo.Hash != info.Hash {
		t.Errorf("expected head hash %s, got %s", info.Hash, headInfo.Hash)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	svc := newTestService(t)
	if err := svc.EnsureIssueRepo("iss-1", Minutes{IssueID: "iss-1", Title: "Budget vote"}, "Alice"); err != nil {
		t.Fatalf("EnsureIssueRepo failed: %v", err)
	}

	first, err := svc.CommitMinutes("iss-1", Minutes{IssueID: "iss-1", Title: "Budget vote", Rationale: "first"}, "Alice", "First revision")
	if err != nil {
		t.Fatalf("first CommitMinutes failed: %v", err)
	}
	second, err := svc.CommitMinutes("iss-1", Minutes{IssueID: "iss-1", Title: "Budget vote", Rationale: "second"}, "Bob", "Second revision")
	if err != nil {
		t.Fatalf("second CommitMinutes failed: %v", err)
	}

	history, err := svc.History("iss-1", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 commits, got %d", len(history))
	}
	if history[0].Hash != second.Hash {
		t.Errorf("expected newest commit first, got %s", history[0].Hash)
	}
	if history[1].Hash != first.Hash {
		t.Errorf("expected first revision second, got %s", history[1].Hash)
	}

	limited, err := svc.History("iss-1", 1)
	if err != nil {
		t.Fatalf("limited History failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Hash != second.Hash {
		t.Errorf("expected limit to keep newest commit, got %+v", limited)
	}
}

func TestGetMinutesByHash(t *testing.T) {
	svc := newTestService(t)
	if err := svc.EnsureIssueRepo("iss-1", Minutes{IssueID: "iss-1", Title: "Budget vote"}, "Alice"); err != nil {
		t.Fatalf("EnsureIssueRepo failed: %v", err)
	}

	first, err := svc.CommitMinutes("iss-1", Minutes{IssueID: "iss-1", Title: "Budget vote", Rationale: "before amendment"}, "Alice", "First revision")
	if err != nil {
		t.Fatalf("first CommitMinutes failed: %v", err)
	}
	if _, err := svc.CommitMinutes("iss-1", Minutes{IssueID: "iss-1", Title: "Budget vote", Rationale: "after amendment"}, "Alice", "Second revision"); err != nil {
		t.Fatalf("second CommitMinutes failed: %v", err)
	}

	old, err := svc.GetMinutesByHash("iss-1", first.Hash)
	if err != nil {
		t.Fatalf("GetMinutesByHash failed: %v", err)
	}
	if old.Rationale != "before amendment" {
		t.Errorf("expected pre-amendment rationale, got %q", old.Rationale)
	}
}

func TestUnknownIssueRepo(t *testing.T) {
	svc := newTestService(t)
	if _, _, err := svc.GetHeadMinutes("missing"); err == nil {
		t.Error("expected error for unknown issue repo")
	}
	if _, err := svc.History("missing", 0); err == nil {
		t.Error("expected error for unknown issue repo history")
	}
}
