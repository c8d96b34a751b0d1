package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"boardroom/api/internal/tally"
	"boardroom/api/internal/util"
)

// The SQL aggregate and tally.Compute must describe the same votes
// identically: same bucket order (first ballot first), same director
// order within a bucket (submission order), same weighted counts.
func TestVoteSummaryAggregateMatchesTally(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("BOARDROOM_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("BOARDROOM_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pg := NewPostgresStore(db, nil)

	issue, err := pg.InsertIssue(ctx, Issue{ID: util.NewID("iss"), Title: "Budget amendment"})
	if err != nil {
		t.Fatalf("insert issue: %v", err)
	}

	// Insert with explicit timestamps so the expected ordering is not
	// at the mercy of NOW() resolution.
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ballots := []struct {
		director string
		voteType string
		weight   int
	}{
		{"Alice", "for", 2},
		{"Bob", "against", 1},
		{"Carol", "for", 3},
		{"Dave", "abstain", 1},
	}
	for i, b := range ballots {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO votes (issue_id, director_name, vote_type, weight, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, issue.ID, b.director, b.voteType, b.weight, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("insert vote %s: %v", b.director, err)
		}
	}

	rows, err := pg.GetVoteSummary(ctx, issue.ID)
	if err != nil {
		t.Fatalf("vote summary: %v", err)
	}

	votes, err := pg.ListVotes(ctx, issue.ID)
	if err != nil {
		t.Fatalf("list votes: %v", err)
	}
	raw := make([]tally.Vote, 0, len(votes))
	for _, v := range votes {
		raw = append(raw, tally.Vote{DirectorName: v.DirectorName, VoteType: v.VoteType, Weight: v.Weight})
	}
	computed := tally.Compute(raw)

	if len(rows) != len(computed) {
		t.Fatalf("aggregate returned %d buckets, tally %d", len(rows), len(computed))
	}
	for i := range rows {
		got := tally.Summary{
			VoteType:      rows[i].VoteType,
			Count:         rows[i].Count,
			WeightedCount: rows[i].WeightedCount,
			Directors:     rows[i].Directors,
		}
		if !reflect.DeepEqual(got, computed[i]) {
			t.Errorf("bucket %d: aggregate %+v, tally %+v", i, got, computed[i])
		}
	}

	want := []tally.Summary{
		{VoteType: "for", Count: 2, WeightedCount: 5, Directors: []string{"Alice", "Carol"}},
		{VoteType: "against", Count: 1, WeightedCount: 1, Directors: []string{"Bob"}},
		{VoteType: "abstain", Count: 1, WeightedCount: 1, Directors: []string{"Dave"}},
	}
	if !reflect.DeepEqual(computed, want) {
		t.Errorf("tally of fixture rows: got %+v, want %+v", computed, want)
	}

	// Upserting Alice moves her vote to another bucket without adding a
	// row; the aggregate must reflect the replacement.
	if _, err := pg.UpsertVote(ctx, Vote{IssueID: issue.ID, DirectorName: "Alice", VoteType: "against", Weight: 1}); err != nil {
		t.Fatalf("upsert vote: %v", err)
	}
	rows, err = pg.GetVoteSummary(ctx, issue.ID)
	if err != nil {
		t.Fatalf("vote summary after upsert: %v", err)
	}
	total := 0
	for _, row := range rows {
		total += row.Count
		if row.VoteType == "for" && (row.Count != 1 || !reflect.DeepEqual(row.Directors, []string{"Carol"})) {
			t.Errorf("for bucket after upsert: %+v", row)
		}
	}
	if total != len(ballots) {
		t.Errorf("expected %d votes after upsert, got %d", len(ballots), total)
	}
}
