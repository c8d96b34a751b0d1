package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across issues, chat_messages, and
// action_items using plainto_tsquery and ts_rank, with ts_headline for
// snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultIssue {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'issue'::text AS type, i.id, i.title,
				ts_headline('english', coalesce(i.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.status, FALSE AS off_the_record,
				ts_rank(to_tsvector('english', i.title || ' ' || coalesce(i.description, '')), %s) AS rank
			FROM issues i
			WHERE to_tsvector('english', i.title || ' ' || coalesce(i.description, '')) @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultMessage {
		messageWhere := fmt.Sprintf("to_tsvector('english', cm.message || ' ' || cm.user_name) @@ %s", tsQuery)
		if !q.IncludeOffRecord {
			messageWhere += " AND NOT cm.off_the_record"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'message'::text AS type, cm.id, cm.user_name AS title,
				ts_headline('english', cm.message, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS status, cm.off_the_record,
				ts_rank(to_tsvector('english', cm.message || ' ' || cm.user_name), %s) AS rank
			FROM chat_messages cm
			WHERE %s`, tsQuery, tsQuery, messageWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultAction {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'action'::text AS type, ai.id, ai.title,
				ts_headline('english', coalesce(ai.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ai.status, FALSE AS off_the_record,
				ts_rank(to_tsvector('english', ai.title || ' ' || coalesce(ai.description, '') || ' ' || coalesce(ai.assigned_to, '')), %s) AS rank
			FROM action_items ai
			WHERE to_tsvector('english', ai.title || ' ' || coalesce(ai.description, '') || ' ' || coalesce(ai.assigned_to, '')) @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, status, off_the_record
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Status, &r.OffTheRecord); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IssueRecord, []MessageRecord, []ActionRecord, error) {
	issueRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(description, ''), status
		FROM issues
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load issues: %w", err)
	}
	defer issueRows.Close()

	issues := make([]IssueRecord, 0)
	for issueRows.Next() {
		var i IssueRecord
		if err := issueRows.Scan(&i.ID, &i.Title, &i.Description, &i.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, i)
	}
	if err := issueRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate issues: %w", err)
	}

	messageRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_name, message, off_the_record
		FROM chat_messages
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load messages: %w", err)
	}
	defer messageRows.Close()

	messages := make([]MessageRecord, 0)
	for messageRows.Next() {
		var m MessageRecord
		if err := messageRows.Scan(&m.ID, &m.UserName, &m.Message, &m.OffTheRecord); err != nil {
			return nil, nil, nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := messageRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate messages: %w", err)
	}

	actionRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(description, ''), coalesce(assigned_to, ''), status
		FROM action_items
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load action items: %w", err)
	}
	defer actionRows.Close()

	actions := make([]ActionRecord, 0)
	for actionRows.Next() {
		var a ActionRecord
		if err := actionRows.Scan(&a.ID, &a.Title, &a.Description, &a.AssignedTo, &a.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan action item: %w", err)
		}
		actions = append(actions, a)
	}
	if err := actionRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate action items: %w", err)
	}

	return issues, messages, actions, nil
}
