package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultIssue   ResultType = "issue"
	ResultMessage ResultType = "message"
	ResultAction  ResultType = "action"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type         ResultType `json:"type"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	Status       string     `json:"status,omitempty"`
	OffTheRecord bool       `json:"off_the_record,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
	// IncludeOffRecord widens message results to off-the-record chat.
	// Only signed-in sessions get this.
	IncludeOffRecord bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexIssue(issue IssueRecord) error
	IndexMessage(message MessageRecord) error
	IndexAction(action ActionRecord) error
}

// IssueRecord is the data we index for an issue.
type IssueRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// MessageRecord is the data we index for a chat message.
type MessageRecord struct {
	ID           string `json:"id"`
	UserName     string `json:"userName"`
	Message      string `json:"message"`
	OffTheRecord bool   `json:"offTheRecord"`
}

// ActionRecord is the data we index for an action item.
type ActionRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assignedTo"`
	Status      string `json:"status"`
}
