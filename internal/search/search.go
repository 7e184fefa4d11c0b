package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID       int64   `json:"business_idea_id"`
	IdeaName string  `json:"idea_name"`
	Snippet  string  `json:"snippet"`
	Progress float64 `json:"idea_progress"`
}

// Query describes a search request. UserID scopes results to the caller's
// own ideas.
type Query struct {
	Text   string
	UserID int64
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over business ideas.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// IdeaRecord is the data we index for a business idea.
type IdeaRecord struct {
	ID               int64   `json:"id"`
	UserID           int64   `json:"userId"`
	IdeaName         string  `json:"ideaName"`
	IdeaFoundation   string  `json:"ideaFoundation"`
	ProblemStatement string  `json:"problemStatement"`
	UniqueSolution   string  `json:"uniqueSolution"`
	TargetLocation   string  `json:"targetLocation"`
	Progress         float64 `json:"ideaProgress"`
}
