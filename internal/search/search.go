// Package search finds articles and events, via Meilisearch when it is
// available and PostgreSQL full-text search otherwise.
package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultArticle ResultType = "article"
	ResultEvent   ResultType = "event"
)

// ParseResultType accepts "", "article" or "event".
func ParseResultType(s string) (ResultType, bool) {
	switch ResultType(s) {
	case "", ResultArticle, ResultEvent:
		return ResultType(s), true
	}
	return "", false
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Image   string     `json:"image,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ArticleRecord is the data we index for an article.
type ArticleRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Author   string `json:"author"`
	Category string `json:"category"`
	Image    string `json:"image"`
}

// EventRecord is the data we index for an event.
type EventRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Genre       string `json:"genre"`
	Image       string `json:"image"`
	Date        int64  `json:"date"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
