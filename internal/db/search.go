package db

// Query is the input for a paged FT.SEARCH.
type Query struct {
	Index  string
	Query  string
	SortBy string
	Desc   bool
	Offset int
	Limit  int
	// Return restricts the returned attributes. Empty returns all of them.
	Return []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Fields map[string]string
}
