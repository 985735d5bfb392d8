package config

type BookmarkConfig interface {
	GetBookmarkPageLimit() int
}

type Bookmarks struct{}

var _ BookmarkConfig = Bookmarks{}

// GetBookmarkPageLimit is the page size used for the single bulk bookmark fetch
func (Bookmarks) GetBookmarkPageLimit() int {
	return GetEnvInt("BOOKMARK_PAGE_LIMIT", 1000)
}
