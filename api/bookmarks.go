package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"
)

// Bookmark is one entry of the bookmark list.
type Bookmark struct {
	ID   int64        `json:"id"`
	Spec BookmarkSpec `json:"spec"`
}

// BookmarkSpec is the bookmarked spec summary; only the id is relied upon.
type BookmarkSpec struct {
	ID       int64   `json:"id"`
	Nickname string  `json:"nickname,omitempty"`
	JobField string  `json:"jobField,omitempty"`
	Score    float64 `json:"totalAnalysisScore,omitempty"`
}

// BookmarkPage is one page of the cursor paginated bookmark list.
type BookmarkPage struct {
	Bookmarks  []Bookmark `json:"bookmarks"`
	HasNext    bool       `json:"hasNext,omitempty"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

type addBookmarkData struct {
	BookmarkID int64 `json:"bookmarkId"`
}

// ListBookmarks fetches a page of the current user's bookmarks. An empty cursor starts from the beginning.
func (c *Client) ListBookmarks(ctx context.Context, cursor string, limit int) (*BookmarkPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/bookmarks"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := c.http.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "Client.ListBookmarks")
	}

	page, err := do[BookmarkPage](c, req, "Client.ListBookmarks")
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// AddBookmark bookmarks specID and returns the new bookmark's id. A success without
// a positive id is reported as a malformed response.
func (c *Client) AddBookmark(ctx context.Context, specID int64) (int64, error) {
	req, err := c.http.NewRequest(ctx, http.MethodPost, fmt.Sprintf("/api/specs/%d/bookmarks", specID), nil)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "Client.AddBookmark")
	}

	data, err := do[addBookmarkData](c, req, "Client.AddBookmark")
	if err != nil {
		return 0, err
	}
	if data.BookmarkID <= 0 {
		return 0, pkgerrors.Wrap(newError(http.StatusOK, nil, "malformed response: missing bookmarkId"), "Client.AddBookmark")
	}
	return data.BookmarkID, nil
}

// RemoveBookmark deletes bookmarkID of specID. Either a 204 or isSuccess=true counts as success.
func (c *Client) RemoveBookmark(ctx context.Context, specID, bookmarkID int64) error {
	req, err := c.http.NewRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/specs/%d/bookmarks/%d", specID, bookmarkID), nil)
	if err != nil {
		return pkgerrors.Wrap(err, "Client.RemoveBookmark")
	}

	_, err = do[struct{}](c, req, "Client.RemoveBookmark")
	return err
}
