package apifake

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/specranking-client/api"
	"github.com/jrsteele09/specranking-client/bookmarks"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/jrsteele09/specranking-client/session"
	"github.com/jrsteele09/specranking-client/users"
)

var (
	_ session.API   = (*FakeAPI)(nil)
	_ bookmarks.API = (*FakeAPI)(nil)
)

// FakeAPI is an in-memory stand-in for the SpecRanking backend used by the
// session and bookmark tests.
type FakeAPI struct {
	lock sync.RWMutex

	profiles       map[int64]*users.Profile
	bookmarks      map[int64]int64 // spec ID to bookmark ID
	nextBookmarkID int64

	refreshTokens []string // handed out in order, the last one repeats
	revoked       []string

	GetUserErr        error
	RefreshErr        error
	ListBookmarksErr  error
	AddBookmarkErr    error
	RemoveBookmarkErr error
	RevokeErr         error

	// BeforeRefresh, BeforeAdd and BeforeRemove run before the call resolves, outside the lock.
	BeforeRefresh func()
	BeforeAdd     func(specID int64)
	BeforeRemove  func(specID int64)
	// AfterList runs once the bookmark list has been read, before it is returned.
	AfterList func()

	calls map[string]int
}

func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		profiles:       make(map[int64]*users.Profile),
		bookmarks:      make(map[int64]int64),
		nextBookmarkID: 1,
		calls:          make(map[string]int),
	}
}

// AddProfile registers a user the profile endpoint will return.
func (f *FakeAPI) AddProfile(p *users.Profile) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.profiles[p.ID] = p
}

// SeedBookmark stores a bookmark server side.
func (f *FakeAPI) SeedBookmark(specID, bookmarkID int64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.bookmarks[specID] = bookmarkID
	if bookmarkID >= f.nextBookmarkID {
		f.nextBookmarkID = bookmarkID + 1
	}
}

// SetRefreshTokens queues the tokens successive refresh calls return.
func (f *FakeAPI) SetRefreshTokens(tokens ...string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshTokens = tokens
}

// ServerBookmarks returns a copy of the server side bookmarks.
func (f *FakeAPI) ServerBookmarks() map[int64]int64 {
	f.lock.RLock()
	defer f.lock.RUnlock()
	out := make(map[int64]int64, len(f.bookmarks))
	for k, v := range f.bookmarks {
		out[k] = v
	}
	return out
}

// Revoked lists the tokens passed to RevokeToken, in order.
func (f *FakeAPI) Revoked() []string {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return append([]string(nil), f.revoked...)
}

// Calls returns how many times op was called.
func (f *FakeAPI) Calls(op string) int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.calls[op]
}

func (f *FakeAPI) record(op string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls[op]++
}

func (f *FakeAPI) GetUser(_ context.Context, id int64) (*users.Profile, error) {
	f.record("GetUser")
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.GetUserErr != nil {
		return nil, f.GetUserErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *FakeAPI) RefreshToken(_ context.Context) (string, error) {
	f.record("RefreshToken")
	if f.BeforeRefresh != nil {
		f.BeforeRefresh()
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.RefreshErr != nil {
		return "", f.RefreshErr
	}
	if len(f.refreshTokens) == 0 {
		return "", errors.ErrRefreshFailed
	}
	token := f.refreshTokens[0]
	if len(f.refreshTokens) > 1 {
		f.refreshTokens = f.refreshTokens[1:]
	}
	return token, nil
}

func (f *FakeAPI) RevokeToken(_ context.Context, token string) error {
	f.record("RevokeToken")
	f.lock.Lock()
	defer f.lock.Unlock()
	f.revoked = append(f.revoked, token)
	return f.RevokeErr
}

func (f *FakeAPI) ListBookmarks(_ context.Context, cursor string, limit int) (*api.BookmarkPage, error) {
	f.record("ListBookmarks")
	page, err := f.listBookmarks(limit)
	if f.AfterList != nil {
		f.AfterList()
	}
	return page, err
}

func (f *FakeAPI) listBookmarks(limit int) (*api.BookmarkPage, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.ListBookmarksErr != nil {
		return nil, f.ListBookmarksErr
	}

	specIDs := make([]int64, 0, len(f.bookmarks))
	for specID := range f.bookmarks {
		specIDs = append(specIDs, specID)
	}
	sort.Slice(specIDs, func(i, j int) bool { return specIDs[i] < specIDs[j] })

	page := &api.BookmarkPage{Bookmarks: make([]api.Bookmark, 0, len(specIDs))}
	for _, specID := range specIDs {
		if limit > 0 && len(page.Bookmarks) == limit {
			page.HasNext = true
			break
		}
		page.Bookmarks = append(page.Bookmarks, api.Bookmark{ID: f.bookmarks[specID], Spec: api.BookmarkSpec{ID: specID}})
	}
	return page, nil
}

func (f *FakeAPI) AddBookmark(_ context.Context, specID int64) (int64, error) {
	f.record("AddBookmark")
	if f.BeforeAdd != nil {
		f.BeforeAdd(specID)
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.AddBookmarkErr != nil {
		return 0, f.AddBookmarkErr
	}
	id := f.nextBookmarkID
	f.nextBookmarkID++
	f.bookmarks[specID] = id
	return id, nil
}

func (f *FakeAPI) RemoveBookmark(_ context.Context, specID, bookmarkID int64) error {
	f.record("RemoveBookmark")
	if f.BeforeRemove != nil {
		f.BeforeRemove(specID)
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.RemoveBookmarkErr != nil {
		return f.RemoveBookmarkErr
	}
	if current, ok := f.bookmarks[specID]; !ok || current != bookmarkID {
		return errors.ErrNotFound
	}
	delete(f.bookmarks, specID)
	return nil
}
