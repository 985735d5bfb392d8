package bookmarks

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/specranking-client/api"
	"github.com/jrsteele09/specranking-client/internal/errors"
	"github.com/jrsteele09/specranking-client/metrics"
	"github.com/rs/zerolog/log"
)

const defaultPageLimit = 1000

const (
	opAdd    = "add"
	opRemove = "remove"
)

// API is the slice of the backend the cache depends on.
type API interface {
	ListBookmarks(ctx context.Context, cursor string, limit int) (*api.BookmarkPage, error)
	AddBookmark(ctx context.Context, specID int64) (int64, error)
	RemoveBookmark(ctx context.Context, specID, bookmarkID int64) error
}

// Cache is the client side index of the specs the current user has bookmarked,
// along with the bookmark ids needed to remove them.
//
// Mutations are confirmed-only: the index changes after the backend reports
// success and never before. Only one mutation per spec may be in flight.
type Cache struct {
	api       API
	pageLimit int
	metrics   *metrics.Metrics

	lock        sync.RWMutex
	bookmarked  map[int64]struct{}
	idMap       map[int64]int64
	inFlight    map[int64]struct{}
	loading     bool
	initialized bool
	epoch       uint64 // bumped by Reset; results from an older epoch are dropped

	// loads counts running bulk loads; while any runs, confirmed mutations are
	// journaled so a load built from an older list snapshot can replay them.
	loads   int
	journal []mutation
}

type mutation struct {
	specID     int64
	bookmarkID int64
	added      bool
}

func (m mutation) apply(bookmarked map[int64]struct{}, idMap map[int64]int64) {
	if m.added {
		bookmarked[m.specID] = struct{}{}
		idMap[m.specID] = m.bookmarkID
		return
	}
	delete(bookmarked, m.specID)
	delete(idMap, m.specID)
}

type Option func(*Cache)

// WithPageLimit sets the page size of the single bulk load request.
func WithPageLimit(limit int) Option {
	return func(c *Cache) {
		c.pageLimit = limit
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func New(bookmarkAPI API, options ...Option) *Cache {
	c := &Cache{
		api:        bookmarkAPI,
		bookmarked: make(map[int64]struct{}),
		idMap:      make(map[int64]int64),
		inFlight:   make(map[int64]struct{}),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.pageLimit <= 0 {
		c.pageLimit = defaultPageLimit
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	return c
}

// InitializeBookmarks replaces the index with the user's bookmark list. A failed
// load leaves the index empty but still marks it initialized. Mutations confirmed
// while the list is being fetched are kept.
func (c *Cache) InitializeBookmarks(ctx context.Context) {
	c.lock.Lock()
	c.loading = true
	c.loads++
	epoch := c.epoch
	start := len(c.journal)
	c.lock.Unlock()

	bookmarked := make(map[int64]struct{})
	idMap := make(map[int64]int64)

	page, err := c.api.ListBookmarks(ctx, "", c.pageLimit)
	if err != nil {
		log.Err(err).Msg("Loading bookmarks failed")
	} else {
		for _, b := range page.Bookmarks {
			bookmarked[b.Spec.ID] = struct{}{}
			idMap[b.Spec.ID] = b.ID
		}
		if page.HasNext {
			log.Warn().Int("limit", c.pageLimit).Msg("Bookmark list truncated to a single page")
		}
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if c.epoch != epoch {
		return
	}
	for _, m := range c.journal[start:] {
		m.apply(bookmarked, idMap)
	}
	c.bookmarked = bookmarked
	c.idMap = idMap
	c.initialized = true
	c.loads--
	if c.loads == 0 {
		c.journal = nil
		c.loading = false
	}
}

// AddBookmark bookmarks specID and returns the new bookmark id.
func (c *Cache) AddBookmark(ctx context.Context, specID int64) (int64, error) {
	epoch, err := c.begin(specID)
	if err != nil {
		return 0, err
	}

	bookmarkID, err := c.api.AddBookmark(ctx, specID)
	c.metrics.BookmarkMutations.WithLabelValues(opAdd, metrics.Outcome(err)).Inc()

	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.endLocked(specID, epoch) {
		return 0, errors.ErrStaleSession
	}
	if err != nil {
		return 0, errors.Wrapf(err, "adding bookmark for spec %d", specID)
	}
	c.commitLocked(mutation{specID: specID, bookmarkID: bookmarkID, added: true})
	return bookmarkID, nil
}

// RemoveBookmark removes the bookmark on specID. It fails with errors.ErrNotFound
// without calling the backend when no bookmark id is known for specID.
func (c *Cache) RemoveBookmark(ctx context.Context, specID int64) error {
	c.lock.Lock()
	if _, busy := c.inFlight[specID]; busy {
		c.lock.Unlock()
		return errors.ErrRequestInFlight
	}
	bookmarkID, ok := c.idMap[specID]
	if !ok {
		c.lock.Unlock()
		return errors.Wrapf(errors.ErrNotFound, "no bookmark for spec %d", specID)
	}
	c.inFlight[specID] = struct{}{}
	epoch := c.epoch
	c.lock.Unlock()

	err := c.api.RemoveBookmark(ctx, specID, bookmarkID)
	c.metrics.BookmarkMutations.WithLabelValues(opRemove, metrics.Outcome(err)).Inc()

	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.endLocked(specID, epoch) {
		return errors.ErrStaleSession
	}
	if err != nil {
		return errors.Wrapf(err, "removing bookmark %d", bookmarkID)
	}
	c.commitLocked(mutation{specID: specID})
	return nil
}

// ToggleBookmark adds or removes the bookmark on specID depending on its current
// membership. It returns the resulting membership and bookmark id; on error they
// describe the unchanged state.
func (c *Cache) ToggleBookmark(ctx context.Context, specID int64) (bool, int64, error) {
	if id, ok := c.GetBookmarkID(specID); ok {
		if err := c.RemoveBookmark(ctx, specID); err != nil {
			return true, id, err
		}
		return false, 0, nil
	}

	id, err := c.AddBookmark(ctx, specID)
	if err != nil {
		return false, 0, err
	}
	return true, id, nil
}

func (c *Cache) IsBookmarked(specID int64) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	_, ok := c.bookmarked[specID]
	return ok
}

func (c *Cache) GetBookmarkID(specID int64) (int64, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	id, ok := c.idMap[specID]
	return id, ok
}

func (c *Cache) GetBookmarkCount() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.bookmarked)
}

// SpecIDs returns the bookmarked spec ids in ascending order.
func (c *Cache) SpecIDs() []int64 {
	c.lock.RLock()
	defer c.lock.RUnlock()
	ids := make([]int64, 0, len(c.bookmarked))
	for id := range c.bookmarked {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Cache) Loading() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.loading
}

func (c *Cache) Initialized() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.initialized
}

// Reset empties the index. Calls still in flight complete remotely but are not
// committed.
func (c *Cache) Reset() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.epoch++
	c.bookmarked = make(map[int64]struct{})
	c.idMap = make(map[int64]int64)
	c.inFlight = make(map[int64]struct{})
	c.loading = false
	c.initialized = false
	c.loads = 0
	c.journal = nil
}

func (c *Cache) begin(specID int64) (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, busy := c.inFlight[specID]; busy {
		return 0, errors.ErrRequestInFlight
	}
	c.inFlight[specID] = struct{}{}
	return c.epoch, nil
}

// endLocked releases the in-flight mark and reports whether epoch is still current.
func (c *Cache) endLocked(specID int64, epoch uint64) bool {
	if c.epoch != epoch {
		return false
	}
	delete(c.inFlight, specID)
	return true
}

func (c *Cache) commitLocked(m mutation) {
	m.apply(c.bookmarked, c.idMap)
	if c.loads > 0 {
		c.journal = append(c.journal, m)
	}
}
