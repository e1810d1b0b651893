package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/repositories/cache"
	"github.com/dmitrijs2005/studyctl/internal/client/state"
	"github.com/dmitrijs2005/studyctl/internal/ids"
	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/obs"
	"github.com/dmitrijs2005/studyctl/internal/query"
)

// ErrNotCached is returned when the remote is unavailable and the record
// is not in the local cache either.
var ErrNotCached = errors.New("record not in local cache")

// Entity is the pointer side of a model: *models.Note, *models.Task, ...
type Entity[T any] interface {
	*T
	Meta() *models.Base
	Touch(now time.Time)
}

// Patch is a partial update that can be replayed on a cached copy.
type Patch[T any] interface {
	Apply(*T)
}

// Config describes one remote collection.
type Config struct {
	// Name identifies the collection in logs and metrics and is the
	// cache namespace.
	Name string
	// Path is the collection endpoint, e.g. "/notes".
	Path string
	// CacheKey is the cache key holding the record array.
	CacheKey string
	// ListField and ItemField name the members wrapping list and single
	// record data in responses ("notes", "note"). Bare data is accepted
	// too.
	ListField string
	ItemField string
	// SearchPath is the dedicated search endpoint taking ?q=. When empty,
	// Search is a List with a search filter.
	SearchPath  string
	DefaultSort string
	// AllParams are sent by All so the remote returns every record,
	// including ones its default listing hides.
	AllParams query.Params
}

type Options struct {
	Tracker *state.Tracker
	Metrics obs.Recorder
	Logger  logging.Logger
	Now     func() time.Time
}

// Result is one page of records.
type Result[T any] struct {
	Items []T
	Page  query.Page
	// Cached reports that the remote was unavailable and the page was
	// computed from the local cache.
	Cached bool
}

// Store is the remote-first store of one collection. It is safe for
// concurrent use; callers serialize mutations of the same record.
type Store[T query.Record, P Entity[T]] struct {
	cfg     Config
	remote  client.Remote
	bucket  *cache.Bucket
	tracker *state.Tracker
	metrics obs.Recorder
	log     logging.Logger
	now     func() time.Time

	// mu guards every read-modify-write of the cached records and the
	// outbox. It is never held across a remote call.
	mu      sync.Mutex
	flushMu sync.Mutex
}

func New[T query.Record, P Entity[T]](cfg Config, remote client.Remote, repo cache.Repository, opts Options) *Store[T, P] {
	s := &Store[T, P]{
		cfg:     cfg,
		remote:  remote,
		bucket:  cache.NewBucket(repo, cfg.Name),
		tracker: opts.Tracker,
		metrics: obs.OrNop(opts.Metrics),
		log:     opts.Logger,
		now:     opts.Now,
	}
	if s.tracker == nil {
		s.tracker = state.NewTracker(opts.Now)
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	s.log = s.log.With("collection", cfg.Name)
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Store[T, P]) Name() string { return s.cfg.Name }

// List returns one page of records. Queued local writes are replayed
// first; records still pending afterwards are merged into the first page
// so they never vanish from view.
func (s *Store[T, P]) List(ctx context.Context, p query.Params) (Result[T], error) {
	return s.list(ctx, s.cfg.Path, p.Values(), p)
}

// Search lists records matching q.
func (s *Store[T, P]) Search(ctx context.Context, q string, p query.Params) (Result[T], error) {
	p.Search = q
	if s.cfg.SearchPath == "" {
		return s.List(ctx, p)
	}
	v := p.Values()
	v.Del("search")
	v.Set("q", q)
	return s.list(ctx, s.cfg.SearchPath, v, p)
}

func (s *Store[T, P]) list(ctx context.Context, path string, v url.Values, p query.Params) (Result[T], error) {
	if err := s.flushPending(ctx); errors.Is(err, client.ErrTransport) && s.degrade(ctx, "list", err) {
		return s.listLocal(ctx, p)
	}

	env, err := s.call(ctx, http.MethodGet, path, v, nil)
	var items []T
	if err == nil {
		if derr := client.DecodeList(env.Data, s.cfg.ListField, &items); derr != nil {
			err = malformed(derr)
		}
	}
	if err != nil {
		if s.degrade(ctx, "list", err) {
			return s.listLocal(ctx, p)
		}
		return Result[T]{}, err
	}

	page := pageOf(env.Pagination, len(items))
	complete := !p.Filtered() && page.Total <= len(items)
	items, added := s.mirror(ctx, items, p, complete)
	page.Total += added
	return Result[T]{Items: items, Page: page}, nil
}

func (s *Store[T, P]) listLocal(ctx context.Context, p query.Params) (Result[T], error) {
	items, err := s.Cached(ctx)
	if err != nil {
		return Result[T]{}, err
	}
	out, page := query.Apply(items, p, s.now(), s.cfg.DefaultSort)
	return Result[T]{Items: out, Page: page, Cached: true}, nil
}

// All fetches the whole collection and replaces the cached copy with it,
// keeping records that are still pending.
func (s *Store[T, P]) All(ctx context.Context) (Result[T], error) {
	if err := s.flushPending(ctx); errors.Is(err, client.ErrTransport) && s.degrade(ctx, "all", err) {
		return s.allLocal(ctx)
	}

	env, err := s.call(ctx, http.MethodGet, s.cfg.Path, s.cfg.AllParams.Values(), nil)
	var items []T
	if err == nil {
		if derr := client.DecodeList(env.Data, s.cfg.ListField, &items); derr != nil {
			err = malformed(derr)
		}
	}
	if err != nil {
		if s.degrade(ctx, "all", err) {
			return s.allLocal(ctx)
		}
		return Result[T]{}, err
	}

	items = s.replace(ctx, items)
	_, page := query.Paginate(items, 1, 0)
	return Result[T]{Items: items, Page: page}, nil
}

func (s *Store[T, P]) allLocal(ctx context.Context) (Result[T], error) {
	items, err := s.Cached(ctx)
	if err != nil {
		return Result[T]{}, err
	}
	_, page := query.Paginate(items, 1, 0)
	return Result[T]{Items: items, Page: page, Cached: true}, nil
}

// Get returns one record. A record the remote reports missing is removed
// from the cache and ErrNotFound is returned.
func (s *Store[T, P]) Get(ctx context.Context, id string) (*T, error) {
	if ids.IsLocal(id) {
		return s.getLocal(ctx, id)
	}

	env, err := s.call(ctx, http.MethodGet, s.itemPath(id), nil, nil)
	rec, err := s.decodeOne(env, err)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrNotFound):
			s.forget(ctx, id)
			return nil, err
		case s.degrade(ctx, "get", err):
			return s.getLocal(ctx, id)
		}
		return nil, err
	}
	return s.mirrorOne(ctx, *rec), nil
}

func (s *Store[T, P]) getLocal(ctx context.Context, id string) (*T, error) {
	items, err := s.Cached(ctx)
	if err != nil {
		return nil, err
	}
	if i := s.indexOf(items, id); i >= 0 {
		return &items[i], nil
	}
	return nil, fmt.Errorf("%s %s: %w", s.cfg.Name, id, ErrNotCached)
}

// Create stores a new record. When the remote is unavailable the record is
// saved locally under a "local-" id, marked pending and queued.
func (s *Store[T, P]) Create(ctx context.Context, rec T) (*T, error) {
	m := P(&rec).Meta()
	m.ID, m.Pending = "", false
	P(&rec).Touch(s.now())

	env, err := s.call(ctx, http.MethodPost, s.cfg.Path, nil, rec)
	created, err := s.decodeOne(env, err)
	if err != nil {
		if s.degrade(ctx, "create", err) {
			return s.createLocal(ctx, rec)
		}
		return nil, err
	}
	return s.mirrorOne(ctx, *created), nil
}

func (s *Store[T, P]) createLocal(ctx context.Context, rec T) (*T, error) {
	now := s.now()
	m := P(&rec).Meta()
	m.ID = ids.NewLocalAt(now)
	m.CreatedAt, m.UpdatedAt = time.Time{}, time.Time{}
	P(&rec).Touch(now)

	body, err := encodeBody[T, P](rec)
	if err != nil {
		return nil, err
	}
	m.Pending = true

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ops, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	items = append(items, rec)
	ops = enqueue(ops, newOp(OpCreate, m.ID, body, now))
	if err := s.save(ctx, items, ops); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update applies patch to the record. NotFound from the remote removes the
// local copy and yields (nil, nil).
func (s *Store[T, P]) Update(ctx context.Context, id string, patch Patch[T]) (*T, error) {
	if ids.IsLocal(id) || s.queued(ctx, id) {
		return s.updateLocal(ctx, id, patch.Apply)
	}
	env, err := s.call(ctx, http.MethodPut, s.itemPath(id), nil, patch)
	return s.settle(ctx, "update", id, env, err, patch.Apply)
}

// Act runs a record action such as PATCH /tasks/{id}/toggle. local makes
// the same change to a cached copy when the remote is unavailable.
func (s *Store[T, P]) Act(ctx context.Context, id, method, action string, body any, local func(*T)) (*T, error) {
	if ids.IsLocal(id) || s.queued(ctx, id) {
		return s.updateLocal(ctx, id, local)
	}
	env, err := s.call(ctx, method, s.itemPath(id)+"/"+action, nil, body)
	return s.settle(ctx, action, id, env, err, local)
}

func (s *Store[T, P]) settle(ctx context.Context, op, id string, env *client.Envelope, err error, local func(*T)) (*T, error) {
	rec, err := s.decodeOne(env, err)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrNotFound):
			s.log.Info(ctx, "record gone on remote, dropping local copy", "op", op, "id", id)
			s.forget(ctx, id)
			return nil, nil
		case s.degrade(ctx, op, err):
			return s.updateLocal(ctx, id, local)
		}
		return nil, err
	}
	return s.mirrorOne(ctx, *rec), nil
}

func (s *Store[T, P]) updateLocal(ctx context.Context, id string, fn func(*T)) (*T, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ops, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	i := s.indexOf(items, id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", s.cfg.Name, id, ErrNotCached)
	}

	rec := items[i]
	fn(&rec)
	P(&rec).Touch(now)
	body, err := encodeBody[T, P](rec)
	if err != nil {
		return nil, err
	}
	P(&rec).Meta().Pending = true
	items[i] = rec

	ops = enqueue(ops, newOp(OpUpdate, id, body, now))
	if err := s.save(ctx, items, ops); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record. A record the remote no longer has counts as
// deleted.
func (s *Store[T, P]) Delete(ctx context.Context, id string) error {
	if ids.IsLocal(id) || s.queued(ctx, id) {
		return s.deleteLocal(ctx, id)
	}

	_, err := s.call(ctx, http.MethodDelete, s.itemPath(id), nil, nil)
	switch {
	case err == nil, errors.Is(err, client.ErrNotFound):
		s.forget(ctx, id)
		return nil
	case s.degrade(ctx, "delete", err):
		return s.deleteLocal(ctx, id)
	}
	return err
}

func (s *Store[T, P]) deleteLocal(ctx context.Context, id string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ops, err := s.load(ctx)
	if err != nil {
		return err
	}
	items = s.removeID(items, id)
	ops = enqueue(ops, newOp(OpDelete, id, nil, now))
	return s.save(ctx, items, ops)
}

// Derive creates a new record from an existing one through a remote action
// such as POST /notes/{id}/duplicate. local builds the new record from a
// cached source when the remote is unavailable.
func (s *Store[T, P]) Derive(ctx context.Context, id, action string, local func(T) T) (*T, error) {
	if !ids.IsLocal(id) && !s.queued(ctx, id) {
		env, err := s.call(ctx, http.MethodPost, s.itemPath(id)+"/"+action, nil, nil)
		rec, err := s.decodeOne(env, err)
		switch {
		case err == nil:
			return s.mirrorOne(ctx, *rec), nil
		case errors.Is(err, client.ErrNotFound):
			s.forget(ctx, id)
			return nil, err
		case !s.degrade(ctx, action, err):
			return nil, err
		}
	}

	src, err := s.getLocal(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.createLocal(ctx, local(*src))
}

// Put writes a record announced by the remote into the cache. A cached
// copy with unsynced local changes wins.
func (s *Store[T, P]) Put(ctx context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		return err
	}
	id := P(&rec).Meta().ID
	if i := s.indexOf(items, id); i >= 0 {
		if P(&items[i]).Meta().Pending {
			return nil
		}
		items[i] = rec
	} else {
		items = append(items, rec)
	}
	return s.bucket.Store(ctx, s.cfg.CacheKey, items)
}

// Remove drops a record, and anything queued for it, from the cache.
func (s *Store[T, P]) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ops, err := s.load(ctx)
	if err != nil {
		return err
	}
	return s.save(ctx, s.removeID(items, id), dropRecord(ops, id))
}

// Cached returns every cached record.
func (s *Store[T, P]) Cached(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadItems(ctx)
}

// Pending returns the number of queued local writes.
func (s *Store[T, P]) Pending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops, err := s.loadOps(ctx)
	return len(ops), err
}

// Clear drops the cached records and the outbox.
func (s *Store[T, P]) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bucket.Clear(ctx)
}

func (s *Store[T, P]) call(ctx context.Context, method, path string, q url.Values, body any) (*client.Envelope, error) {
	env, err := s.remote.Do(ctx, method, path, q, body, nil)
	if err == nil || (client.KindOf(err) != "" && !client.Fallback(err)) {
		s.tracker.RecordSuccess()
	}
	return env, err
}

// degrade reports whether err may be answered from the cache and records
// the fallback.
func (s *Store[T, P]) degrade(ctx context.Context, op string, err error) bool {
	if err == nil || !client.Fallback(err) || ctx.Err() != nil {
		return false
	}
	s.tracker.RecordFailure(err)
	s.metrics.CacheFallback(s.cfg.Name)
	s.log.Warn(ctx, "remote unavailable, using local cache", "op", op, "err", err)
	return true
}

func (s *Store[T, P]) decodeOne(env *client.Envelope, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	var rec T
	if err := client.DecodeItem(env.Data, s.cfg.ItemField, &rec); err != nil {
		return nil, malformed(err)
	}
	return &rec, nil
}

// mirror writes a remote page through to the cache and merges pending
// local records into it. It returns the page and the number of merged
// records. A complete page holds every record matching p, so synced
// cached records that match p but are missing from it were deleted
// remotely and are dropped.
func (s *Store[T, P]) mirror(ctx context.Context, page []T, p query.Params, complete bool) ([]T, int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.loadItems(ctx)
	if err != nil {
		s.log.Warn(ctx, "cache read failed", "err", err)
		return page, 0
	}

	seen := make(map[string]struct{}, len(page))
	for i := range page {
		id := P(&page[i]).Meta().ID
		seen[id] = struct{}{}
		j := s.indexOf(cached, id)
		switch {
		case j < 0:
			cached = append(cached, page[i])
		case P(&cached[j]).Meta().Pending:
			page[i] = cached[j]
		default:
			cached[j] = page[i]
		}
	}

	if complete {
		before := len(cached)
		cached = slices.DeleteFunc(cached, func(it T) bool {
			m := P(&it).Meta()
			_, ok := seen[m.ID]
			return !ok && !m.Pending && it.Match(p, now)
		})
		if n := before - len(cached); n > 0 {
			s.log.Debug(ctx, "dropped records deleted remotely", "count", n)
		}
	}

	added := 0
	if p.Page <= 1 {
		for i := range cached {
			m := P(&cached[i]).Meta()
			if _, ok := seen[m.ID]; ok || !m.Pending || !cached[i].Match(p, now) {
				continue
			}
			page = append(page, cached[i])
			added++
		}
	}

	if err := s.bucket.Store(ctx, s.cfg.CacheKey, cached); err != nil {
		s.log.Warn(ctx, "cache write-through failed", "err", err)
	}
	if added > 0 {
		query.Sort(page, p.SortBy, p.SortOrder, s.cfg.DefaultSort)
	}
	return page, added
}

// replace makes the cache mirror the full remote collection plus records
// that are still pending.
func (s *Store[T, P]) replace(ctx context.Context, remote []T) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.loadItems(ctx)
	if err != nil {
		s.log.Warn(ctx, "cache read failed", "err", err)
		return remote
	}

	pending := make(map[string]T)
	for i := range cached {
		if m := P(&cached[i]).Meta(); m.Pending {
			pending[m.ID] = cached[i]
		}
	}
	if remote == nil {
		remote = []T{}
	}
	for i := range remote {
		id := P(&remote[i]).Meta().ID
		if local, ok := pending[id]; ok {
			remote[i] = local
			delete(pending, id)
		}
	}
	for i := range cached {
		if _, ok := pending[P(&cached[i]).Meta().ID]; ok {
			remote = append(remote, cached[i])
		}
	}

	if err := s.bucket.Store(ctx, s.cfg.CacheKey, remote); err != nil {
		s.log.Warn(ctx, "cache write-through failed", "err", err)
	}
	return remote
}

// mirrorOne writes one remote record through to the cache and returns the
// copy the caller should see.
func (s *Store[T, P]) mirrorOne(ctx context.Context, rec T) *T {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadItems(ctx)
	if err != nil {
		s.log.Warn(ctx, "cache read failed", "err", err)
		return &rec
	}
	if i := s.indexOf(items, P(&rec).Meta().ID); i >= 0 {
		if P(&items[i]).Meta().Pending {
			return &items[i]
		}
		items[i] = rec
	} else {
		items = append(items, rec)
	}
	if err := s.bucket.Store(ctx, s.cfg.CacheKey, items); err != nil {
		s.log.Warn(ctx, "cache write-through failed", "err", err)
	}
	return &rec
}

// forget removes a record the remote no longer has. Cache failures are
// logged.
func (s *Store[T, P]) forget(ctx context.Context, id string) {
	if err := s.Remove(ctx, id); err != nil {
		s.log.Warn(ctx, "cache remove failed", "id", id, "err", err)
	}
}

// queued reports whether the outbox holds writes for id. Later writes to
// such a record are queued behind them to keep their order.
func (s *Store[T, P]) queued(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops, err := s.loadOps(ctx)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(ops, func(o Op) bool { return o.RecordID == id })
}

func (s *Store[T, P]) load(ctx context.Context) ([]T, []Op, error) {
	items, err := s.loadItems(ctx)
	if err != nil {
		return nil, nil, err
	}
	ops, err := s.loadOps(ctx)
	if err != nil {
		return nil, nil, err
	}
	return items, ops, nil
}

func (s *Store[T, P]) loadItems(ctx context.Context) ([]T, error) {
	var items []T
	ok, err := s.bucket.Load(ctx, s.cfg.CacheKey, &items)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []T{}, nil
	}
	return items, nil
}

func (s *Store[T, P]) loadOps(ctx context.Context) ([]Op, error) {
	var ops []Op
	ok, err := s.bucket.Load(ctx, outboxKey, &ops)
	if err != nil || !ok {
		return nil, err
	}
	return ops, nil
}

// save commits the records and the outbox together.
func (s *Store[T, P]) save(ctx context.Context, items []T, ops []Op) error {
	if ops == nil {
		ops = []Op{}
	}
	return s.bucket.StoreMany(ctx, map[string]any{
		s.cfg.CacheKey: items,
		outboxKey:      ops,
	})
}

func (s *Store[T, P]) indexOf(items []T, id string) int {
	for i := range items {
		if P(&items[i]).Meta().ID == id {
			return i
		}
	}
	return -1
}

func (s *Store[T, P]) removeID(items []T, id string) []T {
	return slices.DeleteFunc(items, func(it T) bool { return P(&it).Meta().ID == id })
}

func (s *Store[T, P]) itemPath(id string) string {
	return s.cfg.Path + "/" + url.PathEscape(id)
}

// encodeBody renders rec the way it should reach the remote.
func encodeBody[T any, P Entity[T]](rec T) (json.RawMessage, error) {
	P(&rec).Meta().Pending = false
	return json.Marshal(rec)
}

func malformed(err error) error {
	return &client.APIError{Kind: client.KindTransport, Message: "malformed response data", Err: err}
}

func pageOf(pg *client.Pagination, n int) query.Page {
	if pg == nil {
		return query.Page{Page: 1, Limit: n, Total: n, TotalPages: 1}
	}
	return query.Page{Page: pg.Page, Limit: pg.Limit, Total: pg.Total, TotalPages: pg.TotalPages}
}
