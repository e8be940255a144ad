// Package catalog caches the topic catalog and the signed-in user's progress, and derives
// dashboard metrics from them. Every read and write to the API goes through Store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"luminate/backend/metrics"
	"luminate/backend/models"
	"luminate/backend/session"
	"luminate/backend/utils"

	"golang.org/x/sync/singleflight"
)

// Remote is the query surface of the API.
type Remote interface {
	ListTopics(ctx context.Context) ([]models.Topic, error)
	ListSections(ctx context.Context, topicID string) ([]models.ContentSection, error)
	PopularityHistory(ctx context.Context, topicID string, limit int) ([]models.PopularitySnapshot, error)
	ListProgress(ctx context.Context) ([]models.ProgressRecord, error)
	InsertProgress(ctx context.Context, topicID string, u models.ProgressUpdate) (models.ProgressRecord, error)
	UpdateProgress(ctx context.Context, id string, u models.ProgressUpdate) (models.ProgressRecord, error)
	Activity(ctx context.Context, days int) ([]models.ActivityPoint, error)
}

// Sessions is the part of the session store the catalog reacts to.
type Sessions interface {
	Current() (session.Session, bool)
	Subscribe(fn func(*session.Session)) func()
}

// InvalidUpdateError lists the rejected fields of a progress update.
type InvalidUpdateError struct {
	Fields map[string]string
}

func (e *InvalidUpdateError) Error() string {
	return fmt.Sprintf("invalid progress update: %v", e.Fields)
}

type Option func(*Store)

// WithNotifier sets the hook called with every remote failure the store records.
func WithNotifier(fn func(error)) Option {
	return func(s *Store) { s.notify = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	remote   Remote
	sessions Sessions
	log      *utils.Logger
	notify   func(error)
	now      func() time.Time

	sectionsGroup singleflight.Group
	progressLocks *keyLock
	unsubscribe   func()

	mu       sync.RWMutex
	topics   []models.Topic
	progress []models.ProgressRecord
	sections map[string][]models.ContentSection
	activity []models.ActivityPoint
	derived  metrics.DerivedMetrics
	err      error
	loading  int

	// userID is whose progress the cache holds; gen bumps on every change of it.
	userID     string
	gen        uint64
	loadCtx    context.Context
	cancelLoad context.CancelFunc
}

func NewStore(remote Remote, sessions Sessions, log *utils.Logger, opts ...Option) *Store {
	s := &Store{
		remote:        remote,
		sessions:      sessions,
		log:           log.With("component", "catalog"),
		now:           func() time.Time { return time.Now().UTC() },
		progressLocks: newKeyLock(),
		sections:      map[string][]models.ContentSection{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loadCtx, s.cancelLoad = context.WithCancel(context.Background())
	if cur, ok := sessions.Current(); ok {
		s.userID = cur.ID
	}
	s.unsubscribe = sessions.Subscribe(s.onSession)
	return s
}

// Close detaches from the session store and cancels in-flight loads.
func (s *Store) Close() {
	s.unsubscribe()
	s.mu.Lock()
	s.cancelLoad()
	s.mu.Unlock()
}

// onSession drops the previous user's progress and cancels loads started on their behalf.
func (s *Store) onSession(sess *session.Session) {
	next := ""
	if sess != nil {
		next = sess.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if next == s.userID {
		return
	}
	s.cancelLoad()
	s.loadCtx, s.cancelLoad = context.WithCancel(context.Background())
	s.gen++
	s.userID = next
	s.progress = nil
	s.activity = nil
	s.recompute()
}

// LoadTopics refreshes the catalog and, when signed in, the user's progress. Failures are
// recorded in Err rather than returned.
func (s *Store) LoadTopics(ctx context.Context) {
	s.mu.Lock()
	gen, loadCtx := s.gen, s.loadCtx
	s.loading++
	s.mu.Unlock()
	defer s.doneLoading()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(loadCtx, cancel)
	defer stop()

	topics, err := s.remote.ListTopics(ctx)
	if err != nil {
		s.fail(ctx, "load topics", err)
		return
	}
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].Popularity > topics[j].Popularity
	})

	s.mu.Lock()
	s.topics = topics
	s.recompute()
	s.mu.Unlock()

	cur, ok := s.sessions.Current()
	if !ok {
		return
	}
	progress, err := s.remote.ListProgress(ctx)
	if err != nil {
		s.fail(ctx, "load progress", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.userID != cur.ID {
		s.log.Debug("discarding progress for previous session", "user_id", cur.ID)
		return
	}
	s.progress = progress
	s.recompute()
}

// LoadContentSections returns the ordered sections of a topic, fetching them at most once.
func (s *Store) LoadContentSections(ctx context.Context, topicID string) ([]models.ContentSection, error) {
	s.mu.RLock()
	cached, ok := s.sections[topicID]
	s.mu.RUnlock()
	if ok {
		return append([]models.ContentSection(nil), cached...), nil
	}

	s.setLoading(1)
	defer s.doneLoading()

	// the shared fetch outlives any single caller; each caller stops waiting on its own ctx
	ch := s.sectionsGroup.DoChan(topicID, func() (interface{}, error) {
		s.mu.RLock()
		cached, ok := s.sections[topicID]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}

		fetchCtx := context.WithoutCancel(ctx)
		sections, err := s.remote.ListSections(fetchCtx, topicID)
		if err != nil {
			s.fail(fetchCtx, "load sections", err)
			return nil, err
		}
		sort.SliceStable(sections, func(i, j int) bool {
			return sections[i].OrderIndex < sections[j].OrderIndex
		})

		s.mu.Lock()
		s.sections[topicID] = sections
		s.mu.Unlock()
		return sections, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]models.ContentSection(nil), res.Val.([]models.ContentSection)...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TopicByID looks the topic up in the last loaded catalog.
func (s *Store) TopicByID(id string) (models.Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.topics {
		if t.ID == id {
			return t, true
		}
	}
	return models.Topic{}, false
}

func (s *Store) ProgressForTopic(topicID string) (models.ProgressRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked(topicID)
}

func (s *Store) progressLocked(topicID string) (models.ProgressRecord, bool) {
	for _, p := range s.progress {
		if p.TopicID == topicID {
			return p, true
		}
	}
	return models.ProgressRecord{}, false
}

// UpdateProgress applies u to the current user's record for topicID, creating the record on
// first touch. Without a session it does nothing. Calls for the same user and topic run one
// at a time.
func (s *Store) UpdateProgress(ctx context.Context, topicID string, u models.ProgressUpdate) error {
	cur, ok := s.sessions.Current()
	if !ok {
		return nil
	}
	if errs := u.Validate(); len(errs) > 0 {
		return &InvalidUpdateError{Fields: errs}
	}

	unlock := s.progressLocks.Lock(cur.ID + "/" + topicID)
	defer unlock()

	s.mu.RLock()
	gen := s.gen
	existing, found := s.progressLocked(topicID)
	stale := s.userID != cur.ID
	s.mu.RUnlock()
	if stale {
		return nil
	}

	s.setLoading(1)
	defer s.doneLoading()

	var (
		rec models.ProgressRecord
		err error
	)
	if found {
		rec, err = s.remote.UpdateProgress(ctx, existing.ID, u)
	} else {
		rec, err = s.remote.InsertProgress(ctx, topicID, u)
	}
	if err != nil {
		s.fail(ctx, "update progress", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	replaced := false
	for i := range s.progress {
		if s.progress[i].ID == rec.ID || s.progress[i].TopicID == rec.TopicID {
			s.progress[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		s.progress = append(s.progress, rec)
	}
	s.recompute()
	return nil
}

// LoadActivity fetches the daily activity series and folds it into Metrics.
func (s *Store) LoadActivity(ctx context.Context, days int) ([]models.ActivityPoint, error) {
	if _, ok := s.sessions.Current(); !ok {
		return nil, nil
	}
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	s.setLoading(1)
	defer s.doneLoading()

	points, err := s.remote.Activity(ctx, days)
	if err != nil {
		s.fail(ctx, "load activity", err)
		return nil, err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.activity = points
		s.recompute()
	}
	s.mu.Unlock()
	return points, nil
}

// PopularityHistory returns recorded popularity snapshots for a topic, oldest first.
func (s *Store) PopularityHistory(ctx context.Context, topicID string, limit int) ([]models.PopularitySnapshot, error) {
	history, err := s.remote.PopularityHistory(ctx, topicID, limit)
	if err != nil {
		s.fail(ctx, "load popularity history", err)
		return nil, err
	}
	return history, nil
}

func (s *Store) Topics() []models.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Topic(nil), s.topics...)
}

func (s *Store) Progress() []models.ProgressRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ProgressRecord(nil), s.progress...)
}

func (s *Store) Metrics() metrics.DerivedMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.derived
	m.DailyActivity = append([]models.ActivityPoint(nil), s.derived.DailyActivity...)
	return m
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Err is the last recorded remote failure.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// recompute must be called with mu held.
func (s *Store) recompute() {
	s.derived = metrics.Compute(s.topics, s.progress, s.now())
	s.derived.DailyActivity = s.activity
}

// fail records err and notifies, unless err is only the cancellation of ctx: the caller
// gave up, or a session change superseded the load.
func (s *Store) fail(ctx context.Context, op string, err error) {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		s.log.Debug(op+" cancelled", "error", err)
		return
	}
	s.log.Warn(op+" failed", "error", err)

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	if s.notify != nil {
		s.notify(err)
	}
}

func (s *Store) setLoading(delta int) {
	s.mu.Lock()
	s.loading += delta
	s.mu.Unlock()
}

func (s *Store) doneLoading() {
	s.setLoading(-1)
}
