package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"luminate/backend/models"
	"luminate/backend/session"
	"luminate/backend/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu           sync.Mutex
	topics       []models.Topic
	sections     map[string][]models.ContentSection
	progress     map[string]models.ProgressRecord
	activity     []models.ActivityPoint
	sectionCalls int
	inserts      int
	updates      int
	progressErr  error
	insertErr    error
	// progressGate, when set, holds ListProgress until closed or ctx is done.
	progressGate chan struct{}
	progressSeen chan struct{}
	// sectionsGate, when set, holds ListSections the same way.
	sectionsGate chan struct{}
	sectionsSeen chan struct{}
	nextID       int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		sections: map[string][]models.ContentSection{},
		progress: map[string]models.ProgressRecord{},
	}
}

func (f *fakeRemote) ListTopics(ctx context.Context) ([]models.Topic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Topic(nil), f.topics...), nil
}

func (f *fakeRemote) ListSections(ctx context.Context, topicID string) ([]models.ContentSection, error) {
	f.mu.Lock()
	f.sectionCalls++
	f.mu.Unlock()
	if f.sectionsSeen != nil {
		close(f.sectionsSeen)
	}
	if f.sectionsGate != nil {
		select {
		case <-f.sectionsGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	// give concurrent callers a chance to pile up
	time.Sleep(10 * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ContentSection(nil), f.sections[topicID]...), nil
}

func (f *fakeRemote) PopularityHistory(_ context.Context, topicID string, _ int) ([]models.PopularitySnapshot, error) {
	return []models.PopularitySnapshot{{TopicID: topicID, Popularity: 1}}, nil
}

func (f *fakeRemote) ListProgress(ctx context.Context) ([]models.ProgressRecord, error) {
	if f.progressSeen != nil {
		close(f.progressSeen)
	}
	if f.progressGate != nil {
		select {
		case <-f.progressGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return nil, f.progressErr
	}
	out := make([]models.ProgressRecord, 0, len(f.progress))
	for _, p := range f.progress {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRemote) InsertProgress(_ context.Context, topicID string, u models.ProgressUpdate) (models.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return models.ProgressRecord{}, f.insertErr
	}
	f.inserts++
	if rec, ok := f.progress[topicID]; ok {
		u.ApplyTo(&rec, time.Now())
		f.progress[topicID] = rec
		return rec, nil
	}
	f.nextID++
	rec := models.NewProgressRecord("u1", topicID, u, time.Now())
	rec.ID = fmt.Sprintf("p%d", f.nextID)
	f.progress[topicID] = rec
	return rec, nil
}

func (f *fakeRemote) UpdateProgress(_ context.Context, id string, u models.ProgressUpdate) (models.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	for topicID, rec := range f.progress {
		if rec.ID == id {
			u.ApplyTo(&rec, time.Now())
			f.progress[topicID] = rec
			return rec, nil
		}
	}
	return models.ProgressRecord{}, errors.New("not found")
}

func (f *fakeRemote) Activity(_ context.Context, days int) ([]models.ActivityPoint, error) {
	return f.activity[:days], nil
}

func (f *fakeRemote) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.progress)
}

type fakeSessions struct {
	mu   sync.Mutex
	cur  *session.Session
	subs []func(*session.Session)
}

func signedIn(id string) *fakeSessions {
	return &fakeSessions{cur: &session.Session{ID: id, Email: id + "@example.com"}}
}

func (f *fakeSessions) Current() (session.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cur == nil {
		return session.Session{}, false
	}
	return *f.cur, true
}

func (f *fakeSessions) Subscribe(fn func(*session.Session)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeSessions) set(s *session.Session) {
	f.mu.Lock()
	f.cur = s
	subs := append(([]func(*session.Session))(nil), f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func newTestStore(t *testing.T, remote *fakeRemote, sessions *fakeSessions, opts ...Option) *Store {
	t.Helper()
	s := NewStore(remote, sessions, utils.NopLogger(), opts...)
	t.Cleanup(s.Close)
	return s
}

func completed() models.ProgressUpdate {
	status := models.StatusCompleted
	pct := 100
	return models.ProgressUpdate{Status: &status, PercentComplete: &pct}
}

func TestLoadTopicsOrdersByPopularity(t *testing.T) {
	remote := newFakeRemote()
	remote.topics = []models.Topic{
		{ID: "t1", Popularity: 950, Difficulty: models.DifficultyBeginner},
		{ID: "t2", Popularity: 1050, Difficulty: models.DifficultyBeginner},
	}
	remote.progress["t1"] = models.ProgressRecord{ID: "p1", UserID: "u1", TopicID: "t1", Status: models.StatusInProgress, PercentComplete: 40}
	s := newTestStore(t, remote, signedIn("u1"))

	s.LoadTopics(context.Background())

	require.NoError(t, s.Err())
	topics := s.Topics()
	require.Len(t, topics, 2)
	assert.Equal(t, "t2", topics[0].ID)
	assert.Equal(t, "t1", topics[1].ID)

	rec, ok := s.ProgressForTopic("t1")
	require.True(t, ok)
	assert.Equal(t, 40, rec.PercentComplete)
	assert.Equal(t, 40, s.Metrics().PortfolioValue)
	assert.False(t, s.Loading())
}

func TestLoadTopicsWithoutSessionSkipsProgress(t *testing.T) {
	remote := newFakeRemote()
	remote.topics = []models.Topic{{ID: "t1"}}
	remote.progressErr = errors.New("should not be called")
	s := newTestStore(t, remote, &fakeSessions{})

	s.LoadTopics(context.Background())
	assert.NoError(t, s.Err())
	assert.Len(t, s.Topics(), 1)
	assert.Empty(t, s.Progress())
}

func TestTopicByIDNotFound(t *testing.T) {
	remote := newFakeRemote()
	remote.topics = []models.Topic{{ID: "t1"}}
	s := newTestStore(t, remote, signedIn("u1"))

	_, ok := s.TopicByID("t1")
	assert.False(t, ok, "nothing is cached before the first load")

	s.LoadTopics(context.Background())
	_, ok = s.TopicByID("t1")
	assert.True(t, ok)
	_, ok = s.TopicByID("nope")
	assert.False(t, ok)
}

func TestLoadContentSectionsFetchesOnce(t *testing.T) {
	remote := newFakeRemote()
	remote.sections["t1"] = []models.ContentSection{
		{ID: "s2", TopicID: "t1", OrderIndex: 2, Type: models.SectionQuiz},
		{ID: "s1", TopicID: "t1", OrderIndex: 1, Type: models.SectionText},
	}
	s := newTestStore(t, remote, signedIn("u1"))

	first, err := s.LoadContentSections(context.Background(), "t1")
	require.NoError(t, err)
	second, err := s.LoadContentSections(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 1, remote.sectionCalls)
	assert.Equal(t, first, second)
	assert.Equal(t, "s1", first[0].ID)
}

func TestLoadContentSectionsConcurrent(t *testing.T) {
	remote := newFakeRemote()
	remote.sections["t1"] = []models.ContentSection{{ID: "s1", TopicID: "t1"}}
	s := newTestStore(t, remote, signedIn("u1"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.LoadContentSections(context.Background(), "t1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, remote.sectionCalls)
}

func TestLoadContentSectionsSurvivesCancelledCaller(t *testing.T) {
	remote := newFakeRemote()
	remote.sections["t1"] = []models.ContentSection{{ID: "s1", TopicID: "t1"}}
	remote.sectionsGate = make(chan struct{})
	remote.sectionsSeen = make(chan struct{})
	var notified []error
	s := newTestStore(t, remote, signedIn("u1"), WithNotifier(func(err error) { notified = append(notified, err) }))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.LoadContentSections(ctxA, "t1")
		errA <- err
	}()
	<-remote.sectionsSeen

	type result struct {
		sections []models.ContentSection
		err      error
	}
	resB := make(chan result, 1)
	go func() {
		sections, err := s.LoadContentSections(context.Background(), "t1")
		resB <- result{sections, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(remote.sectionsGate)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		require.Len(t, res.sections, 1)
		assert.Equal(t, "s1", res.sections[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never got the sections")
	}

	assert.Equal(t, 1, remote.sectionCalls)
	assert.NoError(t, s.Err())
	assert.Empty(t, notified)
}

func TestCancelledLoadIsNotRecorded(t *testing.T) {
	remote := newFakeRemote()
	remote.topics = []models.Topic{{ID: "t1"}}
	var notified []error
	s := newTestStore(t, remote, signedIn("u1"), WithNotifier(func(err error) { notified = append(notified, err) }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.LoadTopics(ctx)

	assert.NoError(t, s.Err())
	assert.Empty(t, notified)
	assert.Empty(t, s.Topics())
}

func TestUpdateProgressTwiceKeepsOneRecord(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote, signedIn("u1"))

	require.NoError(t, s.UpdateProgress(context.Background(), "t1", completed()))
	require.NoError(t, s.UpdateProgress(context.Background(), "t1", completed()))

	assert.Len(t, s.Progress(), 1)
	assert.Equal(t, 1, remote.rows())
	assert.Equal(t, 1, remote.inserts)
	assert.Equal(t, 1, remote.updates)

	rec, ok := s.ProgressForTopic("t1")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.PercentComplete)
}

func TestUpdateProgressDefaults(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote, signedIn("u1"))

	require.NoError(t, s.UpdateProgress(context.Background(), "t1", models.ProgressUpdate{}))

	rec, ok := s.ProgressForTopic("t1")
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, rec.Status)
	assert.Equal(t, 0, rec.PercentComplete)
	assert.Equal(t, 0, rec.TimeSpentMinutes)
	assert.False(t, rec.LastAccessedAt.IsZero())
}

func TestUpdateProgressConcurrentSameTopic(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote, signedIn("u1"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(pct int) {
			defer wg.Done()
			assert.NoError(t, s.UpdateProgress(context.Background(), "t1", models.ProgressUpdate{PercentComplete: &pct}))
		}(i * 10)
	}
	wg.Wait()

	assert.Equal(t, 1, remote.inserts)
	assert.Equal(t, 9, remote.updates)
	assert.Len(t, s.Progress(), 1)
	rec, _ := s.ProgressForTopic("t1")
	assert.Equal(t, 90, rec.PercentComplete)
}

func TestUpdateProgressWithoutSessionIsNoop(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote, &fakeSessions{})

	require.NoError(t, s.UpdateProgress(context.Background(), "t1", completed()))
	assert.Zero(t, remote.inserts)
	assert.Empty(t, s.Progress())
}

func TestUpdateProgressRejectsInvalid(t *testing.T) {
	remote := newFakeRemote()
	s := newTestStore(t, remote, signedIn("u1"))

	pct := 150
	err := s.UpdateProgress(context.Background(), "t1", models.ProgressUpdate{PercentComplete: &pct})
	var invalid *InvalidUpdateError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Fields, "percent_complete")
	assert.Zero(t, remote.inserts)
}

func TestRemoteFailureKeepsCache(t *testing.T) {
	remote := newFakeRemote()
	var notified []error
	s := newTestStore(t, remote, signedIn("u1"), WithNotifier(func(err error) { notified = append(notified, err) }))

	require.NoError(t, s.UpdateProgress(context.Background(), "t1", models.ProgressUpdate{}))
	remote.insertErr = errors.New("network down")

	err := s.UpdateProgress(context.Background(), "t2", models.ProgressUpdate{})
	require.Error(t, err)
	assert.Equal(t, err, s.Err())
	require.Len(t, notified, 1)
	assert.Len(t, s.Progress(), 1)

	s.ClearError()
	assert.NoError(t, s.Err())
}

func TestSessionChangeDiscardsStaleProgress(t *testing.T) {
	remote := newFakeRemote()
	remote.topics = []models.Topic{{ID: "t1"}}
	remote.progress["t1"] = models.ProgressRecord{ID: "p1", UserID: "u1", TopicID: "t1"}
	remote.progressGate = make(chan struct{})
	remote.progressSeen = make(chan struct{})
	sessions := signedIn("u1")
	s := newTestStore(t, remote, sessions)

	done := make(chan struct{})
	go func() {
		s.LoadTopics(context.Background())
		close(done)
	}()

	<-remote.progressSeen
	sessions.set(&session.Session{ID: "u2"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded load was not cancelled")
	}
	assert.Empty(t, s.Progress())
	assert.NoError(t, s.Err(), "cancellation from a session change is not an error")
}

func TestLogoutClearsProgress(t *testing.T) {
	remote := newFakeRemote()
	sessions := signedIn("u1")
	s := newTestStore(t, remote, sessions)

	require.NoError(t, s.UpdateProgress(context.Background(), "t1", completed()))
	require.Len(t, s.Progress(), 1)

	sessions.set(nil)
	assert.Empty(t, s.Progress())
	assert.Zero(t, s.Metrics().PortfolioValue)
}

func TestLoadActivityFeedsMetrics(t *testing.T) {
	remote := newFakeRemote()
	remote.activity = []models.ActivityPoint{
		{Day: "2024-05-01", Label: "Wed", Value: 5},
		{Day: "2024-05-02", Label: "Thu", Value: 0},
		{Day: "2024-05-03", Label: "Fri", Value: 12},
	}
	s := newTestStore(t, remote, signedIn("u1"))

	points, err := s.LoadActivity(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, points, 3)
	assert.Equal(t, points, s.Metrics().DailyActivity)

	history, err := s.PopularityHistory(context.Background(), "t1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
