package cmd

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"luminate/backend/cache"
	"luminate/backend/routes"
	"luminate/backend/seed"
	"luminate/backend/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startAPI serves a seeded API on a loopback port and points the CLI at it.
func startAPI(t *testing.T) {
	t.Helper()
	db := testutil.DB(t)
	catalog, err := seed.Default()
	require.NoError(t, err)
	_, err = seed.Apply(context.Background(), db, catalog, testutil.Logger(t))
	require.NoError(t, err)

	cfg := testutil.Config()
	app := routes.NewApp(db, cfg, testutil.Logger(t), cache.NewMemoryTopicCache(cfg.CacheTTL))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	t.Setenv("LUMINATE_API_URL", "http://"+ln.Addr().String())
	t.Setenv("LUMINATE_SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("LOG_MODE", "test")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLearnerFlow(t *testing.T) {
	startAPI(t)

	out, err := run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")

	_, err = run(t, "dashboard")
	assert.ErrorIs(t, err, errNotSignedIn)

	out, err = run(t, "signup", "--email", "a@example.com", "--password", "secret1", "--name", "Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada <a@example.com>")

	out, err = run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "a@example.com")

	out, err = run(t, "topics")
	require.NoError(t, err)
	web := strings.Index(out, "Web Development")
	ml := strings.Index(out, "Introduction to Machine")
	require.True(t, web >= 0 && ml >= 0, out)
	assert.Less(t, web, ml, "most popular topic comes first")

	out, err = run(t, "topics", "--search", "PHYSICS")
	require.NoError(t, err)
	assert.Contains(t, out, "Modern Physics")
	assert.NotContains(t, out, "Advanced Calculus")

	out, err = run(t, "progress", "topic-1", "--status", "completed", "--minutes", "25")
	require.NoError(t, err)
	assert.Contains(t, out, "100%")

	out, err = run(t, "progress", "topic-1", "--minutes", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "30 min")

	out, err = run(t, "topic", "topic-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Knowledge Check")
	assert.Contains(t, out, "completed")

	out, err = run(t, "dashboard", "--days", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome back, Ada")
	assert.Contains(t, out, "1 completed, 0 in progress, 4 not started")

	out, err = run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = run(t, "progress", "topic-1", "--percent", "10")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestLoginWithWrongPassword(t *testing.T) {
	startAPI(t)

	_, err := run(t, "signup", "--email", "b@example.com", "--password", "secret1")
	require.NoError(t, err)
	_, err = run(t, "logout")
	require.NoError(t, err)

	_, err = run(t, "login", "--email", "b@example.com", "--password", "nope")
	require.Error(t, err)

	out, err := run(t, "login", "--email", "b@example.com", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as b <b@example.com>")
}

func TestMixedCaseEmailIsKept(t *testing.T) {
	startAPI(t)

	_, err := run(t, "signup", "--email", "ada@example.com", "--password", "secret1")
	require.NoError(t, err)
	_, err = run(t, "logout")
	require.NoError(t, err)

	out, err := run(t, "login", "--email", "Ada@Example.com", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "<Ada@Example.com>")

	out, err = run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada@Example.com")
}

func TestTopicNotFound(t *testing.T) {
	startAPI(t)

	_, err := run(t, "topic", "nope")
	assert.ErrorContains(t, err, "not found")
}
