package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/drinks-fyi/pkg/auth"
	"github.com/Sternrassler/drinks-fyi/pkg/prime"
	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

const seedYAML = `drinks:
  - title: Negroni
    description: Bitter, sweet and strong.
    ingredients:
      - 30ml gin
      - 30ml Campari
      - 30ml sweet vermouth
    calories: 200
    notes: Stir over ice, garnish with **orange peel**.
    tags: [Bitter, Gin, Stirred]
    image: negroni.jpg
  - title: Daiquiri
    description: Rum, lime and sugar.
    ingredients:
      - 60ml white rum
      - 25ml lime juice
      - 15ml sugar syrup
    calories: 180
    tags: [sour, rum]
`

// testEnv writes a config pointing at a database in a temp dir.
func testEnv(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "drinks.db")
	configPath = filepath.Join(dir, "config.yaml")
	cfg := "database:\n  path: " + dbPath + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o600))
	return configPath, dbPath
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	return path
}

func TestParseSeed(t *testing.T) {
	ds, err := parseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "Negroni", ds[0].Title)
	assert.Equal(t, 200, ds[0].Calories)
	assert.Len(t, ds[0].Ingredients, 3)
	assert.Equal(t, "negroni.jpg", ds[0].Image)

	_, err = parseSeed(strings.NewReader("drinks:\n  - title: X\n    colour: red\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestSeedCommand(t *testing.T) {
	configPath, dbPath := testEnv(t)
	seed := writeSeed(t)

	out, err := run(t, "", "--config", configPath, "seed", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "created 2, updated 0")

	out, err = run(t, "", "--config", configPath, "seed", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "created 0, updated 2")

	st, err := store.Open(context.Background(), dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	d, err := st.GetDrink(context.Background(), "negroni")
	require.NoError(t, err)
	assert.Equal(t, []string{"bitter", "gin", "stirred"}, d.Tags)
}

func TestSeedCommand_MissingFile(t *testing.T) {
	configPath, _ := testEnv(t)
	_, err := run(t, "", "--config", configPath, "seed", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReindexCommand(t *testing.T) {
	configPath, _ := testEnv(t)
	_, err := run(t, "", "--config", configPath, "seed", writeSeed(t))
	require.NoError(t, err)

	out, err := run(t, "", "--config", configPath, "reindex", "--query", "lime")
	require.NoError(t, err)
	assert.Contains(t, out, "documents: 2")
	assert.Contains(t, out, "Daiquiri (daiquiri)")
	assert.NotContains(t, out, "Negroni (negroni)")
}

func TestUserAddCommand(t *testing.T) {
	configPath, dbPath := testEnv(t)
	t.Setenv("DRINKS_ADMIN_PASSWORD", "")

	_, err := run(t, "", "--config", configPath, "user", "add", "alice")
	assert.Error(t, err, "no password given")

	out, err := run(t, "correct-horse\n", "--config", configPath, "user", "add", "alice", "--password-stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "saved admin user alice")

	_, err = run(t, "short\n", "--config", configPath, "user", "add", "bob", "--password-stdin")
	assert.ErrorIs(t, err, auth.ErrWeakPassword)

	st, err := store.Open(context.Background(), dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	a, err := auth.New(st, auth.Config{Secret: []byte(strings.Repeat("s", 32))}, zerolog.Nop())
	require.NoError(t, err)
	_, err = a.Authenticate(context.Background(), "alice", "correct-horse")
	assert.NoError(t, err)
}

func TestUserAddCommand_PasswordFromEnv(t *testing.T) {
	configPath, dbPath := testEnv(t)
	t.Setenv("DRINKS_ADMIN_PASSWORD", "from-the-env")

	_, err := run(t, "", "--config", configPath, "user", "add", "carol")
	require.NoError(t, err)

	st, err := store.Open(context.Background(), dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()
	u, err := st.GetUser(context.Background(), "carol")
	require.NoError(t, err)
	assert.NotEqual(t, "from-the-env", u.PasswordHash)
}

func TestPrimeCommand(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 12})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	rdb.FlushDB(context.Background())
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})

	configPath, _ := testEnv(t)
	t.Setenv("DRINKS_REDIS_ADDR", "localhost:6379")
	t.Setenv("DRINKS_REDIS_DB", "12")

	_, err := run(t, "", "--config", configPath, "seed", writeSeed(t))
	require.NoError(t, err)

	out, err := run(t, "", "--config", configPath, "prime")
	require.NoError(t, err)

	var report prime.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.PurgeAll)
	assert.Zero(t, report.Failed)
	assert.Positive(t, report.Primed)

	out, err = run(t, "", "--config", configPath, "prime", "--slug", "negroni")
	require.NoError(t, err)
	report = prime.Report{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.PurgeAll)
	assert.Contains(t, report.Purged, "drink:negroni")
}

func TestUntilModified(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	ctx, cancel, err := untilModified(context.Background(), path)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, os.WriteFile(path, []byte("a: 2\n"), 0o600))

	select {
	case <-ctx.Done():
		assert.Contains(t, context.Cause(ctx).Error(), "is updated")
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after write")
	}
}

func TestUntilModified_Cancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	ctx, cancel, err := untilModified(context.Background(), path)
	require.NoError(t, err)
	cancel()

	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
}

func TestUntilModified_MissingFile(t *testing.T) {
	_, _, err := untilModified(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
