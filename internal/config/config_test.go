package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "telegram:\n  bot_token: abc\ndatabase:\n  path: "+filepath.Join(dir, "db", "x.db")+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Telegram.BotToken)
	assert.Equal(t, 8, cfg.Schedule.FirstHour)
	assert.Equal(t, 24, cfg.Schedule.LastHour)
	assert.Equal(t, []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0}, cfg.Schedule.Durations)
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, 100, cfg.Orders.DescriptionMaxLen)
	assert.Equal(t, 1, cfg.Orders.RatingMultiplier)
	assert.Equal(t, "memory", cfg.Sessions.Backend)
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("CARSERVICE_TEST_TOKEN", "from-env")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "telegram:\n  bot_token: ${CARSERVICE_TEST_TOKEN}\nadmin_id: 77\ndatabase:\n  path: "+filepath.Join(dir, "x.db")+"\nsessions:\n  timeout_minutes: 5\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
	assert.Equal(t, int64(77), cfg.AdminID)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadWorkshopConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("defaults work types", func(t *testing.T) {
		path := writeFile(t, dir, "w1.yaml", "name: Гараж\nsupport:\n  phone: \"+7 900\"\n")
		cfg, err := LoadWorkshopConfig(path)
		require.NoError(t, err)
		assert.Len(t, cfg.WorkTypes, 4)
		title, ok := cfg.WorkTitle("diag_repair")
		assert.True(t, ok)
		assert.Equal(t, "Диагностика и ремонт", title)
		assert.Equal(t, "+7 900", cfg.Support.Phone)
	})

	t.Run("duplicate key", func(t *testing.T) {
		path := writeFile(t, dir, "w2.yaml", "work_types:\n  - {key: a, title: A}\n  - {key: a, title: B}\n")
		_, err := LoadWorkshopConfig(path)
		assert.ErrorContains(t, err, "duplicate key")
	})

	t.Run("key with colon", func(t *testing.T) {
		path := writeFile(t, dir, "w3.yaml", "work_types:\n  - {key: \"a:b\", title: A}\n")
		_, err := LoadWorkshopConfig(path)
		assert.Error(t, err)
	})
}

func TestWatchWorkshopReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "workshop.yaml", "name: first\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan string, 4)
	err := WatchWorkshop(ctx, path, 10*time.Millisecond, func(c *WorkshopConfig) { updates <- c.Name })
	require.NoError(t, err)
	assert.Equal(t, "first", <-updates)

	future := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("name: second\n"), 0o600))
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case name := <-updates:
		assert.Equal(t, "second", name)
	case <-time.After(2 * time.Second):
		t.Fatal("workshop config was not reloaded")
	}
}
