package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReviewFile(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.yml"), []byte(body), 0o644))
}

func TestReviewConfigDefaultsFromEnvConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewReviewConfigHolder(Config{
		HighCostThreshold:   2_500_000,
		ReviewOnMissingAuth: true,
	})
	require.NoError(t, err)

	rules := holder.Get()
	assert.Equal(t, int64(2_500_000), rules.HighCostThreshold)
	assert.True(t, rules.ReviewOnMissingAuth)
}

func TestReviewConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeReviewFile(t, dir, "review:\n  highCostThreshold: 5000000\n  reviewOnMissingAuth: true\n")
	t.Chdir(dir)

	holder, err := NewReviewConfigHolder(Config{HighCostThreshold: 100})
	require.NoError(t, err)

	rules := holder.Get()
	assert.Equal(t, int64(5_000_000), rules.HighCostThreshold)
	assert.True(t, rules.ReviewOnMissingAuth)
}

func TestReviewConfigHotReload(t *testing.T) {
	dir := t.TempDir()
	writeReviewFile(t, dir, "review:\n  highCostThreshold: 1000000\n")
	t.Chdir(dir)

	holder, err := NewReviewConfigHolder(Config{})
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), holder.Get().HighCostThreshold)

	writeReviewFile(t, dir, "review:\n  highCostThreshold: 3000000\n  reviewOnMissingAuth: true\n")

	require.Eventually(t, func() bool {
		return holder.Get().HighCostThreshold == 3_000_000
	}, 5*time.Second, 25*time.Millisecond)
	assert.True(t, holder.Get().ReviewOnMissingAuth)
}

func TestReviewConfigIgnoresInvalidReload(t *testing.T) {
	dir := t.TempDir()
	writeReviewFile(t, dir, "review:\n  highCostThreshold: 1000000\n")
	t.Chdir(dir)

	holder, err := NewReviewConfigHolder(Config{})
	require.NoError(t, err)

	// An invalid rule set must never be swapped in; the previous one
	// keeps serving.
	writeReviewFile(t, dir, "review:\n  highCostThreshold: -1\n")

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int64(1_000_000), holder.Get().HighCostThreshold)
}

func TestReviewConfigRejectsNegativeThreshold(t *testing.T) {
	dir := t.TempDir()
	writeReviewFile(t, dir, "review:\n  highCostThreshold: -5\n")
	t.Chdir(dir)

	_, err := NewReviewConfigHolder(Config{})
	assert.Error(t, err)
}

func TestStaticReviewConfigHolder(t *testing.T) {
	holder := StaticReviewConfigHolder(ReviewConfig{HighCostThreshold: 42, ReviewOnMissingAuth: true})
	assert.Equal(t, int64(42), holder.Get().HighCostThreshold)
	assert.True(t, holder.Get().ReviewOnMissingAuth)
}
