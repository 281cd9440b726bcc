package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rb81/github-stars-organizer/internal/cache"
	"github.com/rb81/github-stars-organizer/internal/config"
	"github.com/rb81/github-stars-organizer/internal/models"
	"github.com/rb81/github-stars-organizer/internal/pipeline"
)

var testVocab = models.Vocabulary{
	{Name: "Developer Tool"},
	{Name: "Library/SDK"},
}

type fakeGitHub struct {
	mu         sync.Mutex
	starred    []models.Repo
	listErr    error
	publishErr error
	published  []string
	excerpts   map[string]string
}

func (f *fakeGitHub) ListStarred(context.Context) ([]models.Repo, error) {
	return f.starred, f.listErr
}

func (f *fakeGitHub) ReadmeExcerpt(_ context.Context, id string) (string, error) {
	return f.excerpts[id], nil
}

func (f *fakeGitHub) PublishReadme(_ context.Context, _, content string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return false, f.publishErr
	}
	f.published = append(f.published, content)
	return true, nil
}

type fakeCategorizer struct {
	mu      sync.Mutex
	labels  map[string]string
	failFor map[string]bool
	calls   []string
}

func (f *fakeCategorizer) Categorize(_ context.Context, repo models.Repo, _ models.Vocabulary) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, repo.FullName)
	f.mu.Unlock()
	if f.failFor[repo.FullName] {
		return "", errors.New("simulated API failure")
	}
	if label, ok := f.labels[repo.FullName]; ok {
		return label, nil
	}
	return models.OtherCategory, nil
}

func repo(fullName string) models.Repo {
	return models.Repo{
		FullName: fullName,
		URL:      "https://github.com/" + fullName,
		Stars:    10,
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		GitHubToken: "t",
		LLMAPIKey:   "k",
		TargetRepo:  "rb81/my-stars",
		CacheDir:    t.TempDir(),
		Vocabulary:  testVocab,
	}
}

func loadCache(t *testing.T, dir string) (map[string]string, cache.Snapshot) {
	t.Helper()
	store, err := cache.New(dir)
	require.NoError(t, err)
	mapping, snap, err := store.Load()
	require.NoError(t, err)
	return mapping, snap
}

func seedCache(t *testing.T, dir string, mapping map[string]string, repos []string) {
	t.Helper()
	store, err := cache.New(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(mapping, cache.Snapshot{Repos: repos}))
}

func TestFirstRunClassifiesEverything(t *testing.T) {
	cfg := testConfig(t)
	gh := &fakeGitHub{starred: []models.Repo{repo("x/x"), repo("y/y")}}
	cat := &fakeCategorizer{labels: map[string]string{
		"x/x": "Developer Tool",
		"y/y": "Library/SDK",
	}}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)

	mapping, snap := loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"x/x": "Developer Tool", "y/y": "Library/SDK"}, mapping)
	assert.ElementsMatch(t, []string{"x/x", "y/y"}, snap.Repos)

	require.Len(t, gh.published, 1)
	assert.Contains(t, gh.published[0], "x/x")
	assert.Contains(t, gh.published[0], "y/y")
}

func TestAddAndRemove(t *testing.T) {
	cfg := testConfig(t)
	seedCache(t, cfg.CacheDir,
		map[string]string{"a/a": "Developer Tool", "b/b": "Developer Tool"},
		[]string{"a/a", "b/b"},
	)

	gh := &fakeGitHub{starred: []models.Repo{repo("b/b"), repo("c/c")}}
	cat := &fakeCategorizer{labels: map[string]string{"c/c": "Library/SDK"}}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)

	// Only the addition is classified; the survivor keeps its entry and the
	// removed repo's entry is deleted.
	assert.Equal(t, []string{"c/c"}, cat.calls)

	mapping, snap := loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"b/b": "Developer Tool", "c/c": "Library/SDK"}, mapping)
	assert.ElementsMatch(t, []string{"b/b", "c/c"}, snap.Repos)

	require.Len(t, gh.published, 1)
	assert.NotContains(t, gh.published[0], "a/a")
	assert.Contains(t, gh.published[0], "c/c")
}

func TestClassificationFailureDoesNotAbortRun(t *testing.T) {
	cfg := testConfig(t)
	gh := &fakeGitHub{starred: []models.Repo{repo("x/x"), repo("y/y")}}
	cat := &fakeCategorizer{
		labels:  map[string]string{"x/x": "Developer Tool"},
		failFor: map[string]bool{"y/y": true},
	}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)

	mapping, snap := loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"x/x": "Developer Tool"}, mapping)
	// The snapshot still records y/y as starred; only the mapping is missing.
	assert.ElementsMatch(t, []string{"x/x", "y/y"}, snap.Repos)

	// README lists x/x but not the failed repo.
	require.Len(t, gh.published, 1)
	assert.Contains(t, gh.published[0], "x/x")
	assert.NotContains(t, gh.published[0], "y/y")

	// A second run retries exactly the failed repo, even though the
	// snapshot already contains it.
	cat2 := &fakeCategorizer{labels: map[string]string{"y/y": "Library/SDK"}}
	err = pipeline.Run(context.Background(), cfg, gh, cat2, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"y/y"}, cat2.calls)

	mapping, _ = loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"x/x": "Developer Tool", "y/y": "Library/SDK"}, mapping)
}

func TestEmptyFetchWithNonEmptySnapshotAborts(t *testing.T) {
	cfg := testConfig(t)
	seedCache(t, cfg.CacheDir,
		map[string]string{"a/a": "Developer Tool"},
		[]string{"a/a"},
	)

	gh := &fakeGitHub{starred: nil}
	cat := &fakeCategorizer{}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mass removal")

	// Cache is untouched.
	mapping, snap := loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"a/a": "Developer Tool"}, mapping)
	assert.Equal(t, []string{"a/a"}, snap.Repos)
	assert.Empty(t, gh.published)
}

func TestFetchErrorAborts(t *testing.T) {
	cfg := testConfig(t)
	gh := &fakeGitHub{listErr: errors.New("boom")}

	err := pipeline.Run(context.Background(), cfg, gh, &fakeCategorizer{}, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.Error(t, err)
	assert.Empty(t, gh.published)
}

func TestNoChangesSpendsNoModelCalls(t *testing.T) {
	cfg := testConfig(t)
	seedCache(t, cfg.CacheDir,
		map[string]string{"a/a": "Developer Tool"},
		[]string{"a/a"},
	)

	gh := &fakeGitHub{starred: []models.Repo{repo("a/a")}}
	cat := &fakeCategorizer{}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, cat.calls)
	// Publish is still attempted; the real client detects the unchanged
	// remote content and skips the commit.
	assert.Len(t, gh.published, 1)
}

func TestRerunAfterPublishFailureRepublishes(t *testing.T) {
	cfg := testConfig(t)
	gh := &fakeGitHub{
		starred:    []models.Repo{repo("x/x")},
		publishErr: errors.New("503 from API"),
	}
	cat := &fakeCategorizer{labels: map[string]string{"x/x": "Developer Tool"}}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.Error(t, err)

	// Cache was saved before the publish step, so the rerun spends no model
	// calls but still delivers the README.
	gh.publishErr = nil
	cat2 := &fakeCategorizer{}
	err = pipeline.Run(context.Background(), cfg, gh, cat2, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, cat2.calls)
	require.Len(t, gh.published, 1)
	assert.Contains(t, gh.published[0], "x/x")
}

func TestDryRunSkipsPublish(t *testing.T) {
	cfg := testConfig(t)
	gh := &fakeGitHub{starred: []models.Repo{repo("x/x")}}
	cat := &fakeCategorizer{labels: map[string]string{"x/x": "Developer Tool"}}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1, DryRun: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, gh.published)

	// The cache is still updated so the next real run is cheap.
	mapping, _ := loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"x/x": "Developer Tool"}, mapping)
}

func TestSkipClassifyLeavesMappingAlone(t *testing.T) {
	cfg := testConfig(t)
	gh := &fakeGitHub{starred: []models.Repo{repo("x/x")}}
	cat := &fakeCategorizer{}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1, SkipClassify: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, cat.calls)

	mapping, snap := loadCache(t, cfg.CacheDir)
	assert.Empty(t, mapping)
	assert.Equal(t, []string{"x/x"}, snap.Repos)
}

func TestReclassifyRebuildsMapping(t *testing.T) {
	cfg := testConfig(t)
	seedCache(t, cfg.CacheDir,
		map[string]string{"a/a": "Developer Tool"},
		[]string{"a/a"},
	)

	gh := &fakeGitHub{starred: []models.Repo{repo("a/a")}}
	cat := &fakeCategorizer{labels: map[string]string{"a/a": "Library/SDK"}}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1, Reclassify: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/a"}, cat.calls)

	mapping, _ := loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"a/a": "Library/SDK"}, mapping)
	require.Len(t, gh.published, 1)
}

func TestMappingEntryOutsideSnapshotAndFetchIsPruned(t *testing.T) {
	cfg := testConfig(t)
	// A crash between the mapping and snapshot writes can leave the mapping
	// ahead of the snapshot. If the extra repo is then unstarred, it is in
	// neither the snapshot nor the fetch — it must still be pruned.
	seedCache(t, cfg.CacheDir,
		map[string]string{"a/a": "Developer Tool", "ghost/ghost": "Developer Tool"},
		[]string{"a/a"},
	)

	gh := &fakeGitHub{starred: []models.Repo{repo("a/a")}}
	cat := &fakeCategorizer{}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, cat.calls)

	mapping, snap := loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"a/a": "Developer Tool"}, mapping)
	assert.Equal(t, []string{"a/a"}, snap.Repos)

	require.Len(t, gh.published, 1)
	assert.NotContains(t, gh.published[0], "ghost/ghost")
	assert.Contains(t, gh.published[0], "- **Total Starred Repositories:** 1")
	assert.Contains(t, gh.published[0], "- **Categorized:** 1")
}

func TestStaleCategoryIsReclassified(t *testing.T) {
	cfg := testConfig(t)
	// "Old Category" was legal when the cache was written but is no longer
	// in the vocabulary file.
	seedCache(t, cfg.CacheDir,
		map[string]string{"a/a": "Old Category", "b/b": "Developer Tool"},
		[]string{"a/a", "b/b"},
	)

	gh := &fakeGitHub{starred: []models.Repo{repo("a/a"), repo("b/b")}}
	cat := &fakeCategorizer{labels: map[string]string{"a/a": "Library/SDK"}}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/a"}, cat.calls)

	mapping, _ := loadCache(t, cfg.CacheDir)
	assert.Equal(t, map[string]string{"a/a": "Library/SDK", "b/b": "Developer Tool"}, mapping)
}

func TestExcerptPassedToCategorizer(t *testing.T) {
	cfg := testConfig(t)
	gh := &fakeGitHub{
		starred:  []models.Repo{repo("x/x")},
		excerpts: map[string]string{"x/x": "# X\nA thing."},
	}

	var got string
	cat := &capturingCategorizer{onCall: func(r models.Repo) { got = r.ReadmeExcerpt }}

	err := pipeline.Run(context.Background(), cfg, gh, cat, pipeline.Options{Workers: 1}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "# X\nA thing.", got)
}

type capturingCategorizer struct {
	onCall func(models.Repo)
}

func (c *capturingCategorizer) Categorize(_ context.Context, repo models.Repo, _ models.Vocabulary) (string, error) {
	c.onCall(repo)
	return models.OtherCategory, nil
}
