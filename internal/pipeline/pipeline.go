// Package pipeline orchestrates one run: fetch stars, reconcile against the
// cached snapshot, classify additions, persist the cache, render and publish
// the README.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rb81/github-stars-organizer/internal/cache"
	"github.com/rb81/github-stars-organizer/internal/config"
	"github.com/rb81/github-stars-organizer/internal/models"
	"github.com/rb81/github-stars-organizer/internal/readme"
	"github.com/rb81/github-stars-organizer/internal/reconcile"
)

// GitHub is the slice of the GitHub client the pipeline uses.
type GitHub interface {
	ListStarred(ctx context.Context) ([]models.Repo, error)
	ReadmeExcerpt(ctx context.Context, id string) (string, error)
	PublishReadme(ctx context.Context, targetRepo, content string) (bool, error)
}

// Categorizer assigns one vocabulary label to a repo.
type Categorizer interface {
	Categorize(ctx context.Context, repo models.Repo, vocab models.Vocabulary) (string, error)
}

type Options struct {
	DryRun       bool
	SkipClassify bool
	Reclassify   bool
	LocalOnly    bool
	OutputDir    string
	Workers      int
}

// Run executes one full pass. Phases are strictly ordered: the fetch
// completes before diffing, all classifications complete before the README is
// built, and the README is built before it is published.
func Run(ctx context.Context, cfg *config.Config, gh GitHub, categorizer Categorizer, opts Options, log zerolog.Logger) error {
	store, err := cache.New(cfg.CacheDir)
	if err != nil {
		return err
	}
	mapping, snap, err := store.Load()
	if err != nil {
		return err
	}

	repos, err := gh.ListStarred(ctx)
	if err != nil {
		return fmt.Errorf("fetching starred repos: %w", err)
	}
	log.Info().Int("count", len(repos)).Msg("fetched starred repos")

	// An empty fetch against a non-empty snapshot is more likely a silent
	// API failure than a user unstarring everything. Abort instead of
	// emptying the README; deleting the cache files overrides.
	if len(repos) == 0 && len(snap.Repos) > 0 {
		return fmt.Errorf("fetch returned no starred repos but the last run saw %d; refusing to treat this as mass removal (delete the cache files to override)", len(snap.Repos))
	}

	byID := make(map[string]models.Repo, len(repos))
	ids := make([]string, 0, len(repos))
	for _, r := range repos {
		if _, dup := byID[r.FullName]; dup {
			continue
		}
		byID[r.FullName] = r
		ids = append(ids, r.FullName)
	}

	added, removed := reconcile.Diff(snap.Repos, ids)
	log.Info().Int("added", len(added)).Int("removed", len(removed)).Msg("reconciled against snapshot")

	// Prune every mapping entry whose repo is not in the current fetch. This
	// covers the removed ids from the diff, and also a mapping that got ahead
	// of its snapshot (crash between the two renames in the cache save): such
	// a ghost entry is in neither set and would otherwise survive forever.
	for id := range mapping {
		if _, ok := byID[id]; !ok {
			delete(mapping, id)
			log.Debug().Str("repo", id).Msg("dropped unstarred repo from mapping")
		}
	}

	if opts.Reclassify {
		mapping = make(map[string]string, len(ids))
	}

	// The vocabulary file may have changed since the mapping was written.
	// Entries with labels that are no longer legal get reclassified.
	for id, category := range mapping {
		if !cfg.Vocabulary.Contains(category) {
			delete(mapping, id)
			log.Warn().Str("repo", id).Str("category", category).Msg("cached category no longer in vocabulary, reclassifying")
		}
	}

	var classified int
	if !opts.SkipClassify {
		candidates := reconcile.Candidates(ids, mapping)
		classified = classify(ctx, gh, categorizer, cfg.Vocabulary, byID, candidates, mapping, opts.Workers, log)
	}

	if err := store.Save(mapping, cache.Snapshot{Repos: ids}); err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}

	if len(added) == 0 && len(removed) == 0 && classified == 0 && !opts.Reclassify {
		log.Info().Msg("no changes since last run")
	}

	// Always render and publish: the publisher skips the commit when the
	// remote content is unchanged, and this is what makes a rerun after a
	// failed publish actually deliver the README.
	content := readme.NewBuilder(cfg.Vocabulary).Build(byID, mapping, time.Now())

	if opts.OutputDir != "" {
		path := filepath.Join(opts.OutputDir, "README.md")
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing local README: %w", err)
		}
		log.Info().Str("path", path).Msg("wrote local README")
	}

	if opts.DryRun || opts.LocalOnly {
		log.Info().Msg("skipping publish")
		return nil
	}

	if _, err := gh.PublishReadme(ctx, cfg.TargetRepo, content); err != nil {
		return fmt.Errorf("publishing README: %w", err)
	}
	return nil
}

// classify runs the categorizer over candidates with bounded concurrency.
// A failure for one repo is logged and skipped; the repo stays unmapped and
// is retried on the next run. Returns the number of repos classified.
func classify(ctx context.Context, gh GitHub, categorizer Categorizer, vocab models.Vocabulary, byID map[string]models.Repo, candidates []string, mapping map[string]string, workers int, log zerolog.Logger) int {
	if len(candidates) == 0 {
		log.Info().Msg("all starred repos already categorized")
		return 0
	}
	if workers < 1 {
		workers = 1
	}
	log.Info().Int("count", len(candidates)).Msg("classifying repos")

	var mu sync.Mutex
	classified := 0

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, id := range candidates {
		id := id
		g.Go(func() error {
			repo := byID[id]

			excerpt, err := gh.ReadmeExcerpt(gCtx, id)
			if err != nil {
				log.Warn().Str("repo", id).Err(err).Msg("could not fetch README excerpt")
			}
			repo.ReadmeExcerpt = excerpt

			category, err := categorizer.Categorize(gCtx, repo, vocab)
			if err != nil {
				log.Warn().Str("repo", id).Err(err).Msg("classification failed, will retry next run")
				return nil
			}

			mu.Lock()
			mapping[id] = category
			classified++
			mu.Unlock()

			log.Debug().Str("repo", id).Str("category", category).Msg("classified")
			return nil
		})
	}

	_ = g.Wait()
	log.Info().Int("classified", classified).Msg("classification complete")
	return classified
}
