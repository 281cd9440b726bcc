package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rb81/github-stars-organizer/internal/config"
	"github.com/rb81/github-stars-organizer/internal/github"
	"github.com/rb81/github-stars-organizer/internal/llm"
	"github.com/rb81/github-stars-organizer/internal/pipeline"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		debug        bool
		dryRun       bool
		skipClassify bool
		reclassify   bool
		localOnly    bool
		outputDir    string
		cacheDir     string
		categories   string
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "stars-organizer",
		Short: "Categorize GitHub starred repos with an LLM and publish a README",
		Long: `Fetches your starred repositories, classifies new ones into a fixed
category vocabulary using an LLM, and publishes the categorized list with
summary statistics as a README in a companion repository.

A local JSON cache keeps reruns cheap: only newly starred repos are sent to
the model, and unstarred repos are dropped from the list. Do not run two
instances against the same cache directory at once.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(debug)

			cfg := config.Load()
			if cacheDir != "" {
				cfg.CacheDir = cacheDir
			}
			if categories != "" {
				cfg.CategoriesFile = categories
			}
			if err := cfg.Validate(); err != nil {
				log.Error().Err(err).Msg("configuration incomplete")
				return err
			}

			vocab, err := config.LoadCategories(cfg.CategoriesFile)
			if err != nil {
				log.Error().Err(err).Msg("could not load category vocabulary")
				return err
			}
			cfg.Vocabulary = vocab

			if localOnly && outputDir == "" {
				outputDir = "."
			}

			ctx := context.Background()
			gh := github.NewClient(ctx, cfg.GitHubToken, log)
			categorizer := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, log)

			return pipeline.Run(ctx, cfg, gh, categorizer, pipeline.Options{
				DryRun:       dryRun,
				SkipClassify: skipClassify,
				Reclassify:   reclassify,
				LocalOnly:    localOnly,
				OutputDir:    outputDir,
				Workers:      workers,
			}, log)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run everything except the publish step")
	cmd.Flags().BoolVar(&skipClassify, "skip-classify", false, "Fetch, diff and cache only (no LLM calls)")
	cmd.Flags().BoolVar(&reclassify, "reclassify", false, "Discard the mapping and re-classify every starred repo")
	cmd.Flags().BoolVar(&localOnly, "local-only", false, "Write the README locally without publishing")
	cmd.Flags().StringVar(&outputDir, "output", "", "Also write the generated README to this directory")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory (default from CACHE_DIR, else current directory)")
	cmd.Flags().StringVar(&categories, "categories", "", "Category vocabulary file (default from CATEGORIES_FILE, else categories.yaml)")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent classification requests")

	return cmd
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
