package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rb81/github-stars-organizer/internal/models"
)

// Config carries everything the run needs. It is built once at startup and
// passed by reference; nothing reads the environment after Load returns.
type Config struct {
	GitHubToken string
	TargetRepo  string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	CacheDir       string
	CategoriesFile string

	Vocabulary models.Vocabulary
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		GitHubToken: os.Getenv("GITHUB_TOKEN"),
		TargetRepo:  os.Getenv("GITHUB_REPO"),

		LLMBaseURL: os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   os.Getenv("LLM_MODEL"),

		CacheDir:       os.Getenv("CACHE_DIR"),
		CategoriesFile: os.Getenv("CATEGORIES_FILE"),
	}

	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = "https://api.openai.com/v1"
	}
	cfg.LLMBaseURL = strings.TrimSuffix(cfg.LLMBaseURL, "/")
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gpt-4o-mini"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "."
	}
	if cfg.CategoriesFile == "" {
		cfg.CategoriesFile = "categories.yaml"
	}

	return cfg
}

// Validate checks credentials and the target repo before any API call is made.
func (c *Config) Validate() error {
	var problems []string
	if c.GitHubToken == "" {
		problems = append(problems, "GITHUB_TOKEN is not set")
	}
	if c.LLMAPIKey == "" {
		problems = append(problems, "LLM_API_KEY is not set")
	}
	if c.TargetRepo == "" {
		problems = append(problems, "GITHUB_REPO is not set")
	} else if _, _, err := models.SplitRepoID(c.TargetRepo); err != nil {
		problems = append(problems, fmt.Sprintf("GITHUB_REPO: %v", err))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type categoriesFile struct {
	Categories []models.Category `yaml:"categories"`
}

// LoadCategories reads the vocabulary file. The file order is preserved and
// becomes the section order in the generated README.
func LoadCategories(path string) (models.Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading categories file: %w", err)
	}

	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("%s defines no categories", path)
	}

	seen := make(map[string]bool, len(f.Categories))
	for _, c := range f.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("%s contains a category without a name", path)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%s lists category %q twice", path, c.Name)
		}
		seen[c.Name] = true
	}

	return models.Vocabulary(f.Categories), nil
}
