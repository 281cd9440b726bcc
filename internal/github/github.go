// Package github wraps the pieces of the GitHub REST API this tool needs:
// listing the authenticated user's stars, pulling README excerpts for
// classification context, and publishing the generated README.
package github

import (
	"context"
	"fmt"
	"net/http"
	"unicode/utf8"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/rb81/github-stars-organizer/internal/models"
	"github.com/rb81/github-stars-organizer/internal/readme"
)

const readmePath = "README.md"

// maxExcerptLen caps README excerpts sent to the model.
const maxExcerptLen = 3000

type Client struct {
	gh  *gogithub.Client
	log zerolog.Logger
}

func NewClient(ctx context.Context, token string, log zerolog.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		gh:  gogithub.NewClient(oauth2.NewClient(ctx, ts)),
		log: log,
	}
}

// NewFromGitHub wraps an existing go-github client. Tests use this to point
// at an httptest server.
func NewFromGitHub(gh *gogithub.Client, log zerolog.Logger) *Client {
	return &Client{gh: gh, log: log}
}

// ListStarred fetches the authenticated user's complete starred list,
// following pagination to the end.
func (c *Client) ListStarred(ctx context.Context) ([]models.Repo, error) {
	var all []models.Repo
	opt := &gogithub.ActivityListStarredOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	for {
		starred, resp, err := c.gh.Activity.ListStarred(ctx, "", opt)
		if err != nil {
			return nil, fmt.Errorf("listing starred repos: %w", err)
		}
		for _, s := range starred {
			repo := s.GetRepository()
			if repo.GetFullName() == "" {
				continue
			}
			all = append(all, models.Repo{
				Owner:       repo.GetOwner().GetLogin(),
				Name:        repo.GetName(),
				FullName:    repo.GetFullName(),
				Description: repo.GetDescription(),
				URL:         repo.GetHTMLURL(),
				Language:    repo.GetLanguage(),
				Stars:       repo.GetStargazersCount(),
			})
		}
		c.log.Debug().Int("fetched", len(all)).Msg("fetched starred page")
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	return all, nil
}

// ReadmeExcerpt returns the start of a repo's README, capped at maxExcerptLen
// bytes. A missing README is not an error; the excerpt is simply empty.
func (c *Client) ReadmeExcerpt(ctx context.Context, id string) (string, error) {
	owner, name, err := models.SplitRepoID(id)
	if err != nil {
		return "", err
	}

	rm, resp, err := c.gh.Repositories.GetReadme(ctx, owner, name, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("fetching README for %s: %w", id, err)
	}

	content, err := rm.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding README for %s: %w", id, err)
	}
	if len(content) > maxExcerptLen {
		cut := maxExcerptLen
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	return content, nil
}

// PublishReadme creates or updates README.md in the target repo. The commit
// is skipped when the remote content matches apart from the timestamp line.
// Returns true when a commit was made.
func (c *Client) PublishReadme(ctx context.Context, targetRepo, content string) (bool, error) {
	owner, name, err := models.SplitRepoID(targetRepo)
	if err != nil {
		return false, err
	}

	existing, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, name, readmePath, nil)
	if err != nil && (resp == nil || resp.StatusCode != http.StatusNotFound) {
		return false, fmt.Errorf("reading %s in %s: %w", readmePath, targetRepo, err)
	}

	if existing == nil {
		_, _, err = c.gh.Repositories.CreateFile(ctx, owner, name, readmePath, &gogithub.RepositoryContentFileOptions{
			Message: gogithub.String("Create starred repositories README"),
			Content: []byte(content),
		})
		if err != nil {
			return false, fmt.Errorf("creating %s in %s: %w", readmePath, targetRepo, err)
		}
		c.log.Info().Str("repo", targetRepo).Msg("created README")
		return true, nil
	}

	remote, err := existing.GetContent()
	if err != nil {
		return false, fmt.Errorf("decoding remote %s: %w", readmePath, err)
	}
	if readme.Equivalent(remote, content) {
		c.log.Info().Str("repo", targetRepo).Msg("README unchanged, skipping commit")
		return false, nil
	}

	_, _, err = c.gh.Repositories.UpdateFile(ctx, owner, name, readmePath, &gogithub.RepositoryContentFileOptions{
		Message: gogithub.String("Update starred repositories README"),
		Content: []byte(content),
		SHA:     existing.SHA,
	})
	if err != nil {
		return false, fmt.Errorf("updating %s in %s: %w", readmePath, targetRepo, err)
	}
	c.log.Info().Str("repo", targetRepo).Msg("updated README")
	return true, nil
}
