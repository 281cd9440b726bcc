// Package readme renders the categorized star list into a single markdown
// document: one section per category plus a statistics block.
package readme

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rb81/github-stars-organizer/internal/models"
)

const timestampLayout = "2006-01-02 15:04:05 UTC"

// Builder renders deterministically: identical mapping and vocabulary produce
// identical output apart from the timestamp line.
type Builder struct {
	vocab models.Vocabulary
}

func NewBuilder(vocab models.Vocabulary) *Builder {
	return &Builder{vocab: vocab}
}

// Build renders the README. repos holds metadata for every starred repo keyed
// by identifier; mapping holds the category assignments. Repos without a
// mapping entry (a classification that failed this run) are omitted.
func (b *Builder) Build(repos map[string]models.Repo, mapping map[string]string, now time.Time) string {
	grouped := b.group(mapping)

	var sb strings.Builder
	sb.WriteString("# Starred Repositories\n\n")
	sb.WriteString(fmt.Sprintf("- **Last Updated:** %s\n", now.UTC().Format(timestampLayout)))
	sb.WriteString(fmt.Sprintf("- **Total Starred Repositories:** %d\n", len(repos)))
	sb.WriteString(fmt.Sprintf("- **Categorized:** %d\n", len(mapping)))
	if top := mostCommon(grouped); top != "" {
		sb.WriteString(fmt.Sprintf("- **Most Common Category:** %s\n", top))
	}
	sb.WriteString("\n")

	for _, category := range b.sectionOrder(grouped) {
		ids := grouped[category]
		sort.Strings(ids)

		sb.WriteString(fmt.Sprintf("## %s (%d)\n\n", category, len(ids)))
		if desc := b.vocab.Description(category); desc != "" {
			sb.WriteString(desc + "\n\n")
		}

		for _, id := range ids {
			sb.WriteString(renderRepo(id, repos[id]))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// Equivalent reports whether two rendered documents differ only in their
// timestamp line. Used to skip publishing a commit that would change nothing.
func Equivalent(a, b string) bool {
	return stripTimestamp(a) == stripTimestamp(b)
}

func (b *Builder) group(mapping map[string]string) map[string][]string {
	grouped := make(map[string][]string)
	for id, category := range mapping {
		grouped[category] = append(grouped[category], id)
	}
	return grouped
}

// sectionOrder returns the non-empty categories in vocabulary order, with the
// Other bucket last.
func (b *Builder) sectionOrder(grouped map[string][]string) []string {
	var order []string
	listsOther := false
	for _, name := range b.vocab.Names() {
		if name == models.OtherCategory {
			listsOther = true
		}
		if len(grouped[name]) > 0 {
			order = append(order, name)
		}
	}
	if !listsOther && len(grouped[models.OtherCategory]) > 0 {
		order = append(order, models.OtherCategory)
	}
	return order
}

func renderRepo(id string, repo models.Repo) string {
	url := repo.URL
	if url == "" {
		url = "https://github.com/" + id
	}

	line := fmt.Sprintf("- [%s](%s)", id, url)
	if repo.Stars > 0 {
		line += fmt.Sprintf(" ★ %d", repo.Stars)
	}
	if repo.Language != "" {
		line += fmt.Sprintf(" · %s", repo.Language)
	}
	if repo.Description != "" {
		line += " - " + repo.Description
	}
	return line + "\n"
}

func mostCommon(grouped map[string][]string) string {
	top, topCount := "", 0
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if n := len(grouped[name]); n > topCount {
			top, topCount = name, n
		}
	}
	return top
}

func stripTimestamp(doc string) string {
	lines := strings.Split(doc, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(line, "- **Last Updated:**") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
