package models

import (
	"fmt"
	"strings"
)

// OtherCategory is the fallback bucket for repos the model cannot place in
// the configured vocabulary. It is always a legal label even when the
// vocabulary file does not list it.
const OtherCategory = "Other"

// Repo is one starred repository as fetched from GitHub. Immutable for the
// duration of a run.
type Repo struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description,omitempty"`
	URL           string `json:"url"`
	Language      string `json:"language,omitempty"`
	Stars         int    `json:"stars"`
	ReadmeExcerpt string `json:"readme_excerpt,omitempty"`
}

// Category is one entry of the configured vocabulary. The description doubles
// as a prompt hint for the categorizer.
type Category struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Vocabulary is the closed, ordered set of permissible category labels.
type Vocabulary []Category

// Contains reports whether name is a configured category or the Other bucket.
func (v Vocabulary) Contains(name string) bool {
	if name == OtherCategory {
		return true
	}
	for _, c := range v {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Names returns the category names in vocabulary order.
func (v Vocabulary) Names() []string {
	names := make([]string, 0, len(v))
	for _, c := range v {
		names = append(names, c.Name)
	}
	return names
}

// Description returns the configured description for name, if any.
func (v Vocabulary) Description(name string) string {
	for _, c := range v {
		if c.Name == name {
			return c.Description
		}
	}
	return ""
}

// SplitRepoID splits an "owner/name" identifier.
func SplitRepoID(id string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(id, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repo identifier %q (want owner/name)", id)
	}
	return owner, name, nil
}
