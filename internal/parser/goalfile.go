package parser

import (
	"fmt"
	"strings"
)

// GoalFile is one goal described as Markdown with YAML frontmatter, the
// format consumed by `pulse goals import`.
type GoalFile struct {
	Title       string
	Description string
	Source      string
	Labels      []string
	Valence     float64
	Notes       []string
}

// ParseGoalFile reads a goal from Markdown. The title comes from the
// frontmatter or the first h1; body text above the first section heading
// becomes the description; list items under a "Notes" heading seed the
// progress log. Wiki links anywhere in the body are folded into the
// labels so imported goals keep their concept references.
func ParseGoalFile(content string) (*GoalFile, error) {
	doc, err := ParseMarkdown(content)
	if err != nil {
		return nil, err
	}

	gf := &GoalFile{
		Title:  doc.Title,
		Source: doc.GetFrontmatterString("source"),
		Labels: doc.GetFrontmatterStringSlice("labels"),
	}
	if gf.Title == "" {
		return nil, fmt.Errorf("goal file has no title")
	}

	switch v := doc.Frontmatter["valence"].(type) {
	case float64:
		gf.Valence = v
	case int:
		gf.Valence = float64(v)
	}

	gf.Description = leadingText(doc.Content)

	for _, section := range doc.Sections {
		if strings.EqualFold(section.Heading, "notes") {
			gf.Notes = append(gf.Notes, listItems(section.Content)...)
		}
	}

	for _, link := range ExtractWikiLinks(doc.Content) {
		if !containsFold(gf.Labels, link) {
			gf.Labels = append(gf.Labels, link)
		}
	}

	return gf, nil
}

// leadingText returns the body above the first section heading, with a
// leading h1 line removed.
func leadingText(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "##") {
			break
		}
		if strings.HasPrefix(trimmed, "# ") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func listItems(content string) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if item, ok := strings.CutPrefix(trimmed, "- "); ok {
			items = append(items, strings.TrimSpace(item))
		} else if item, ok := strings.CutPrefix(trimmed, "* "); ok {
			items = append(items, strings.TrimSpace(item))
		}
	}
	return items
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
