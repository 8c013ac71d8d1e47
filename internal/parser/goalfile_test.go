package parser

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseGoalFile(t *testing.T) {
	content := `---
title: Learn fermentation
source: user_request
labels: [kitchen, food]
valence: 0.6
---

Get a feel for [[lacto-fermentation]] before autumn. Start small.

## Notes

- bought jars
- read the basics

## Unrelated

Not a note.
`

	gf, err := ParseGoalFile(content)
	if err != nil {
		t.Fatalf("ParseGoalFile() error = %v", err)
	}

	if gf.Title != "Learn fermentation" {
		t.Errorf("Title = %q, want %q", gf.Title, "Learn fermentation")
	}
	if gf.Source != "user_request" {
		t.Errorf("Source = %q, want user_request", gf.Source)
	}
	if gf.Valence != 0.6 {
		t.Errorf("Valence = %v, want 0.6", gf.Valence)
	}
	if !strings.Contains(gf.Description, "Get a feel for") {
		t.Errorf("Description = %q, want body text", gf.Description)
	}
	if strings.Contains(gf.Description, "bought jars") {
		t.Errorf("Description = %q, should stop at first heading", gf.Description)
	}

	wantLabels := []string{"kitchen", "food", "lacto-fermentation"}
	if !reflect.DeepEqual(gf.Labels, wantLabels) {
		t.Errorf("Labels = %v, want %v", gf.Labels, wantLabels)
	}

	wantNotes := []string{"bought jars", "read the basics"}
	if !reflect.DeepEqual(gf.Notes, wantNotes) {
		t.Errorf("Notes = %v, want %v", gf.Notes, wantNotes)
	}
}

func TestParseGoalFileTitleFromHeading(t *testing.T) {
	content := "# Fix the greenhouse vent\n\nThe hinge sticks when it rains.\n"

	gf, err := ParseGoalFile(content)
	if err != nil {
		t.Fatalf("ParseGoalFile() error = %v", err)
	}
	if gf.Title != "Fix the greenhouse vent" {
		t.Errorf("Title = %q, want h1 text", gf.Title)
	}
	if gf.Description != "The hinge sticks when it rains." {
		t.Errorf("Description = %q, want body without h1", gf.Description)
	}
}

func TestParseGoalFileRequiresTitle(t *testing.T) {
	if _, err := ParseGoalFile("just some text without structure"); err == nil {
		t.Fatal("ParseGoalFile() error = nil, want missing title error")
	}
}

func TestParseGoalFileIntValence(t *testing.T) {
	content := "---\ntitle: Tidy the desk\nvalence: 1\n---\n\nClear surface.\n"

	gf, err := ParseGoalFile(content)
	if err != nil {
		t.Fatalf("ParseGoalFile() error = %v", err)
	}
	if gf.Valence != 1 {
		t.Errorf("Valence = %v, want 1", gf.Valence)
	}
}

func TestParseGoalFileDedupesWikiLinkLabels(t *testing.T) {
	content := `---
title: Map the garden beds
labels: [garden]
---

The [[Garden]] plan mentions [[garden]] twice.
`

	gf, err := ParseGoalFile(content)
	if err != nil {
		t.Fatalf("ParseGoalFile() error = %v", err)
	}
	if !reflect.DeepEqual(gf.Labels, []string{"garden"}) {
		t.Errorf("Labels = %v, want [garden]", gf.Labels)
	}
}
