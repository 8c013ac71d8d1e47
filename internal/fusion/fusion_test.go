package fusion

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/raphaelgruber/pulse/internal/models"
)

func TestComputeMergesSignals(t *testing.T) {
	// Subject x: entity a is both a 1-hop neighbor and a 0.9 similarity
	// candidate, entity b co-occurs two positions away in one episode.
	in := Input{
		SubjectID:  "x",
		OneHop:     []string{"a"},
		Candidates: []Candidate{{ID: "a", Similarity: 0.9}},
		Occurrences: []Occurrence{
			{EntityID: "x", EpisodeID: "ep1", Sequence: 4},
			{EntityID: "b", EpisodeID: "ep1", Sequence: 6},
		},
	}

	got := Compute(in)
	want := []models.Neighbor{
		{ID: "a", Weight: 1.45},
		{ID: "b", Weight: 0.3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Compute() = %v, want %v", got, want)
	}
}

func TestComputeStructural(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want []models.Neighbor
	}{
		{
			name: "one and two hop weights",
			in: Input{
				SubjectID: "x",
				OneHop:    []string{"a", "b"},
				TwoHop:    []string{"c"},
			},
			want: []models.Neighbor{
				{ID: "a", Weight: 1.0},
				{ID: "b", Weight: 1.0},
				{ID: "c", Weight: 0.5},
			},
		},
		{
			name: "two hop duplicate of one hop is ignored",
			in: Input{
				SubjectID: "x",
				OneHop:    []string{"a"},
				TwoHop:    []string{"a", "b", "b"},
			},
			want: []models.Neighbor{
				{ID: "a", Weight: 1.0},
				{ID: "b", Weight: 0.5},
			},
		},
		{
			name: "subject never counts as its own neighbor",
			in: Input{
				SubjectID: "x",
				OneHop:    []string{"x", "a"},
				TwoHop:    []string{"x"},
			},
			want: []models.Neighbor{{ID: "a", Weight: 1.0}},
		},
		{
			name: "empty input",
			in:   Input{SubjectID: "x"},
			want: []models.Neighbor{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Compute() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeSimilarity(t *testing.T) {
	t.Run("floor is strict", func(t *testing.T) {
		in := Input{
			SubjectID: "x",
			Candidates: []Candidate{
				{ID: "a", Similarity: 0.76},
				{ID: "b", Similarity: 0.75},
			},
		}
		got := Compute(in)
		want := []models.Neighbor{{ID: "a", Weight: 0.38}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Compute() = %v, want %v", got, want)
		}
	})

	t.Run("cap saturates combined weight", func(t *testing.T) {
		in := Input{
			SubjectID:  "x",
			OneHop:     []string{"a"},
			Candidates: []Candidate{{ID: "a", Similarity: 1.0}},
		}
		got := Compute(in)
		want := []models.Neighbor{{ID: "a", Weight: 1.5}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Compute() = %v, want %v", got, want)
		}
	})

	t.Run("only top ten candidates considered", func(t *testing.T) {
		var candidates []Candidate
		for i := 0; i < 12; i++ {
			candidates = append(candidates, Candidate{
				ID:         fmt.Sprintf("c%02d", i),
				Similarity: 0.99 - float64(i)*0.01,
			})
		}
		got := Compute(Input{SubjectID: "x", Candidates: candidates})

		if len(got) != 10 {
			t.Fatalf("Compute() kept %d candidates, want 10", len(got))
		}
		for _, n := range got {
			if n.ID == "c10" || n.ID == "c11" {
				t.Errorf("candidate %s beyond top ten was kept", n.ID)
			}
		}
	})
}

func TestComputeTemporal(t *testing.T) {
	in := Input{
		SubjectID: "x",
		Occurrences: []Occurrence{
			{EntityID: "x", EpisodeID: "ep1", Sequence: 10},
			{EntityID: "x", EpisodeID: "ep1", Sequence: 12},
			// Distance 3 from the subject at 10: qualifies.
			{EntityID: "a", EpisodeID: "ep1", Sequence: 7},
			// Distance 4 from 10 but 2 from 12: qualifies once, not twice.
			{EntityID: "b", EpisodeID: "ep1", Sequence: 14},
			// Distance 4 from both subject positions: out of range.
			{EntityID: "c", EpisodeID: "ep1", Sequence: 6},
			// Second qualifying occurrence of a accumulates.
			{EntityID: "a", EpisodeID: "ep1", Sequence: 11},
			// Same entity in an episode without the subject: ignored.
			{EntityID: "a", EpisodeID: "ep2", Sequence: 1},
		},
	}

	got := Compute(in)
	want := []models.Neighbor{
		{ID: "a", Weight: 0.6},
		{ID: "b", Weight: 0.3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Compute() = %v, want %v", got, want)
	}
}

func TestComputeTruncatesAndOrders(t *testing.T) {
	in := Input{SubjectID: "x"}
	// 25 one-hop neighbors all at weight 1.0; ties resolve by id, so the
	// 20 lexicographically smallest ids survive truncation.
	for i := 0; i < 25; i++ {
		in.OneHop = append(in.OneHop, fmt.Sprintf("n%02d", i))
	}

	got := Compute(in)
	if len(got) != models.MaxNeighbors {
		t.Fatalf("Compute() returned %d neighbors, want %d", len(got), models.MaxNeighbors)
	}
	for i, n := range got {
		want := fmt.Sprintf("n%02d", i)
		if n.ID != want {
			t.Errorf("neighbor[%d] = %s, want %s", i, n.ID, want)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	in := Input{
		SubjectID: "x",
		OneHop:    []string{"a", "b", "c"},
		TwoHop:    []string{"d", "e"},
		Candidates: []Candidate{
			{ID: "a", Similarity: 0.9},
			{ID: "d", Similarity: 0.8},
			{ID: "f", Similarity: 0.85},
		},
		Occurrences: []Occurrence{
			{EntityID: "x", EpisodeID: "ep1", Sequence: 0},
			{EntityID: "b", EpisodeID: "ep1", Sequence: 1},
			{EntityID: "g", EpisodeID: "ep1", Sequence: 3},
		},
	}

	first := Compute(in)
	second := Compute(in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Compute() differs: %v vs %v", first, second)
	}

	// Input order must not matter either.
	rng := rand.New(rand.NewSource(1))
	shuffled := in
	shuffled.OneHop = append([]string(nil), in.OneHop...)
	shuffled.Candidates = append([]Candidate(nil), in.Candidates...)
	shuffled.Occurrences = append([]Occurrence(nil), in.Occurrences...)
	rng.Shuffle(len(shuffled.OneHop), func(i, j int) {
		shuffled.OneHop[i], shuffled.OneHop[j] = shuffled.OneHop[j], shuffled.OneHop[i]
	})
	rng.Shuffle(len(shuffled.Candidates), func(i, j int) {
		shuffled.Candidates[i], shuffled.Candidates[j] = shuffled.Candidates[j], shuffled.Candidates[i]
	})
	rng.Shuffle(len(shuffled.Occurrences), func(i, j int) {
		shuffled.Occurrences[i], shuffled.Occurrences[j] = shuffled.Occurrences[j], shuffled.Occurrences[i]
	})

	if got := Compute(shuffled); !reflect.DeepEqual(got, first) {
		t.Errorf("Compute() sensitive to input order: %v vs %v", got, first)
	}
}
