// Package fusion computes entity neighborhoods by merging three signals
// over the knowledge graph: explicit relation structure, embedding
// similarity, and temporal co-occurrence inside episodes.
//
// Compute is a pure function: identical inputs produce byte-identical
// neighbor lists. All ordering is deterministic, with ties broken by id,
// so the background worker can recompute a neighborhood at any time
// without churning the stored entry.
package fusion

import (
	"sort"

	"github.com/raphaelgruber/pulse/internal/models"
)

const (
	// Structural contributions by hop distance.
	oneHopWeight = 1.0
	twoHopWeight = 0.5

	// Similarity candidates below this cosine score are discarded.
	similarityFloor = 0.75
	// At most this many similarity candidates are considered per subject.
	similarityTopK = 10
	// A similarity hit adds sim*similarityScale, saturating at similarityCap.
	similarityScale = 0.5
	similarityCap   = 1.5

	// Temporal contribution per co-occurrence within the sequence window.
	temporalWeight = 0.3
	// Maximum sequence distance for a co-occurrence to count.
	temporalWindow = 3
)

// Candidate is one entity scored by cosine similarity against the subject.
type Candidate struct {
	ID         string
	Similarity float64
}

// Occurrence places an entity at a sequence position inside an episode.
type Occurrence struct {
	EntityID  string
	EpisodeID string
	Sequence  int
}

// Input is everything Compute needs, assembled by a Loader from the store.
// OneHop and TwoHop carry the BFS frontier at each depth; entities reachable
// at both depths count only at the shorter one. Occurrences holds every
// appears_in row from episodes the subject appears in, the subject's own
// rows included.
type Input struct {
	SubjectID   string
	OneHop      []string
	TwoHop      []string
	Candidates  []Candidate
	Occurrences []Occurrence
}

// Compute fuses the structural, similarity and temporal signals into a
// single weighted neighbor list: weights accumulate per entity, the subject
// itself is excluded, and the result is sorted by weight descending with
// id ascending on ties, truncated to models.MaxNeighbors.
func Compute(in Input) []models.Neighbor {
	weights := make(map[string]float64)

	addStructural(in, weights)
	addSimilarity(in, weights)
	addTemporal(in, weights)

	delete(weights, in.SubjectID)

	neighbors := make([]models.Neighbor, 0, len(weights))
	for id, w := range weights {
		neighbors = append(neighbors, models.Neighbor{ID: id, Weight: w})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Weight != neighbors[j].Weight {
			return neighbors[i].Weight > neighbors[j].Weight
		}
		return neighbors[i].ID < neighbors[j].ID
	})

	if len(neighbors) > models.MaxNeighbors {
		neighbors = neighbors[:models.MaxNeighbors]
	}
	return neighbors
}

func addStructural(in Input, weights map[string]float64) {
	oneHop := make(map[string]bool, len(in.OneHop))
	for _, id := range in.OneHop {
		if id == in.SubjectID || oneHop[id] {
			continue
		}
		oneHop[id] = true
		weights[id] += oneHopWeight
	}

	twoHop := make(map[string]bool, len(in.TwoHop))
	for _, id := range in.TwoHop {
		if id == in.SubjectID || oneHop[id] || twoHop[id] {
			continue
		}
		twoHop[id] = true
		weights[id] += twoHopWeight
	}
}

func addSimilarity(in Input, weights map[string]float64) {
	candidates := make([]Candidate, len(in.Candidates))
	copy(candidates, in.Candidates)
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > similarityTopK {
		candidates = candidates[:similarityTopK]
	}

	for _, c := range candidates {
		if c.ID == in.SubjectID || c.Similarity <= similarityFloor {
			continue
		}
		w := weights[c.ID] + c.Similarity*similarityScale
		if w > similarityCap {
			w = similarityCap
		}
		weights[c.ID] = w
	}
}

func addTemporal(in Input, weights map[string]float64) {
	// Subject positions per episode.
	positions := make(map[string][]int)
	for _, occ := range in.Occurrences {
		if occ.EntityID == in.SubjectID {
			positions[occ.EpisodeID] = append(positions[occ.EpisodeID], occ.Sequence)
		}
	}

	for _, occ := range in.Occurrences {
		if occ.EntityID == in.SubjectID {
			continue
		}
		for _, pos := range positions[occ.EpisodeID] {
			d := occ.Sequence - pos
			if d < 0 {
				d = -d
			}
			if d <= temporalWindow {
				weights[occ.EntityID] += temporalWeight
				break
			}
		}
	}
}
