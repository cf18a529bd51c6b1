// Package cluster groups detections that likely refer to the same physical
// object. The recognizer frequently reports one object several times across
// photos or video frames, with slightly different titles each time;
// clustering lets the rest of the pipeline treat those as one candidate
// item instead of filing duplicates.
package cluster

import (
	"strings"

	"github.com/google/uuid"

	"github.com/packratdev/packrat/internal/config"
	"github.com/packratdev/packrat/internal/types"
)

// Clusterer detects duplicate groups among surviving detections.
//
// Cost is O(n²) pairwise comparisons, which is fine for the tens of
// detections a scan produces. Callers should recompute only when the
// detection-id set changes, never per UI interaction.
type Clusterer struct {
	cfg config.ClusterConfig
}

// New creates a clusterer with the given thresholds.
func New(cfg config.ClusterConfig) *Clusterer {
	return &Clusterer{cfg: cfg}
}

// Cluster partitions the detections into duplicate groups and returns a
// map from detection id to its group. Only groups of size > 1 are
// materialized; detections absent from the map are singletons. Member
// order within each group follows the input order.
func (c *Clusterer) Cluster(detections []types.Detection) map[string]*types.DuplicateGroup {
	groups := make(map[string]*types.DuplicateGroup)
	if len(detections) < 2 {
		return groups
	}

	uf := newUnionFind(len(detections))
	for i := 0; i < len(detections); i++ {
		for j := i + 1; j < len(detections); j++ {
			if c.IsDuplicate(&detections[i], &detections[j]) {
				uf.union(i, j)
			}
		}
	}

	// Collect members per component, preserving input order.
	members := make(map[int][]int)
	for i := range detections {
		root := uf.find(i)
		members[root] = append(members[root], i)
	}

	for _, idxs := range members {
		if len(idxs) < 2 {
			continue
		}
		group := &types.DuplicateGroup{
			GroupID:   uuid.NewString(),
			MemberIDs: make([]string, 0, len(idxs)),
		}
		for _, idx := range idxs {
			group.MemberIDs = append(group.MemberIDs, detections[idx].ID)
		}
		for _, id := range group.MemberIDs {
			groups[id] = group
		}
	}
	return groups
}

// IsDuplicate reports whether two detections likely refer to the same
// physical object. Checks run in order from cheapest to fuzziest and the
// first conclusive one wins.
func (c *Clusterer) IsDuplicate(a, b *types.Detection) bool {
	titleA := NormalizeTitle(a.Title)
	titleB := NormalizeTitle(b.Title)
	if titleA == "" || titleB == "" {
		return false
	}

	// Differing non-empty categories are a hard no: a "Kitchen" mug and a
	// "Decor" mug are two objects no matter how similar the titles.
	catA := strings.ToLower(strings.TrimSpace(a.Category))
	catB := strings.ToLower(strings.TrimSpace(b.Category))
	if catA != "" && catB != "" && catA != catB {
		return false
	}

	// Matching make+model identifies the object exactly.
	mmA := strings.ToLower(strings.TrimSpace(a.Make)) + strings.ToLower(strings.TrimSpace(a.Model))
	mmB := strings.ToLower(strings.TrimSpace(b.Make)) + strings.ToLower(strings.TrimSpace(b.Model))
	if mmA != "" && mmA == mmB {
		return true
	}

	if titleA == titleB {
		return true
	}
	if strings.Contains(titleA, titleB) || strings.Contains(titleB, titleA) {
		return true
	}
	if Levenshtein(titleA, titleB) <= c.cfg.MaxEditDistance {
		return true
	}

	shared, maxTokens := tokenOverlap(titleA, titleB)
	if shared >= c.cfg.MinTokenOverlap && maxTokens > 0 &&
		float64(shared)/float64(maxTokens) >= c.cfg.TokenOverlapRatio {
		return true
	}

	return false
}
