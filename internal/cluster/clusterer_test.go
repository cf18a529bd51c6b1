package cluster

import (
	"fmt"
	"testing"

	"github.com/packratdev/packrat/internal/config"
	"github.com/packratdev/packrat/internal/types"
)

func newTestClusterer() *Clusterer {
	return New(config.Default().Cluster)
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		a, b types.Detection
		want bool
	}{
		{
			name: "case-insensitive equal titles",
			a:    types.Detection{Title: "Coffee Mug", Category: "Kitchen"},
			b:    types.Detection{Title: "coffee mug", Category: "Kitchen"},
			want: true,
		},
		{
			name: "empty normalized title never matches",
			a:    types.Detection{Title: "the a an"},
			b:    types.Detection{Title: "the a an"},
			want: false,
		},
		{
			name: "differing categories short-circuit",
			a:    types.Detection{Title: "Mug", Category: "Kitchen"},
			b:    types.Detection{Title: "Mug", Category: "Decor"},
			want: false,
		},
		{
			name: "one empty category does not short-circuit",
			a:    types.Detection{Title: "Mug", Category: "Kitchen"},
			b:    types.Detection{Title: "Mug"},
			want: true,
		},
		{
			name: "make and model match wins over different titles",
			a:    types.Detection{Title: "Stand Mixer", Make: "KitchenAid", Model: "KSM150"},
			b:    types.Detection{Title: "Red Mixer Appliance", Make: "kitchenaid", Model: "ksm150"},
			want: true,
		},
		{
			name: "empty make and model never matches on that rule",
			a:    types.Detection{Title: "Desk Lamp"},
			b:    types.Detection{Title: "Coffee Table"},
			want: false,
		},
		{
			name: "substring titles match",
			a:    types.Detection{Title: "Blue Coffee Mug"},
			b:    types.Detection{Title: "Coffee Mug"},
			want: true,
		},
		{
			name: "small edit distance matches",
			a:    types.Detection{Title: "Table Lamp"},
			b:    types.Detection{Title: "Table Lamps"},
			want: true,
		},
		{
			name: "token overlap matches",
			a:    types.Detection{Title: "Wooden Kitchen Chair"},
			b:    types.Detection{Title: "Kitchen Chair Cushion"},
			want: true,
		},
		{
			name: "repeated token does not dilute the overlap ratio",
			a:    types.Detection{Title: "Lamp Desk Desk"},
			b:    types.Detection{Title: "Desk Lamp"},
			want: true,
		},
		{
			name: "single shared token is not enough",
			a:    types.Detection{Title: "Wooden Chair"},
			b:    types.Detection{Title: "Wooden Spoon"},
			want: false,
		},
		{
			name: "unrelated titles do not match",
			a:    types.Detection{Title: "Television"},
			b:    types.Detection{Title: "Bookshelf"},
			want: false,
		},
	}

	c := newTestClusterer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsDuplicate(&tt.a, &tt.b); got != tt.want {
				t.Errorf("IsDuplicate = %v, want %v", got, tt.want)
			}
			// The predicate is symmetric.
			if got := c.IsDuplicate(&tt.b, &tt.a); got != tt.want {
				t.Errorf("IsDuplicate (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClusterGroupsMatchingPair(t *testing.T) {
	c := newTestClusterer()
	detections := []types.Detection{
		{ID: "a", Title: "Coffee Mug", Category: "Kitchen", Confidence: 0.9},
		{ID: "b", Title: "coffee mug", Category: "Kitchen", Confidence: 0.85},
		{ID: "c", Title: "Bookshelf", Category: "Furniture", Confidence: 0.9},
	}

	groups := c.Cluster(detections)

	groupA, ok := groups["a"]
	if !ok {
		t.Fatal("detection a not in any group")
	}
	groupB, ok := groups["b"]
	if !ok {
		t.Fatal("detection b not in any group")
	}
	if groupA != groupB {
		t.Error("a and b should share one group")
	}
	if got := groupA.MemberIDs; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("group members = %v, want [a b] in input order", got)
	}
	if _, ok := groups["c"]; ok {
		t.Error("singleton c must not be materialized")
	}
}

// Transitive duplicates land in one group even without a direct pairwise
// match between the endpoints.
func TestClusterTransitiveConnectivity(t *testing.T) {
	c := newTestClusterer()
	// "mug" is a substring of both neighbors, but "ceramic mug" and
	// "travel mug" do not match each other directly.
	detections := []types.Detection{
		{ID: "a", Title: "Ceramic Mug"},
		{ID: "b", Title: "Mug"},
		{ID: "c", Title: "Travel Mug"},
	}
	if !c.IsDuplicate(&detections[0], &detections[1]) || !c.IsDuplicate(&detections[1], &detections[2]) {
		t.Fatal("test preconditions: adjacent pairs must match")
	}
	if c.IsDuplicate(&detections[0], &detections[2]) {
		t.Fatal("test preconditions: endpoints must not match directly")
	}

	groups := c.Cluster(detections)
	if groups["a"] == nil || groups["a"] != groups["b"] || groups["b"] != groups["c"] {
		t.Error("transitively connected detections must share one group")
	}
	if len(groups["a"].MemberIDs) != 3 {
		t.Errorf("group size = %d, want 3", len(groups["a"].MemberIDs))
	}
}

// Groups partition the survivors: no detection appears in more than one
// group, and every group member maps back to that group.
func TestClusterPartition(t *testing.T) {
	c := newTestClusterer()
	var detections []types.Detection
	for i := 0; i < 6; i++ {
		detections = append(detections, types.Detection{
			ID:    fmt.Sprintf("mug-%d", i),
			Title: "Coffee Mug",
		})
	}
	detections = append(detections,
		types.Detection{ID: "lamp-0", Title: "Desk Lamp"},
		types.Detection{ID: "lamp-1", Title: "Desk Lamp"},
		types.Detection{ID: "solo", Title: "Piano"},
	)

	groups := c.Cluster(detections)

	distinct := make(map[*types.DuplicateGroup]bool)
	seen := make(map[string]int)
	for id, g := range groups {
		distinct[g] = true
		found := false
		for _, member := range g.MemberIDs {
			seen[member]++
			if member == id {
				found = true
			}
		}
		if !found {
			t.Errorf("id %s maps to a group it is not a member of", id)
		}
	}
	if len(distinct) != 2 {
		t.Errorf("distinct groups = %d, want 2", len(distinct))
	}
	for id, g := range groups {
		// seen counts each member once per mapped id; each member of a
		// group of size n is counted n times, never more.
		if seen[id] != g.Size() {
			t.Errorf("id %s appears in %d group mappings, want %d", id, seen[id], g.Size())
		}
	}
	if _, ok := groups["solo"]; ok {
		t.Error("singleton must not be in the group map")
	}
}

func TestClusterEmptyAndSingle(t *testing.T) {
	c := newTestClusterer()
	if got := c.Cluster(nil); len(got) != 0 {
		t.Errorf("Cluster(nil) = %v, want empty", got)
	}
	single := []types.Detection{{ID: "a", Title: "Chair"}}
	if got := c.Cluster(single); len(got) != 0 {
		t.Errorf("Cluster(single) = %v, want empty", got)
	}
}
