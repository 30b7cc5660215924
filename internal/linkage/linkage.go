// Package linkage implements agglomerative hierarchical clustering of traces
// by correlation similarity: building the merge tree (dendrogram) and cutting
// it at a distance threshold into cluster assignments.
//
// Similarity is converted to distance by the fixed rule distance = 1 -
// coefficient; the same convention must accompany any persisted tree so
// later-rendered dendrograms stay consistent with stored data.
package linkage

import (
	"fmt"
	"math"

	"github.com/sunjingtao1119/GISMO/internal/xcorr"
)

// Rule selects how the distance between two clusters is derived from their
// members' pairwise distances.
type Rule int

const (
	// RuleAverage uses the mean of all member-pairwise distances (UPGMA).
	// This is the default.
	RuleAverage Rule = iota
	// RuleSingle uses the minimum member-pairwise distance.
	RuleSingle
	// RuleComplete uses the maximum member-pairwise distance.
	RuleComplete
)

// String returns the rule name used in configuration and persistence.
func (r Rule) String() string {
	switch r {
	case RuleAverage:
		return "average"
	case RuleSingle:
		return "single"
	case RuleComplete:
		return "complete"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// ParseRule parses a rule name.
func ParseRule(s string) (Rule, error) {
	switch s {
	case "average":
		return RuleAverage, nil
	case "single":
		return RuleSingle, nil
	case "complete":
		return RuleComplete, nil
	default:
		return 0, fmt.Errorf("unknown linkage rule %q (want average, single or complete)", s)
	}
}

// Merge is one immutable record in the merge arena: the two cluster ids
// joined and the inter-cluster distance at which they joined. Leaf ids are
// 1..M; the merge at step s (0-based) creates internal id M+s+1. Ids are
// never reused.
type Merge struct {
	Left     int
	Right    int
	Distance float64
	// Size is the member count of the newly created cluster.
	Size int
}

// Tree is the ordered merge history of an agglomerative clustering run:
// exactly Leaves-1 merges with non-decreasing Distance, ending in a single
// root with id 2*Leaves-1.
type Tree struct {
	Leaves int
	Merges []Merge
}

// MaxDistance returns the distance of the final merge, or 0 for a
// single-leaf tree.
func (t *Tree) MaxDistance() float64 {
	if len(t.Merges) == 0 {
		return 0
	}
	return t.Merges[len(t.Merges)-1].Distance
}

// Builder runs agglomerative clustering over a coefficient matrix.
type Builder struct {
	rule Rule
}

// NewBuilder creates a builder using the given linkage rule.
func NewBuilder(rule Rule) *Builder {
	return &Builder{rule: rule}
}

// Rule returns the configured linkage rule.
func (b *Builder) Rule() Rule { return b.rule }

// Build converts the similarity matrix to distances (1 - coefficient) and
// merges the two closest clusters M-1 times. Inter-cluster distances are
// maintained incrementally with the Lance-Williams update for the configured
// rule, which keeps the merge sequence monotone. Ties are broken
// deterministically by the lowest pair of cluster ids, so repeated runs over
// the same matrix produce identical trees.
func (b *Builder) Build(coeff xcorr.CoefficientMatrix) (*Tree, error) {
	m := coeff.Dim()
	if m < 1 {
		return nil, fmt.Errorf("linkage: empty coefficient matrix")
	}

	tree := &Tree{Leaves: m, Merges: make([]Merge, 0, m-1)}
	if m == 1 {
		return tree, nil
	}

	// Active clusters in ascending id order. New ids are always the largest
	// allocated so far, so appending preserves the order.
	active := make([]int, m)
	size := make(map[int]int, 2*m-1)
	for i := 0; i < m; i++ {
		active[i] = i + 1
		size[i+1] = 1
	}

	dist := make(map[[2]int]float64, m*(m-1)/2)
	for i := 0; i < m; i++ {
		for j := i + 1; j < m; j++ {
			dist[pairKey(i+1, j+1)] = 1 - coeff[i][j]
		}
	}

	for step := 0; step < m-1; step++ {
		// Rescan for the minimum-distance active pair. Scanning ids in
		// ascending order with a strict < comparison yields the lowest-id
		// pair on ties.
		var bi, bj int
		best := math.Inf(1)
		for ii := 0; ii < len(active); ii++ {
			for jj := ii + 1; jj < len(active); jj++ {
				d := dist[pairKey(active[ii], active[jj])]
				if d < best {
					best = d
					bi, bj = active[ii], active[jj]
				}
			}
		}

		newID := m + step + 1
		tree.Merges = append(tree.Merges, Merge{
			Left:     bi,
			Right:    bj,
			Distance: best,
			Size:     size[bi] + size[bj],
		})

		// Lance-Williams update: distance from every surviving cluster to
		// the merged cluster, derived from its distances to the children.
		for _, k := range active {
			if k == bi || k == bj {
				continue
			}
			dki := dist[pairKey(k, bi)]
			dkj := dist[pairKey(k, bj)]
			var d float64
			switch b.rule {
			case RuleSingle:
				d = math.Min(dki, dkj)
			case RuleComplete:
				d = math.Max(dki, dkj)
			default: // RuleAverage
				ni, nj := float64(size[bi]), float64(size[bj])
				d = (ni*dki + nj*dkj) / (ni + nj)
			}
			dist[pairKey(k, newID)] = d
			delete(dist, pairKey(k, bi))
			delete(dist, pairKey(k, bj))
		}
		delete(dist, pairKey(bi, bj))

		size[newID] = size[bi] + size[bj]
		active = removeTwo(active, bi, bj)
		active = append(active, newID)
	}
	return tree, nil
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func removeTwo(ids []int, a, b int) []int {
	out := ids[:0]
	for _, id := range ids {
		if id != a && id != b {
			out = append(out, id)
		}
	}
	return out
}
