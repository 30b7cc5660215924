package linkage

import "fmt"

// Assignment maps trace index (0-based) to cluster id. Cluster ids are
// compact, starting at 1, numbered in order of first appearance by trace
// index.
type Assignment []int

// NumClusters returns the number of distinct clusters in the assignment.
func (a Assignment) NumClusters() int {
	max := 0
	for _, id := range a {
		if id > max {
			max = id
		}
	}
	return max
}

// Cut partitions the merge tree at a distance threshold: every merge with
// Distance <= threshold binds its two subtrees into one cluster, merges above
// the threshold stay split. Threshold 0 yields all-singleton clusters;
// threshold at or above the final merge distance yields one cluster.
// Raising the threshold never increases the cluster count.
func Cut(tree *Tree, threshold float64) (Assignment, error) {
	if tree.Leaves < 1 {
		return nil, fmt.Errorf("linkage: cut of empty tree")
	}

	// Union-find over all node ids 1..2M-1. Each qualifying merge unions the
	// new internal id with both children, so later merges that reference
	// internal ids resolve through the same forest.
	parent := make([]int, 2*tree.Leaves)
	for i := range parent {
		parent[i] = i
	}
	var find func(x int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for step, mg := range tree.Merges {
		if mg.Distance > threshold {
			continue
		}
		newID := tree.Leaves + step + 1
		union(newID, mg.Left)
		union(newID, mg.Right)
	}

	// Compact roots to cluster ids 1..K by first appearance.
	assignment := make(Assignment, tree.Leaves)
	clusterOf := make(map[int]int)
	next := 1
	for i := 0; i < tree.Leaves; i++ {
		root := find(i + 1)
		id, ok := clusterOf[root]
		if !ok {
			id = next
			clusterOf[root] = id
			next++
		}
		assignment[i] = id
	}
	return assignment, nil
}
