package linkage

import (
	"testing"
)

func buildTree(t *testing.T, coeff [][]float64) *Tree {
	t.Helper()
	tree, err := NewBuilder(RuleAverage).Build(coeff)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return tree
}

func mustCut(t *testing.T, tree *Tree, threshold float64) Assignment {
	t.Helper()
	a, err := Cut(tree, threshold)
	if err != nil {
		t.Fatalf("Cut failed: %v", err)
	}
	return a
}

func TestCut_Extremes(t *testing.T) {
	tree := buildTree(t, fiveTraces())

	singletons := mustCut(t, tree, 0)
	if got, want := singletons.NumClusters(), tree.Leaves; got != want {
		t.Errorf("threshold 0: %d clusters, want %d singletons", got, want)
	}

	all := mustCut(t, tree, tree.MaxDistance())
	if got := all.NumClusters(); got != 1 {
		t.Errorf("threshold at max distance: %d clusters, want 1", got)
	}
}

func TestCut_MonotoneClusterCount(t *testing.T) {
	tree := buildTree(t, fiveTraces())

	prev := tree.Leaves + 1
	for _, threshold := range []float64{0, 0.05, 0.1, 0.2, 0.5, 0.8, 1, 2} {
		n := mustCut(t, tree, threshold).NumClusters()
		if n > prev {
			t.Errorf("threshold %g: cluster count rose from %d to %d", threshold, prev, n)
		}
		prev = n
	}
}

func TestCut_FamilyMembership(t *testing.T) {
	tree := buildTree(t, fiveTraces())

	// Cutting between the family merge distances and the cross-family
	// distance yields exactly the two planted families.
	got := mustCut(t, tree, 0.3)
	if got.NumClusters() != 2 {
		t.Fatalf("got %d clusters, want 2: %v", got.NumClusters(), got)
	}
	if got[0] != got[1] {
		t.Errorf("traces 0,1 split across clusters: %v", got)
	}
	if got[2] != got[3] || got[3] != got[4] {
		t.Errorf("traces 2,3,4 split across clusters: %v", got)
	}
	if got[0] == got[2] {
		t.Errorf("families merged at threshold 0.3: %v", got)
	}

	// Cluster ids are compact and ordered by first appearance.
	if got[0] != 1 || got[2] != 2 {
		t.Errorf("cluster ids not compact/ordered: %v", got)
	}
}

func TestCut_IdenticalTraces(t *testing.T) {
	// All-ones similarity collapses at any nonzero threshold.
	coeff := simMatrix(4, map[[2]int]float64{
		{0, 1}: 1, {0, 2}: 1, {0, 3}: 1, {1, 2}: 1, {1, 3}: 1, {2, 3}: 1,
	})
	tree := buildTree(t, coeff)

	got := mustCut(t, tree, 0.01)
	if got.NumClusters() != 1 {
		t.Errorf("identical traces: %d clusters at threshold 0.01, want 1", got.NumClusters())
	}
	for i, id := range got {
		if id != 1 {
			t.Errorf("trace %d assigned cluster %d, want 1", i, id)
		}
	}
}

func TestCut_SingleLeaf(t *testing.T) {
	tree := &Tree{Leaves: 1}
	got := mustCut(t, tree, 0.5)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("single leaf cut = %v, want [1]", got)
	}
}

func TestCut_EmptyTree(t *testing.T) {
	if _, err := Cut(&Tree{}, 0); err == nil {
		t.Fatal("expected error for empty tree")
	}
}
