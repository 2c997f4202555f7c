package match

import "testing"

func newTestIndex() *Index {
	ix := NewIndex()
	ix.SetIdentity(1, "uuid-1", 10)
	ix.AddAlias(1, "sam ghanem")
	ix.SetIdentity(2, "uuid-2", 3)
	ix.AddAlias(2, "josh cougler")
	return ix
}

func TestLookupExact(t *testing.T) {
	ix := newTestIndex()

	candidates := ix.LookupExact("sam ghanem")
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].IdentityID != 1 || candidates[0].Score != 1.0 {
		t.Errorf("unexpected candidate: %+v", candidates[0])
	}

	if got := ix.LookupExact("nobody here"); len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}

func TestLookupExactWinsOutright(t *testing.T) {
	ix := newTestIndex()
	ix.SetIdentity(3, "uuid-3", 1)
	ix.AddAlias(3, "sam ghanam")

	// An exact hit must not be polluted with fuzzy neighbors.
	candidates := ix.Lookup("sam ghanem", Params{Floor: 0.5, TopK: 5})
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].IdentityID != 1 {
		t.Errorf("expected identity 1, got %d", candidates[0].IdentityID)
	}
}

func TestLookupFuzzy(t *testing.T) {
	ix := newTestIndex()

	// "sam g" and "sam ghanem" share a blocking bucket (s, 2 tokens).
	candidates := ix.Lookup("sam g", Params{Floor: 0.55, TopK: 5})
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].IdentityID != 1 {
		t.Errorf("expected identity 1, got %d", candidates[0].IdentityID)
	}
	if candidates[0].Score < 0.85 || candidates[0].Score >= 1.0 {
		t.Errorf("unexpected score %v", candidates[0].Score)
	}
}

func TestLookupFuzzyAdjacentTokenCount(t *testing.T) {
	ix := newTestIndex()

	// Three tokens vs a two-token alias: the tc-1 bucket must be scanned.
	candidates := ix.Lookup("sam the ghanem", Params{Floor: 0.55, TopK: 5})
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].IdentityID != 1 {
		t.Errorf("expected identity 1, got %d", candidates[0].IdentityID)
	}
}

func TestLookupRespectsFloor(t *testing.T) {
	ix := newTestIndex()

	// "jush ceugler" is near josh but nowhere near sam; a high floor drops all.
	candidates := ix.Lookup("zzz yyy", Params{Floor: 0.55, TopK: 5})
	if len(candidates) != 0 {
		t.Errorf("expected no candidates above floor, got %v", candidates)
	}
}

func TestLookupTieBreakByAppearances(t *testing.T) {
	ix := NewIndex()
	ix.SetIdentity(1, "uuid-1", 2)
	ix.AddAlias(1, "sam ghanem")
	ix.SetIdentity(2, "uuid-2", 50)
	ix.AddAlias(2, "sam ghanem")

	candidates := ix.LookupExact("sam ghanem")
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].IdentityID != 2 {
		t.Errorf("more-established identity should rank first, got %d", candidates[0].IdentityID)
	}
}

func TestRemoveAliasRefcount(t *testing.T) {
	ix := NewIndex()
	ix.SetIdentity(1, "uuid-1", 2)
	// Two raw variants collapsing to the same normalized form.
	ix.AddAlias(1, "sam ghanem")
	ix.AddAlias(1, "sam ghanem")

	ix.RemoveAlias(1, "sam ghanem")
	if got := ix.LookupExact("sam ghanem"); len(got) != 1 {
		t.Fatalf("one reference should remain, got %d candidates", len(got))
	}

	ix.RemoveAlias(1, "sam ghanem")
	if got := ix.LookupExact("sam ghanem"); len(got) != 0 {
		t.Errorf("expected no candidates after last removal, got %v", got)
	}
}

func TestRemoveIdentity(t *testing.T) {
	ix := newTestIndex()
	ix.RemoveIdentity(1)

	if got := ix.LookupExact("sam ghanem"); len(got) != 0 {
		t.Errorf("removed identity still resolves: %v", got)
	}
	if got := ix.LookupExact("josh cougler"); len(got) != 1 {
		t.Errorf("unrelated identity lost: %v", got)
	}
}

func TestIncrementAppearances(t *testing.T) {
	ix := newTestIndex()
	ix.IncrementAppearances(2, 20)

	candidates := ix.LookupExact("josh cougler")
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Appearances != 23 {
		t.Errorf("expected 23 appearances, got %d", candidates[0].Appearances)
	}
}

func TestLookupTopK(t *testing.T) {
	ix := NewIndex()
	for i := uint(1); i <= 4; i++ {
		ix.SetIdentity(i, "uuid", 1)
		ix.AddAlias(i, "sam ghanem")
	}

	candidates := ix.LookupExact("sam ghanem")
	if len(candidates) != 4 {
		t.Fatalf("expected 4 exact owners, got %d", len(candidates))
	}

	fuzzy := ix.Lookup("sam ghanam", Params{Floor: 0.5, TopK: 2})
	if len(fuzzy) != 2 {
		t.Errorf("expected TopK=2 candidates, got %d", len(fuzzy))
	}
}
