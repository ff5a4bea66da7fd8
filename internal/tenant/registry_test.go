package tenant

import "testing"

func TestRegistry_AddRemoveGet(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatalf("fresh registry len %d, want 0", r.Len())
	}

	r.Add(NewContext("u1", Managers{}))
	r.Add(NewContext("u2", Managers{}))

	if r.Len() != 2 {
		t.Errorf("len %d, want 2", r.Len())
	}
	if tc := r.Get("u1"); tc == nil || tc.ID != "u1" {
		t.Errorf("Get(u1) = %v", tc)
	}
	if tc := r.Get("missing"); tc != nil {
		t.Errorf("Get(missing) = %v, want nil", tc)
	}

	r.Remove("u1")
	if r.Len() != 1 {
		t.Errorf("len after remove %d, want 1", r.Len())
	}
	if tc := r.Get("u1"); tc != nil {
		t.Error("removed tenant still resolvable")
	}
}

func TestRegistry_IDsPreserveOnboardingOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(NewContext("charlie", Managers{}))
	r.Add(NewContext("alpha", Managers{}))
	r.Add(NewContext("bravo", Managers{}))

	want := []string{"charlie", "alpha", "bravo"}
	ids := r.IDs()
	if len(ids) != len(want) {
		t.Fatalf("IDs len %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestRegistry_AddReplacesExisting(t *testing.T) {
	r := NewRegistry()
	r.Add(NewContext("u1", Managers{}))
	fresh := NewContext("u1", Managers{})
	r.Add(fresh)

	if r.Len() != 1 {
		t.Errorf("len %d, want 1 after re-add", r.Len())
	}
	if r.Get("u1") != fresh {
		t.Error("re-added tenant did not replace previous context")
	}
}
