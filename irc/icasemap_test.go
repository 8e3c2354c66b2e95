package irc

import "testing"

func TestICaseMapBasics(t *testing.T) {
	m := NewICaseMap[int]()

	m.Set(ICaseStr("Alice"), 1)
	if got, ok := m.Get(ICaseStr("ALICE")); !ok || got != 1 {
		t.Errorf("Get(ALICE) = %d, %v; want 1, true", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	m.Set(ICaseStr("alice"), 2)
	if m.Len() != 1 {
		t.Errorf("Len() after re-set under different case = %d, want 1", m.Len())
	}
	if got, _ := m.Get(ICaseStr("aLiCe")); got != 2 {
		t.Errorf("Get(aLiCe) = %d, want 2", got)
	}

	if !m.Has(ICaseStr("alice")) {
		t.Error("Has(alice) = false, want true")
	}

	m.Delete(ICaseStr("ALICE"))
	if m.Has(ICaseStr("alice")) {
		t.Error("Has(alice) after delete = true, want false")
	}
	if m.Len() != 0 {
		t.Errorf("Len() after delete = %d, want 0", m.Len())
	}
}

func TestICaseMapEach(t *testing.T) {
	m := NewICaseMap[int]()
	m.Set(ICaseStr("a"), 1)
	m.Set(ICaseStr("b"), 2)

	seen := map[string]int{}
	m.Each(func(key ICaseStr, value int) {
		seen[key.String()] = value
	})
	if len(seen) != 2 || seen["a"] != 1 || seen["b"] != 2 {
		t.Errorf("Each visited %+v, want a:1 b:2", seen)
	}
}
