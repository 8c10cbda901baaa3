package domain

import (
	"reflect"
	"testing"
)

func pathFixture() ConnectivityStatement {
	return ConnectivityStatement{
		ID:        "cs1",
		OriginIDs: []string{"a", "b"},
		Vias: []Via{
			{Order: 1, Type: ViaAxon, AnatomicalEntityIDs: []string{"d"}, FromEntityIDs: []string{"c"}},
			{Order: 0, Type: ViaAxon, AnatomicalEntityIDs: []string{"c"}, FromEntityIDs: []string{"a", "b"}},
		},
		Destinations: []Destination{
			{Type: DestinationAxonT, AnatomicalEntityIDs: []string{"e"}, FromEntityIDs: []string{"d"}},
		},
	}
}

func TestNormalizePathSortsAndPrunes(t *testing.T) {
	s := pathFixture()
	s.Vias[0].FromEntityIDs = []string{"c", "ghost"}
	s.Destinations[0].FromEntityIDs = []string{"d", "ghost"}

	s.NormalizePath()

	if s.Vias[0].Order != 0 || s.Vias[1].Order != 1 {
		t.Fatalf("vias not sorted by order: %+v", s.Vias)
	}
	if !reflect.DeepEqual(s.Vias[1].FromEntityIDs, []string{"c"}) {
		t.Fatalf("via from_entities not pruned: %v", s.Vias[1].FromEntityIDs)
	}
	if !reflect.DeepEqual(s.Destinations[0].FromEntityIDs, []string{"d"}) {
		t.Fatalf("destination from_entities not pruned: %v", s.Destinations[0].FromEntityIDs)
	}
}

func TestDropPathEntityCascades(t *testing.T) {
	s := pathFixture()
	s.NormalizePath()

	if changed := s.DropPathEntity("c"); !changed {
		t.Fatalf("expected drop to report a change")
	}
	for _, v := range s.Vias {
		for _, id := range append(v.AnatomicalEntityIDs, v.FromEntityIDs...) {
			if id == "c" {
				t.Fatalf("entity c still referenced by via %d", v.Order)
			}
		}
	}
	// c was the only upstream of via 1, so d's from set collapses too.
	if len(s.Vias[1].FromEntityIDs) != 0 {
		t.Fatalf("expected downstream from_entities to collapse, got %v", s.Vias[1].FromEntityIDs)
	}
	if changed := s.DropPathEntity("nope"); changed {
		t.Fatalf("dropping an unknown id must not report a change")
	}
}

func TestPathEntityIDsBeforeOrder(t *testing.T) {
	s := pathFixture()
	s.NormalizePath()

	got := s.PathEntityIDs(1)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("upstream ids before order 1 = %v, want %v", got, want)
	}
	if full := s.PathEntityIDs(-1); len(full) != 4 {
		t.Fatalf("full path ids = %v", full)
	}
}

func TestValidPopulationName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"femrep", true},
		{"FemRep", true},
		{"pop_set_01", true},
		{"abc", false},
		{"1pop_set", false},
		{"pop set", false},
		{"", false},
		{"toolongtoolongtoolongtoolongtoolong", false},
	}
	for _, tc := range cases {
		if got := ValidPopulationName(tc.name); got != tc.ok {
			t.Fatalf("ValidPopulationName(%q) = %v, want %v", tc.name, got, tc.ok)
		}
	}
}

func TestHasPath(t *testing.T) {
	s := pathFixture()
	if !s.HasPath() {
		t.Fatalf("fixture should have a path")
	}
	s.Destinations[0].AnatomicalEntityIDs = nil
	if s.HasPath() {
		t.Fatalf("statement without destination entities should have no path")
	}
}
