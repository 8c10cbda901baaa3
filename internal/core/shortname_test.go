package core

import "testing"

func TestComposerURI(t *testing.T) {
	got := ComposerURI("abc123")
	want := "https://uri.interlex.org/composer/uris/ks/abc123"
	if got != want {
		t.Fatalf("ComposerURI = %q, want %q", got, want)
	}
}

func TestShortName(t *testing.T) {
	pop := PopulationSet{Name: "femrep"}
	if got := ShortName(pop, 12); got != "neuron type femrep 12" {
		t.Fatalf("ShortName = %q", got)
	}
}

func TestReferenceURI(t *testing.T) {
	pop := PopulationSet{Name: "femrep"}
	want := "https://uri.interlex.org/composer/uris/set/femrep/3"
	if got := ReferenceURI(pop, 3); got != want {
		t.Fatalf("ReferenceURI = %q, want %q", got, want)
	}
}
