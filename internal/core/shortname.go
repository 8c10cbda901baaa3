package core

import "fmt"

// ComposerURIPrefix is the base of the public identifier minted for every
// exported knowledge statement.
const ComposerURIPrefix = "https://uri.interlex.org/composer/uris/ks/"

// referenceURIBase anchors population-derived reference URIs.
const referenceURIBase = "https://uri.interlex.org/composer/uris/set"

// ComposerURI returns the public identifier of a statement.
func ComposerURI(statementID string) string {
	return ComposerURIPrefix + statementID
}

// ShortName derives the deterministic display name of an exported statement
// from its population and population index.
func ShortName(pop PopulationSet, index int) string {
	return fmt.Sprintf("neuron type %s %d", pop.Name, index)
}

// ReferenceURI derives the deterministic reference URI of an exported
// statement from its population and population index.
func ReferenceURI(pop PopulationSet, index int) string {
	return fmt.Sprintf("%s/%s/%d", referenceURIBase, pop.Name, index)
}
