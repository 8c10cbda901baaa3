package core

import (
	"fmt"
)

// ValidatePath checks that a statement's path is well-formed: non-empty
// endpoints, unique via orders, populated hops, and from_entities sets that
// only reference entities reachable upstream of their hop.
func ValidatePath(s ConnectivityStatement) error {
	if len(s.OriginIDs) == 0 {
		return fmt.Errorf("statement has no origins")
	}
	if len(s.Destinations) == 0 {
		return fmt.Errorf("statement has no destinations")
	}
	orders := make(map[int]struct{}, len(s.Vias))
	for _, v := range s.Vias {
		if _, dup := orders[v.Order]; dup {
			return fmt.Errorf("duplicate via order %d", v.Order)
		}
		orders[v.Order] = struct{}{}
		if len(v.AnatomicalEntityIDs) == 0 {
			return fmt.Errorf("via %d has no anatomical entities", v.Order)
		}
		allowed := idSet(s.PathEntityIDs(v.Order))
		for _, from := range v.FromEntityIDs {
			if _, ok := allowed[from]; !ok {
				return fmt.Errorf("via %d references %s outside its upstream path", v.Order, from)
			}
		}
	}
	full := idSet(s.PathEntityIDs(-1))
	for i, d := range s.Destinations {
		if len(d.AnatomicalEntityIDs) == 0 {
			return fmt.Errorf("destination %d has no anatomical entities", i)
		}
		for _, from := range d.FromEntityIDs {
			if _, ok := full[from]; !ok {
				return fmt.Errorf("destination %d references %s outside the path", i, from)
			}
		}
	}
	return nil
}

// ForwardEdgeValid reports whether s may forward to target: some destination
// entity of s must be an origin of target.
func ForwardEdgeValid(s, target ConnectivityStatement) bool {
	return forwardEdgeValid(s, target)
}

func forwardEdgeValid(s, target ConnectivityStatement) bool {
	origins := idSet(target.OriginIDs)
	for _, d := range s.Destinations {
		for _, id := range d.AnatomicalEntityIDs {
			if _, ok := origins[id]; ok {
				return true
			}
		}
	}
	return false
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
