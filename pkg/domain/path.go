package domain

import "sort"

// NormalizePath sorts vias by order and prunes every from_entities set down
// to the entities actually reachable upstream of the hop. Removing an origin
// or an intermediate entity therefore drops its id from every downstream
// hop in the same pass.
func (s *ConnectivityStatement) NormalizePath() {
	sort.SliceStable(s.Vias, func(i, j int) bool { return s.Vias[i].Order < s.Vias[j].Order })
	for i := range s.Vias {
		allowed := toIDSet(s.PathEntityIDs(s.Vias[i].Order))
		s.Vias[i].FromEntityIDs = intersectIDs(s.Vias[i].FromEntityIDs, allowed)
	}
	full := toIDSet(s.PathEntityIDs(-1))
	for i := range s.Destinations {
		s.Destinations[i].FromEntityIDs = intersectIDs(s.Destinations[i].FromEntityIDs, full)
	}
}

// DropPathEntity removes an anatomical entity id from origins, hops, and
// every from_entities set of the statement. It reports whether anything
// changed.
func (s *ConnectivityStatement) DropPathEntity(id string) bool {
	changed := false
	if removed := removeID(&s.OriginIDs, id); removed {
		changed = true
	}
	for i := range s.Vias {
		if removeID(&s.Vias[i].AnatomicalEntityIDs, id) {
			changed = true
		}
		if removeID(&s.Vias[i].FromEntityIDs, id) {
			changed = true
		}
	}
	for i := range s.Destinations {
		if removeID(&s.Destinations[i].AnatomicalEntityIDs, id) {
			changed = true
		}
		if removeID(&s.Destinations[i].FromEntityIDs, id) {
			changed = true
		}
	}
	if changed {
		s.NormalizePath()
	}
	return changed
}

func toIDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func intersectIDs(ids []string, allowed map[string]struct{}) []string {
	if len(ids) == 0 {
		return ids
	}
	out := ids[:0]
	for _, id := range ids {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func removeID(ids *[]string, id string) bool {
	for i, v := range *ids {
		if v == id {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return true
		}
	}
	return false
}
