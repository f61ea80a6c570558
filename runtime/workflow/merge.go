package workflow

// Merge combines a persisted map with local in-memory overrides and returns the
// merged persisted map, which becomes the new source of truth.
//
// The merge is asymmetric and must stay that way:
//   - keys present only in local are inserted into persisted;
//   - keys present in both where both values are maps recurse;
//   - keys present in both with non-map values keep the local value.
//
// Locally set overrides therefore always win ties, while anything only known to
// storage (keys written by a previous process) survives. persisted is mutated
// in place.
func Merge(persisted, local map[string]any) map[string]any {
	if persisted == nil {
		persisted = make(map[string]any, len(local))
	}
	for key, localVal := range local {
		persistedVal, ok := persisted[key]
		if ok {
			pm, pok := persistedVal.(map[string]any)
			lm, lok := localVal.(map[string]any)
			if pok && lok {
				Merge(pm, lm)
				continue
			}
		}
		persisted[key] = localVal
	}
	return persisted
}
