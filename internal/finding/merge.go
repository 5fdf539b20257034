package finding

// Mergeable is implemented by pointer types of domain findings.
type Mergeable[T any] interface {
	// NaturalKey identifies the real-world fact the finding denotes.
	NaturalKey() string
	Core() *Candidate
	Clone() T
	// UnionAux folds the domain's own auxiliary lists from other into the receiver.
	UnionAux(other T)
}

// Merge collapses findings sharing a natural key, in discovery order. The first
// finding of a key is the representative; a later one with strictly greater
// confidence hands over its confidence and position. Evidence, file paths and
// domain auxiliary lists are always unioned. Inputs are not modified.
func Merge[T Mergeable[T]](items []T) []T {
	index := make(map[string]int, len(items))
	out := make([]T, 0, len(items))

	for _, item := range items {
		key := item.NaturalKey()
		i, seen := index[key]
		if !seen {
			rep := item.Clone()
			core := rep.Core()
			core.FilePaths = UnionStrings(core.FilePaths, originPaths(item.Core())...)
			index[key] = len(out)
			out = append(out, rep)
			continue
		}

		rep := out[i]
		rc, oc := rep.Core(), item.Core()
		if oc.Confidence > rc.Confidence {
			rc.Confidence = oc.Confidence
			rc.OriginFile = oc.OriginFile
			rc.OriginLine = oc.OriginLine
		}
		rc.Evidence = UnionEvidence(rc.Evidence, oc.Evidence)
		rc.FilePaths = UnionStrings(rc.FilePaths, append(originPaths(oc), oc.FilePaths...)...)
		rep.UnionAux(item)
	}

	return out
}

func originPaths(c *Candidate) []string {
	if c.OriginFile == "" {
		return nil
	}
	return []string{c.OriginFile}
}

// UnionStrings appends the values of add missing from base, keeping first-seen order.
func UnionStrings(base []string, add ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, s := range base {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range add {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// UnionEvidence appends fragments of add not already present in base.
func UnionEvidence(base []Evidence, add []Evidence) []Evidence {
	seen := make(map[Evidence]struct{}, len(base)+len(add))
	out := make([]Evidence, 0, len(base)+len(add))
	for _, list := range [][]Evidence{base, add} {
		for _, e := range list {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
