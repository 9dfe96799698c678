package presence

// Merge returns roster with self prepended unless roster already contains an
// entry for self's user. The input is never modified.
func Merge(roster []Entry, self Entry) []Entry {
	for _, e := range roster {
		if e.UserID == self.UserID {
			return roster
		}
	}
	merged := make([]Entry, 0, len(roster)+1)
	merged = append(merged, self)
	return append(merged, roster...)
}

// reduce keeps the first entry for each user in snapshot order.
func reduce(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	roster := make([]Entry, 0, len(entries))
	for _, e := range entries {
		key := e.UserID.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		roster = append(roster, e)
	}
	return roster
}
