package utils

// CommonInterests returns the tags present in both lists, in the order of mine,
// without duplicates, capped at limit (no cap when limit <= 0).
func CommonInterests(mine, theirs []string, limit int) []string {
	theirSet := make(map[string]struct{}, len(theirs))
	for _, interest := range theirs {
		theirSet[interest] = struct{}{}
	}

	common := []string{}
	seen := make(map[string]struct{}, len(mine))
	for _, interest := range mine {
		if _, ok := theirSet[interest]; !ok {
			continue
		}
		if _, dup := seen[interest]; dup {
			continue
		}
		seen[interest] = struct{}{}
		common = append(common, interest)
		if limit > 0 && len(common) == limit {
			break
		}
	}
	return common
}
