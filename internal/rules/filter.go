package rules

// Filter drops the rules ignored for relPath, keeping the original order.
func Filter(records []RuleRecord, ignore IgnoreConfig, relPath string) []RuleRecord {
	filtered := make([]RuleRecord, 0, len(records))
	for _, rule := range records {
		if ignore.IsIgnored(rule.RulesetName, rule.RuleName, relPath) {
			continue
		}
		filtered = append(filtered, rule)
	}
	return filtered
}

// GroupByLanguage buckets every rule of every ruleset by its language.
func GroupByLanguage(rulesets []Ruleset) map[Language][]RuleRecord {
	grouped := make(map[Language][]RuleRecord)
	for _, rs := range rulesets {
		for _, rule := range rs.Rules {
			if rule.RulesetName == "" {
				rule.RulesetName = rs.Name
			}
			grouped[rule.Language] = append(grouped[rule.Language], rule)
		}
	}
	return grouped
}

// Names returns the ruleset names in order.
func Names(rulesets []Ruleset) []string {
	names := make([]string, 0, len(rulesets))
	for _, rs := range rulesets {
		names = append(names, rs.Name)
	}
	return names
}
