package cache

import "github.com/JNZader/rosie/internal/rules"

// Stats describes the current snapshot.
type Stats struct {
	Generation    uint64                 `json:"generation"`
	Rules         int                    `json:"rules"`
	RulesByLang   map[rules.Language]int `json:"rules_by_language"`
	Rulesets      int                    `json:"rulesets"`
	IgnoreEntries int                    `json:"ignore_entries"`
	LastUpdated   int64                  `json:"last_updated"`
	ConfigVersion int64                  `json:"config_version"`
	Hits          int64                  `json:"filter_hits"`
	Misses        int64                  `json:"filter_misses"`
}

// Stats returns counts for the current snapshot and the filter memo.
func (c *RulesCache) Stats() Stats {
	s := c.current.Load()
	st := Stats{
		Generation:    s.generation,
		RulesByLang:   make(map[rules.Language]int, len(s.byLanguage)),
		Rulesets:      len(s.rulesets),
		IgnoreEntries: s.ignore.Len(),
		LastUpdated:   s.lastUpdated,
		ConfigVersion: s.configVersion,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
	}
	for lang, records := range s.byLanguage {
		st.RulesByLang[lang] = len(records)
		st.Rules += len(records)
	}
	return st
}
