package pipeline

import (
	"flipflow/internal/patterns"
	"flipflow/internal/util"
)

// Candidate records one raw match in the diagnostics trail. The trail is
// reproducible from the same input and is never consulted by status logic.
type Candidate struct {
	RuleName string `json:"ruleName"`
	RawMatch string `json:"rawMatch"`
	Valid    bool   `json:"valid"`
}

type ExtractionResult struct {
	Value           *string     `json:"value"`
	MatchedRuleName *string     `json:"matchedRuleName"`
	AllCandidates   []Candidate `json:"allCandidates"`
}

// Extractor runs a rule list over content. Poison values are historically
// known false positives: a match equal to a poison value is skipped and
// extraction continues with the remaining candidates.
type Extractor struct {
	poison map[string]struct{}
}

func NewExtractor(poison map[string]struct{}) *Extractor {
	return &Extractor{poison: poison}
}

// Extract collects every match of every rule in list order, validates each,
// and picks the accepted candidate whose rule has the numerically lowest
// priority; ties go to the first candidate seen. Pure and deterministic.
func (e *Extractor) Extract(content string, rules []patterns.Rule) ExtractionResult {
	result := ExtractionResult{AllCandidates: []Candidate{}}

	bestPriority := 0
	var bestRaw string
	var bestRule *patterns.Rule

	for i := range rules {
		rule := &rules[i]
		for _, m := range rule.Matcher.FindAllStringSubmatch(content, -1) {
			raw := m[0]
			if len(m) > 1 && m[1] != "" {
				raw = m[1]
			}
			raw = util.CleanCandidate(raw)
			if raw == "" {
				continue
			}

			valid := rule.Validate == nil || rule.Validate(raw)
			if valid && e.poisoned(rule, raw) {
				valid = false
			}
			result.AllCandidates = append(result.AllCandidates, Candidate{RuleName: rule.Name, RawMatch: raw, Valid: valid})
			if !valid {
				continue
			}

			if bestRule == nil || rule.Priority < bestPriority {
				bestRule = rule
				bestPriority = rule.Priority
				bestRaw = raw
			}
		}
	}

	if bestRule == nil {
		return result
	}

	value := bestRaw
	if bestRule.Normalize != nil {
		value = bestRule.Normalize(bestRaw)
	}
	result.Value = &value
	name := bestRule.Name
	result.MatchedRuleName = &name
	return result
}

func (e *Extractor) poisoned(rule *patterns.Rule, raw string) bool {
	if len(e.poison) == 0 {
		return false
	}
	if _, bad := e.poison[raw]; bad {
		return true
	}
	if rule.Normalize != nil {
		if _, bad := e.poison[rule.Normalize(raw)]; bad {
			return true
		}
	}
	return false
}
