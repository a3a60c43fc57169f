package pipeline

import (
	"flipflow/internal"
	"flipflow/internal/patterns"
	"flipflow/internal/util"
)

type TrackingResult struct {
	Value           *string             `json:"value"`
	Carrier         internal.Carrier    `json:"carrier"`
	CarrierPriority int                 `json:"carrierPriority"`
	MatchedRuleName *string             `json:"matchedRuleName"`
	AllAttempts     []Candidate         `json:"allAttempts"`
}

// ClassifyTracking runs the tracking rule set and assigns a carrier.
//
// A validated UPS match wins outright and stops evaluation: the 1Z format
// has no observed false positives, while the numeric-only carrier formats
// collide with prices, ZIP codes and phone numbers and need the full
// exclusion pass.
func ClassifyTracking(content string, rules []patterns.TrackingRule) TrackingResult {
	result := TrackingResult{Carrier: internal.CarrierNone, AllAttempts: []Candidate{}}

	bestPriority := 0
	var bestRaw string
	var bestRule *patterns.TrackingRule

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
			result.AllAttempts = append(result.AllAttempts, Candidate{RuleName: rule.Name, RawMatch: raw, Valid: valid})
			if !valid {
				continue
			}

			if rule.Carrier == internal.CarrierUPS && patterns.IsUPSFormat(raw) {
				value := raw
				if rule.Normalize != nil {
					value = rule.Normalize(raw)
				}
				name := rule.Name
				return TrackingResult{
					Value:           &value,
					Carrier:         rule.Carrier,
					CarrierPriority: rule.Priority,
					MatchedRuleName: &name,
					AllAttempts:     result.AllAttempts,
				}
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
	name := bestRule.Name
	result.Value = &value
	result.Carrier = bestRule.Carrier
	result.CarrierPriority = bestRule.Priority
	result.MatchedRuleName = &name
	return result
}
