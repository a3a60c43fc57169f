// Package patterns holds the declarative recognizer rules the extraction
// pipeline runs over email content. Rules are plain data: a regex, a fixed
// priority (lower wins), and optional validate/normalize hooks. Adding a new
// email shape means adding a rule, not touching control flow.
package patterns

import (
	"regexp"
	"strings"

	"flipflow/internal"
)

type Rule struct {
	Name      string
	Matcher   *regexp.Regexp
	Priority  int
	Validate  func(candidate string) bool
	Normalize func(candidate string) string
}

// TrackingRule tags a Rule with the carrier its format belongs to.
type TrackingRule struct {
	Rule
	Carrier internal.Carrier
}

// Category maps subject substrings to an order status. Categories are
// evaluated in declared order; the first substring hit wins.
type Category struct {
	Status   internal.OrderStatus
	Priority int
	Subjects []string
}

// Library is the injected configuration consumed by the pipeline. One
// instance replaces the near-duplicate regex lists that used to drift apart
// across handlers.
type Library struct {
	OrderNumber   []Rule
	Tracking      []TrackingRule
	Size          []Rule
	FailureReason []Rule
	Categories    []Category
	PoisonSizes   map[string]struct{}
}

var (
	reYear       = regexp.MustCompile(`^20\d{2}$`)
	reZIP        = regexp.MustCompile(`^\d{5}$`)
	rePhone      = regexp.MustCompile(`^\d{10}$`)
	reUPSStrict  = regexp.MustCompile(`(?i)^1Z[0-9A-Z]{16}$`)
	reHyphenated = regexp.MustCompile(`-`)
)

// Price fragments observed as recurring false positives in numeric tracking
// candidates (shipping fees, common ask increments rendered without a dot).
var priceFragments = map[string]struct{}{
	"1495": {}, "1395": {}, "995": {}, "895": {}, "795": {},
}

// ExcludeNumeric rejects digit candidates that are really years, ZIP codes,
// phone numbers, order-shaped tokens, or price fragments. Shared by every
// numeric-only tracking rule.
func ExcludeNumeric(candidate string) bool {
	if reYear.MatchString(candidate) || reZIP.MatchString(candidate) || rePhone.MatchString(candidate) {
		return false
	}
	if reHyphenated.MatchString(candidate) {
		return false
	}
	if _, bad := priceFragments[candidate]; bad {
		return false
	}
	return true
}

// IsUPSFormat reports whether a candidate is a fully-formed UPS tracking
// number. UPS numbers are unambiguous; validated matches short-circuit the
// rest of the tracking rules.
func IsUPSFormat(candidate string) bool {
	return reUPSStrict.MatchString(candidate)
}

func identity(s string) string { return s }

func Default() *Library {
	return New([]string{"15"})
}

// New builds the standard rule set. poisonSizes lists size values known to
// be historical misparses; they are rejected even when a rule matches.
func New(poisonSizes []string) *Library {
	poison := make(map[string]struct{}, len(poisonSizes))
	for _, p := range poisonSizes {
		p = strings.TrimSpace(p)
		if p != "" {
			poison[p] = struct{}{}
		}
	}

	return &Library{
		OrderNumber:   orderNumberRules(),
		Tracking:      trackingRules(),
		Size:          sizeRules(),
		FailureReason: failureReasonRules(),
		Categories:    defaultCategories(),
		PoisonSizes:   poison,
	}
}

func orderNumberRules() []Rule {
	nonEmpty := func(c string) bool { return strings.TrimSpace(c) != "" }
	return []Rule{
		{
			// Compound buyerOrder-sellerOrder pair; the second 8-digit group
			// is the seller-side purchase id we key on.
			Name:      "order_compound",
			Matcher:   regexp.MustCompile(`(?i)\b\d{8}-(\d{8})\b`),
			Priority:  1,
			Validate:  nonEmpty,
			Normalize: identity,
		},
		{
			Name:     "order_marketplace_id",
			Matcher:  regexp.MustCompile(`(?i)\b(\d{2}-[0-9A-Z]{10})\b`),
			Priority: 2,
			Validate: func(c string) bool {
				// Requires a letter so plain digit runs never match here.
				return strings.IndexFunc(c, func(r rune) bool {
					return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
				}) >= 0
			},
			Normalize: strings.ToUpper,
		},
		{
			Name:      "order_labeled",
			Matcher:   regexp.MustCompile(`(?i)order\s*(?:number|no\.?|#)\s*:?\s*([0-9A-Z-]{6,24})`),
			Priority:  3,
			Validate:  nonEmpty,
			Normalize: strings.ToUpper,
		},
		{
			Name:      "order_hash",
			Matcher:   regexp.MustCompile(`(?i)#([0-9A-Z-]{6,24})\b`),
			Priority:  4,
			Validate:  nonEmpty,
			Normalize: strings.ToUpper,
		},
		{
			Name:      "order_eight_digit",
			Matcher:   regexp.MustCompile(`\b(\d{8})\b`),
			Priority:  5,
			Validate:  ExcludeNumeric,
			Normalize: identity,
		},
	}
}

func trackingRules() []TrackingRule {
	return []TrackingRule{
		{
			Rule: Rule{
				Name:      "ups",
				Matcher:   regexp.MustCompile(`(?i)\b(1Z[0-9A-Z]{16})\b`),
				Priority:  1,
				Validate:  IsUPSFormat,
				Normalize: strings.ToUpper,
			},
			Carrier: internal.CarrierUPS,
		},
		{
			Rule: Rule{
				Name:    "fedex",
				Matcher: regexp.MustCompile(`\b(\d{12}|\d{14})\b`),
				Priority: 2,
				Validate: func(c string) bool {
					// 12-digit numbers leading 8 or 9 belong to the
					// marketplace's internal label pool, not FedEx.
					if len(c) == 12 && (c[0] == '8' || c[0] == '9') {
						return false
					}
					return ExcludeNumeric(c)
				},
				Normalize: identity,
			},
			Carrier: internal.CarrierFedEx,
		},
		{
			Rule: Rule{
				Name:      "usps",
				Matcher:   regexp.MustCompile(`\b(9\d{19}|9\d{21})\b`),
				Priority:  3,
				Validate:  ExcludeNumeric,
				Normalize: identity,
			},
			Carrier: internal.CarrierUSPS,
		},
		{
			Rule: Rule{
				// Marketplace-internal shipment ids: 12 digits leading 8 or 9.
				Name:      "stockx_internal",
				Matcher:   regexp.MustCompile(`\b([89]\d{11})\b`),
				Priority:  4,
				Validate:  ExcludeNumeric,
				Normalize: identity,
			},
			Carrier: internal.CarrierStockX,
		},
		{
			Rule: Rule{
				Name:      "generic_digits",
				Matcher:   regexp.MustCompile(`\b(\d{10,22})\b`),
				Priority:  5,
				Validate:  ExcludeNumeric,
				Normalize: identity,
			},
			Carrier: internal.CarrierNone,
		},
	}
}

const sizeToken = `(?:\d{1,2}(?:\.5)?[WYC]?|XXS|XS|S|M|L|XL|XXL|W)`

func sizeRules() []Rule {
	validSize := func(c string) bool {
		return strings.TrimSpace(c) != "" && !reYear.MatchString(c)
	}
	normalizeSize := func(c string) string {
		c = strings.ToUpper(strings.TrimSpace(c))
		c = strings.TrimPrefix(c, "US ")
		return "US " + c
	}
	return []Rule{
		{
			Name:      "size_labeled",
			Matcher:   regexp.MustCompile(`(?i)size\s*:?\s*(?:US\s*)?(` + sizeToken + `)\b`),
			Priority:  1,
			Validate:  validSize,
			Normalize: normalizeSize,
		},
		{
			Name:      "size_subject_paren",
			Matcher:   regexp.MustCompile(`(?i)\(\s*(?:size\s*)?(?:US\s*)?(` + sizeToken + `)\s*\)`),
			Priority:  2,
			Validate:  validSize,
			Normalize: normalizeSize,
		},
		{
			Name:      "size_us_prefixed",
			Matcher:   regexp.MustCompile(`(?i)\bUS\s+(` + sizeToken + `)\b`),
			Priority:  3,
			Validate:  validSize,
			Normalize: normalizeSize,
		},
		{
			Name:      "size_table_cell",
			Matcher:   regexp.MustCompile(`(?i)<td[^>]*>\s*(?:US\s*)?(` + sizeToken + `)\s*</td>`),
			Priority:  4,
			Validate:  validSize,
			Normalize: normalizeSize,
		},
		{
			Name:      "size_list_item",
			Matcher:   regexp.MustCompile(`(?i)<li[^>]*>\s*(?:size\s*:?\s*)?(?:US\s*)?(` + sizeToken + `)\s*</li>`),
			Priority:  4,
			Validate:  validSize,
			Normalize: normalizeSize,
		},
		{
			Name:      "size_span_div",
			Matcher:   regexp.MustCompile(`(?i)<(?:span|div)[^>]*>\s*(?:size\s*:?\s*)?(?:US\s*)?(` + sizeToken + `)\s*</(?:span|div)>`),
			Priority:  5,
			Validate:  validSize,
			Normalize: normalizeSize,
		},
	}
}

func failureReasonRules() []Rule {
	canonical := func(reason string) func(string) string {
		return func(string) string { return reason }
	}
	always := func(string) bool { return true }
	return []Rule{
		{
			Name:      "fail_verification",
			Matcher:   regexp.MustCompile(`(?i)(did not pass(?: our)? verification|failed verification)`),
			Priority:  1,
			Validate:  always,
			Normalize: canonical("failed verification"),
		},
		{
			Name:      "fail_seller_no_ship",
			Matcher:   regexp.MustCompile(`(?i)(seller (?:did not|didn't|failed to) ship)`),
			Priority:  2,
			Validate:  always,
			Normalize: canonical("seller did not ship"),
		},
		{
			Name:      "fail_payment",
			Matcher:   regexp.MustCompile(`(?i)(payment (?:issue|failed|could not be processed))`),
			Priority:  3,
			Validate:  always,
			Normalize: canonical("payment issue"),
		},
		{
			Name:     "fail_labeled",
			Matcher:  regexp.MustCompile(`(?i)reason\s*:?\s+([^<>\n.]{4,80})`),
			Priority: 4,
			Validate: func(c string) bool { return strings.TrimSpace(c) != "" },
			Normalize: func(c string) string {
				return strings.ToLower(strings.TrimSpace(c))
			},
		},
	}
}

// defaultCategories is declared in match order: Delivered subjects can be
// superstrings of Shipped phrasing, so Delivered is checked first.
func defaultCategories() []Category {
	return []Category{
		{
			Status:   internal.StatusDelivered,
			Priority: internal.StatusPriority(internal.StatusDelivered),
			Subjects: []string{"order delivered", "delivered:", "has been delivered", "was delivered"},
		},
		{
			Status:   internal.StatusShipped,
			Priority: internal.StatusPriority(internal.StatusShipped),
			Subjects: []string{"order shipped", "shipped:", "has shipped", "on its way", "is on the way"},
		},
		{
			Status:   internal.StatusCanceled,
			Priority: internal.StatusPriority(internal.StatusCanceled),
			Subjects: []string{"order canceled", "order cancelled", "has been canceled", "refund issued", "issue with your order"},
		},
	}
}
