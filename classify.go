package creditsync

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// LimitKind names the plan limit a refusal is about.
type LimitKind string

const (
	LimitStore          LimitKind = "store"
	LimitKeyword        LimitKind = "keyword"
	LimitTracker        LimitKind = "tracker"
	LimitAutoCollection LimitKind = "auto_collection"
	LimitFeature        LimitKind = "feature"
)

// Classification is a structured reading of a plan-limit refusal, used to drive an
// upgrade prompt. Current and Max are nil when the message carries no counts.
type Classification struct {
	Kind       LimitKind
	Current    *int64
	Max        *int64
	RawMessage string
}

// LimitRule maps messages matching Match to Kind. Extract pulls usage counts out of
// the message.
type LimitRule struct {
	Name    string
	Kind    LimitKind
	Match   func(message string) bool
	Extract func(message string) (current, limit *int64)
}

// Server messages are authored for display, mostly in Korean. Order matters: a
// store-limit message usually also mentions the plan, and tracker and auto-collection
// messages usually mention keywords, so the narrower rules run first.
var limitRules = []LimitRule{
	keywordRule("store-count", LimitStore, "매장", "store", "stores"),
	keywordRule("tracker-count", LimitTracker, "추적", "트래커", "tracker", "trackers"),
	keywordRule("auto-collection", LimitAutoCollection, "자동 수집", "자동수집", "auto collection", "auto-collection"),
	keywordRule("keyword-count", LimitKeyword, "키워드", "keyword", "keywords"),
	keywordRule("plan-feature", LimitFeature, "업그레이드", "플랜", "요금제", "구독",
		"upgrade", "plan", "plans", "subscription", "subscriptions"),
}

type countPattern struct {
	re      *regexp.Regexp
	current int // submatch index, 0 if the pattern has no current count
	max     int // submatch index, 0 if the pattern has no max count
}

// Tried in order; each field keeps the first value found.
var countPatterns = []countPattern{
	{re: regexp.MustCompile(`(?i)(?:current|현재)\s*:?\s*(\d+)\s*(?:개|건)?\s*/\s*(?:max(?:imum)?|최대)?\s*:?\s*(\d+)`), current: 1, max: 2},
	{re: regexp.MustCompile(`(?i)(?:current|현재)\s*:?\s*(\d+)`), current: 1},
	{re: regexp.MustCompile(`(?i)(?:max(?:imum)?|최대|limit)\s*:?\s*(\d+)`), max: 1},
}

// keywordRule matches Hangul words as substrings, since Korean attaches particles
// to nouns, and ASCII words only as whole words.
func keywordRule(name string, kind LimitKind, words ...string) LimitRule {
	var hangul, ascii []string
	for _, w := range words {
		if isASCII(w) {
			ascii = append(ascii, regexp.QuoteMeta(w))
		} else {
			hangul = append(hangul, w)
		}
	}

	var wordRe *regexp.Regexp
	if len(ascii) > 0 {
		wordRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(ascii, "|") + `)\b`)
	}

	return LimitRule{
		Name: name,
		Kind: kind,
		Match: func(message string) bool {
			for _, w := range hangul {
				if strings.Contains(message, w) {
					return true
				}
			}
			return wordRe != nil && wordRe.MatchString(message)
		},
		Extract: extractCounts,
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// extractCounts finds "current" and "max" usage counts embedded in message.
func extractCounts(message string) (current, limit *int64) {
	for _, p := range countPatterns {
		m := p.re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		if current == nil && p.current > 0 {
			current = parseCount(m[p.current])
		}
		if limit == nil && p.max > 0 {
			limit = parseCount(m[p.max])
		}
		if current != nil && limit != nil {
			break
		}
	}
	return current, limit
}

func parseCount(s string) *int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// Rules returns a copy of the ordered classification table.
func Rules() []LimitRule {
	out := make([]LimitRule, len(limitRules))
	copy(out, limitRules)
	return out
}

// ClassifyLimitError interprets a failed request as a plan-limit refusal. Only
// 403 Forbidden responses are considered; the first matching rule wins. It returns
// false when the failure is not a limit error.
func ClassifyLimitError(statusCode int, message string) (Classification, bool) {
	if statusCode != http.StatusForbidden {
		return Classification{}, false
	}

	for _, rule := range limitRules {
		if !rule.Match(message) {
			continue
		}
		c := Classification{Kind: rule.Kind, RawMessage: message}
		if rule.Extract != nil {
			c.Current, c.Max = rule.Extract(message)
		}
		return c, true
	}
	return Classification{}, false
}
