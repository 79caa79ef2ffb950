package memory

import (
	"regexp"
	"sort"
	"strings"
)

var wordRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_\-]{2,}`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"you": {}, "are": {}, "was": {}, "have": {}, "has": {}, "what": {},
	"how": {}, "can": {}, "about": {}, "from": {}, "your": {}, "please": {},
}

type scoredRecord struct {
	Record Record
	Score  float64
}

func extractKeywords(msg string) []string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}

	keywords := make([]string, 0)
	seen := map[string]struct{}{}
	for _, w := range wordRegex.FindAllString(strings.ToLower(msg), -1) {
		if _, ok := stopwords[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
	}

	if len(keywords) > 8 {
		keywords = keywords[:8]
	}
	return keywords
}

// scoreRecords ranks candidates against the query text. The score blends
// keyword overlap with the record's stored importance; with no usable
// keywords the importance alone decides, so high-confidence preferences
// still surface for short messages.
func scoreRecords(text string, candidates []Record) []scoredRecord {
	keywords := extractKeywords(text)

	out := make([]scoredRecord, 0, len(candidates))
	for _, rec := range candidates {
		out = append(out, scoredRecord{Record: rec, Score: recordScore(keywords, rec)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Record.CreatedAt > out[j].Record.CreatedAt
	})
	return out
}

func recordScore(keywords []string, rec Record) float64 {
	if len(keywords) == 0 {
		return rec.Importance
	}

	content := strings.ToLower(rec.Content)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			hits++
		}
	}
	overlap := float64(hits) / float64(len(keywords))

	return 0.6*overlap + 0.4*rec.Importance
}

func estimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	wide := 0
	for _, r := range text {
		if r > 0x2E7F {
			wide++
		}
	}
	words := len(strings.Fields(text))
	estimate := int(float64(wide)*1.5 + float64(words)*0.75)
	if estimate < 1 {
		return 1
	}
	return estimate
}
