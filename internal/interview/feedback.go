package interview

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// SummaryFallbackText is stored as the raw summary when the final summary cannot be generated.
const SummaryFallbackText = "Unable to generate final summary."

// FeedbackRecord is the structured form of one evaluation text block.
// Score is nil when the text carries no SCORE marker; its scale depends on the prompt.
type FeedbackRecord struct {
	Score        *int     `json:"score" bson:"score"`
	Strengths    []string `json:"strengths" bson:"strengths"`
	Improvements []string `json:"improvements" bson:"improvements"`
	Feedback     string   `json:"feedback" bson:"feedback"`
}

// SummaryRecord is the end-of-interview evaluation. Parsed is nil when generation failed.
type SummaryRecord struct {
	Raw    string          `json:"raw" bson:"raw"`
	Parsed *FeedbackRecord `json:"parsed" bson:"parsed"`
}

// FallbackSummary returns the placeholder summary used when generation fails.
func FallbackSummary() SummaryRecord {
	return SummaryRecord{Raw: SummaryFallbackText}
}

const (
	markerScore        = "SCORE:"
	markerStrengths    = "STRENGTHS:"
	markerImprovements = "IMPROVEMENTS:"
	markerFeedback     = "FEEDBACK:"
)

// section describes a text region opened by start and closed by the next end marker
// (or end of text). Items starting with one of the guards are dropped: they are
// section headers swallowed by a malformed split.
type section struct {
	start  string
	end    string
	guards []string
}

var (
	strengthsSection    = section{start: markerStrengths, end: markerImprovements, guards: []string{"IMPROVEMENTS", "FEEDBACK"}}
	improvementsSection = section{start: markerImprovements, end: markerFeedback, guards: []string{"FEEDBACK"}}
	narrativeSection    = section{start: markerFeedback}
)

var bulletSeparator = regexp.MustCompile(`\n-\s*`)

// ParseFeedback extracts score, strengths, improvements and the narrative from an
// evaluation text. It never fails: missing or malformed sections yield empty values.
// Every section is scanned independently over the original text.
func ParseFeedback(raw string) FeedbackRecord {
	scanner := newSectionScanner(raw)

	record := FeedbackRecord{
		Score:        scanner.score(),
		Strengths:    []string{},
		Improvements: []string{},
	}

	if region, ok := scanner.region(strengthsSection); ok {
		record.Strengths = splitBullets(region, strengthsSection.guards)
	}
	if region, ok := scanner.region(improvementsSection); ok {
		record.Improvements = splitBullets(region, improvementsSection.guards)
	}
	if region, ok := scanner.region(narrativeSection); ok {
		record.Feedback = strings.TrimSpace(region)
	}

	return record
}

type sectionScanner struct {
	text   string
	folded string
}

func newSectionScanner(text string) sectionScanner {
	return sectionScanner{text: text, folded: foldASCII(text)}
}

func (s sectionScanner) region(sec section) (string, bool) {
	idx := strings.Index(s.folded, sec.start)
	if idx < 0 {
		return "", false
	}

	from := idx + len(sec.start)
	to := len(s.text)
	if sec.end != "" {
		if next := strings.Index(s.folded[from:], sec.end); next >= 0 {
			to = from + next
		}
	}

	return s.text[from:to], true
}

// score returns the integer following the first SCORE marker that is followed by digits.
func (s sectionScanner) score() *int {
	offset := 0
	for {
		idx := strings.Index(s.folded[offset:], markerScore)
		if idx < 0 {
			return nil
		}
		pos := offset + idx + len(markerScore)

		rest := strings.TrimLeftFunc(s.text[pos:], unicode.IsSpace)
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end > 0 {
			value, err := strconv.Atoi(rest[:end])
			if err != nil {
				// Out of int range. The first digit-bearing marker still decides, so the score is absent.
				return nil
			}
			return &value
		}

		offset = pos
	}
}

func splitBullets(region string, guards []string) []string {
	items := make([]string, 0)
	body := strings.TrimSpace(region)
	if body == "" {
		return items
	}

	// the leading newline makes a first-line bullet split like every other bullet
	for _, part := range bulletSeparator.Split("\n"+body, -1) {
		item := strings.TrimSpace(part)
		if item == "" || hasAnyPrefix(item, guards) {
			continue
		}
		items = append(items, item)
	}

	return items
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// foldASCII upper-cases ASCII letters only so byte offsets stay aligned with the input.
func foldASCII(value string) string {
	folded := []byte(value)
	for i, b := range folded {
		if b >= 'a' && b <= 'z' {
			folded[i] = b - ('a' - 'A')
		}
	}
	return string(folded)
}
