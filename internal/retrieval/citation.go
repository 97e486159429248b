package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	PreviewLength = 200

	confidenceNotFound    = 0.1
	confidenceNoUnits     = 0.2
	answerLengthSaturates = 200.0
)

var notFoundRe = regexp.MustCompile(`(?i)\b(not found|not available|couldn't find|could not find|no relevant information)\b`)

// DeriveCitations returns one citation per retrieved unit, in retrieval order.
// Units are not filtered by whether the answer actually used them.
func DeriveCitations(units []RetrievedUnit) []Citation {
	citations := make([]Citation, 0, len(units))
	for i, u := range units {
		citations = append(citations, Citation{
			Rank:            i + 1,
			SourceID:        u.Metadata.SourceID,
			SectionRef:      u.Metadata.Position,
			UnitID:          u.ID,
			SimilarityScore: u.Score,
			TextPreview:     Preview(u.Text),
		})
	}
	return citations
}

// Preview returns at most PreviewLength characters of s, ending in "..." when cut.
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	r := []rune(s)
	return string(r[:PreviewLength-3]) + "..."
}

// AnswerIndicatesNotFound reports whether the answer declines for lack of context.
func AnswerIndicatesNotFound(answer string) bool {
	return notFoundRe.MatchString(answer)
}

// DeriveConfidence scores an answer. A declining or empty answer is 0.1 no
// matter the scores, no units is 0.2, otherwise similarity weighs 0.7 and
// answer length 0.3.
func DeriveConfidence(answer string, units []RetrievedUnit) float64 {
	if strings.TrimSpace(answer) == "" || AnswerIndicatesNotFound(answer) {
		return confidenceNotFound
	}
	if len(units) == 0 {
		return confidenceNoUnits
	}

	var sum float64
	for _, u := range units {
		sum += float64(u.Score)
	}
	avg := sum / float64(len(units))
	lengthFactor := min(float64(utf8.RuneCountInString(answer))/answerLengthSaturates, 1.0)

	return clamp01(0.7*avg + 0.3*lengthFactor)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
