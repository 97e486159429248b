package text

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type UnitKind string

const (
	// UnitWhole is a paragraph that fit within the size limit as-is.
	UnitWhole UnitKind = "whole"
	// UnitSplit is a piece of a paragraph that had to be broken on sentence boundaries.
	UnitSplit UnitKind = "split"
)

const (
	DefaultMaxUnitSize = 512
	DefaultOverlapSize = 50
)

var (
	paragraphBreakRe = regexp.MustCompile(`\n[ \t\r]*\n`)
	sentenceEndRe    = regexp.MustCompile(`([.!?]+)\s+`)
)

// Unit is one indexable span of a source document.
// SequenceIndex is only meaningful within a single segmentation run.
type Unit struct {
	SequenceIndex int      `json:"sequence_index"`
	SourceID      string   `json:"source_id"`
	Text          string   `json:"text"`
	Kind          UnitKind `json:"kind"`
	SourceLength  int      `json:"source_length"`
	Position      int      `json:"position_in_source"`
	TotalUnits    int      `json:"total_units_in_source"`
}

// Segmenter holds the size configuration used by the index path.
type Segmenter struct {
	MaxUnitSize int
	OverlapSize int
}

func NewSegmenter(maxUnitSize, overlapSize int) *Segmenter {
	return &Segmenter{MaxUnitSize: maxUnitSize, OverlapSize: overlapSize}
}

func (s *Segmenter) Segment(sourceID, text string) []Unit {
	return Segment(text, s.MaxUnitSize, s.OverlapSize, sourceID)
}

// Segment splits text into paragraphs and, where a paragraph exceeds
// maxUnitSize characters, into overlapping runs of whole sentences.
//
// Every returned unit is at most maxUnitSize characters long, except a
// split unit made of a single sentence that is itself longer than the limit;
// such sentences are kept intact rather than truncated.
func Segment(text string, maxUnitSize, overlapSize int, sourceID string) []Unit {
	if maxUnitSize <= 0 {
		maxUnitSize = DefaultMaxUnitSize
	}
	if overlapSize < 0 {
		overlapSize = 0
	}

	var units []Unit
	emit := func(content string, kind UnitKind, sourceLen int) {
		units = append(units, Unit{
			SequenceIndex: len(units),
			SourceID:      sourceID,
			Text:          content,
			Kind:          kind,
			SourceLength:  sourceLen,
			Position:      len(units) + 1,
		})
	}

	for _, para := range splitParagraphs(text) {
		paraLen := runeLen(para)
		if paraLen <= maxUnitSize {
			emit(para, UnitWhole, paraLen)
			continue
		}
		for _, piece := range packSentences(splitSentences(para), maxUnitSize, overlapSize) {
			emit(piece, UnitSplit, paraLen)
		}
	}

	for i := range units {
		units[i].TotalUnits = len(units)
	}
	return units
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range paragraphBreakRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// splitSentences cuts after each run of terminal punctuation that is followed
// by whitespace. The punctuation stays with its sentence.
func splitSentences(para string) []string {
	var sentences []string
	last := 0
	for _, m := range sentenceEndRe.FindAllStringSubmatchIndex(para, -1) {
		if s := strings.TrimSpace(para[last:m[3]]); s != "" {
			sentences = append(sentences, s)
		}
		last = m[1]
	}
	if s := strings.TrimSpace(para[last:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// packSentences greedily joins sentences with single spaces into pieces of at
// most maxSize characters. Each new piece after the first is seeded with the
// trailing overlap characters of the piece before it, shortened if needed so
// that seed plus sentence still fits.
func packSentences(sentences []string, maxSize, overlap int) []string {
	var (
		pieces []string
		buf    string
		carry  string
	)

	closeBuf := func() {
		if buf != "" {
			pieces = append(pieces, buf)
			carry = tail(buf, overlap)
			buf = ""
		}
	}

	for _, s := range sentences {
		if buf != "" {
			candidate := buf + " " + s
			// Recompute from content rather than tracking a running total.
			if runeLen(candidate) <= maxSize {
				buf = candidate
				continue
			}
			closeBuf()
		}

		if runeLen(s) > maxSize {
			// A lone oversized sentence becomes its own piece.
			pieces = append(pieces, s)
			carry = tail(s, overlap)
			continue
		}
		buf = seed(carry, s, maxSize)
		carry = ""
	}
	closeBuf()

	return pieces
}

func seed(carry, sentence string, maxSize int) string {
	if carry == "" {
		return sentence
	}
	room := maxSize - runeLen(sentence) - 1
	if room <= 0 {
		return sentence
	}
	carry = strings.TrimSpace(tail(carry, room))
	if carry == "" {
		return sentence
	}
	return carry + " " + sentence
}

// tail returns the last n characters of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
