package text

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {
	t.Run("Paragraphs Within Limit", func(t *testing.T) {
		text := "First para.\n\nSecond para.\n \n\nThird."
		units := Segment(text, 100, 0, "ch-1")
		require.Len(t, units, 3)

		assert.Equal(t, "First para.", units[0].Text)
		assert.Equal(t, "Second para.", units[1].Text)
		assert.Equal(t, "Third.", units[2].Text)
		for i, u := range units {
			assert.Equal(t, UnitWhole, u.Kind)
			assert.Equal(t, "ch-1", u.SourceID)
			assert.Equal(t, i, u.SequenceIndex)
			assert.Equal(t, i+1, u.Position)
			assert.Equal(t, 3, u.TotalUnits)
			assert.Equal(t, utf8.RuneCountInString(u.Text), u.SourceLength)
		}
	})

	t.Run("Empty Input", func(t *testing.T) {
		assert.Empty(t, Segment("", 100, 10, "x"))
		assert.Empty(t, Segment("  \n\n \t \n\n", 100, 10, "x"))
	})

	t.Run("Sentence Split With Overlap", func(t *testing.T) {
		text := "Alpha beta gamma. Delta epsilon zeta. Eta theta iota kappa."
		units := Segment(text, 40, 10, "ch-2")
		require.Len(t, units, 2)

		assert.Equal(t, "Alpha beta gamma. Delta epsilon zeta.", units[0].Text)
		assert.Equal(t, "ilon zeta. Eta theta iota kappa.", units[1].Text)
		for _, u := range units {
			assert.Equal(t, UnitSplit, u.Kind)
			assert.Equal(t, 59, u.SourceLength)
			assert.Equal(t, 2, u.TotalUnits)
		}
	})

	t.Run("Oversized Sentence Kept Intact", func(t *testing.T) {
		text := "Short one. This sentence is definitely too long. Ok."
		units := Segment(text, 10, 0, "ch-3")
		require.Len(t, units, 3)

		assert.Equal(t, "Short one.", units[0].Text)
		assert.Equal(t, "This sentence is definitely too long.", units[1].Text)
		assert.Equal(t, "Ok.", units[2].Text)
		assert.Equal(t, 52, units[1].SourceLength)
	})

	t.Run("Overlap Trimmed To Fit", func(t *testing.T) {
		text := "Aaaa bbbb cccc. Dddd eeee."
		units := Segment(text, 20, 50, "ch-4")
		require.Len(t, units, 2)

		assert.Equal(t, "Aaaa bbbb cccc.", units[0].Text)
		assert.Equal(t, "bbb cccc. Dddd eeee.", units[1].Text)
		assert.LessOrEqual(t, utf8.RuneCountInString(units[1].Text), 20)
	})

	t.Run("Overlap Resets Between Paragraphs", func(t *testing.T) {
		text := "One two three. Four five six.\n\nSeven eight nine. Ten eleven."
		units := Segment(text, 20, 5, "ch-5")
		require.NotEmpty(t, units)

		var second []Unit
		for _, u := range units {
			if strings.Contains(u.Text, "Seven") {
				second = append(second, u)
			}
		}
		require.NotEmpty(t, second)
		assert.True(t, strings.HasPrefix(second[0].Text, "Seven"))
	})

	t.Run("Defaults Applied", func(t *testing.T) {
		para := strings.Repeat("a", 300)
		units := Segment(para, 0, -1, "ch-6")
		require.Len(t, units, 1)
		assert.Equal(t, UnitWhole, units[0].Kind)
	})

	t.Run("Lengths Count Characters Not Bytes", func(t *testing.T) {
		para := strings.Repeat("é", 10)
		units := Segment(para, 10, 0, "ch-7")
		require.Len(t, units, 1)
		assert.Equal(t, UnitWhole, units[0].Kind)
		assert.Equal(t, 10, units[0].SourceLength)
	})

	t.Run("Units Respect Max Size", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 60; i++ {
			b.WriteString("The mitochondria is the powerhouse of the cell. ")
			if i%7 == 6 {
				b.WriteString("Really? Yes! ")
			}
		}
		text := b.String() + "\n\n" + b.String()
		units := Segment(text, 120, 30, "ch-8")
		require.NotEmpty(t, units)
		for _, u := range units {
			assert.LessOrEqual(t, utf8.RuneCountInString(u.Text), 120, u.Text)
			assert.NotEmpty(t, strings.TrimSpace(u.Text))
		}
		assert.Equal(t, len(units), units[len(units)-1].Position)
	})
}

func TestSegmenter(t *testing.T) {
	s := NewSegmenter(DefaultMaxUnitSize, DefaultOverlapSize)
	units := s.Segment("bio-101", "Cells divide.\n\nDNA replicates.")
	require.Len(t, units, 2)
	assert.Equal(t, "bio-101", units[1].SourceID)
	assert.Equal(t, 2, units[1].Position)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Is it? Yes!! It is... Done")
	assert.Equal(t, []string{"Is it?", "Yes!!", "It is...", "Done"}, got)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "", tail("abc", 0))
	assert.Equal(t, "abc", tail("abc", 5))
	assert.Equal(t, "bc", tail("abc", 2))
	assert.Equal(t, "éè", tail("aéè", 2))
}

func longParagraph(n int) string {
	seps := []string{" ", "  ", "\n", " \t"}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(seps[i%len(seps)])
		}
		fmt.Fprintf(&b, "Sentence %d covers topic %c in detail.", i, 'A'+rune(i%26))
	}
	return b.String()
}

func TestSegment_NoOverlapReconstructsParagraph(t *testing.T) {
	para := longParagraph(12)
	units := Segment(para, 100, 0, "ch-1")
	require.Greater(t, len(units), 1)

	texts := make([]string, len(units))
	for i, u := range units {
		assert.Equal(t, UnitSplit, u.Kind)
		texts[i] = u.Text
	}
	assert.Equal(t, strings.Join(strings.Fields(para), " "), strings.Join(texts, " "))
}

// sharedEdge returns the length in characters of the longest suffix of a that
// is also a prefix of b.
func sharedEdge(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	for k := min(len(ra), len(rb)); k > 0; k-- {
		if string(ra[len(ra)-k:]) == string(rb[:k]) {
			return k
		}
	}
	return 0
}

func TestSegment_AdjacentOverlapBounded(t *testing.T) {
	for _, overlap := range []int{5, 20, 40} {
		t.Run(fmt.Sprintf("overlap=%d", overlap), func(t *testing.T) {
			units := Segment(longParagraph(12), 100, overlap, "ch-1")
			require.Greater(t, len(units), 1)

			for i := 1; i < len(units); i++ {
				shared := sharedEdge(units[i-1].Text, units[i].Text)
				assert.LessOrEqual(t, shared, overlap, "units %d and %d", i-1, i)
				assert.Positive(t, shared, "units %d and %d", i-1, i)
			}
		})
	}
}
