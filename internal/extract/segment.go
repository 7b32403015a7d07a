// Package extract implements the note extraction pipeline: segmentation,
// rule-based classification, metadata detection, and candidate building.
package extract

import (
	"unicode"
	"unicode/utf8"
)

// MinSegmentRunes is the minimum number of non-whitespace runes a fragment
// must contain to survive segmentation; shorter fragments are noise.
const MinSegmentRunes = 3

// Segment is one candidate statement unit with byte offsets into the
// original raw text. RawText[Start:End] always equals Text.
type Segment struct {
	Text  string
	Start int
	End   int
}

// Split segments raw note text into statement units. It splits on line
// breaks and sentence-ending punctuation, drops empty and too-short
// fragments, and strips leading bullet markers. Offsets are preserved so
// snippets can be reconstructed from the original text; the input is
// never rewritten. Identical input always yields identical segments in
// document order.
func Split(rawText string) []Segment {
	var segs []Segment
	start := 0

	flush := func(end int) {
		if seg, ok := trimSegment(rawText, start, end); ok {
			segs = append(segs, seg)
		}
	}

	for i, r := range rawText {
		switch r {
		case '\n':
			flush(i)
			start = i + 1
		case '.', '!', '?':
			flush(i)
			start = i + 1
		}
	}
	flush(len(rawText))

	return segs
}

// trimSegment narrows [start,end) to the meaningful text: leading
// whitespace and bullet markers and trailing whitespace are skipped by
// moving the offsets, never by rewriting the text.
func trimSegment(rawText string, start, end int) (Segment, bool) {
	if start >= end {
		return Segment{}, false
	}
	frag := rawText[start:end]

	// Leading whitespace and bullet markers.
	i := 0
	for i < len(frag) {
		r, size := utf8.DecodeRuneInString(frag[i:])
		if unicode.IsSpace(r) || isBullet(r) {
			i += size
			continue
		}
		break
	}

	// Trailing whitespace.
	j := len(frag)
	for j > i {
		r, size := utf8.DecodeLastRuneInString(frag[:j])
		if !unicode.IsSpace(r) {
			break
		}
		j -= size
	}

	text := frag[i:j]
	count := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	if count < MinSegmentRunes {
		return Segment{}, false
	}

	return Segment{Text: text, Start: start + i, End: start + j}, true
}

func isBullet(r rune) bool {
	switch r {
	case '•', '-', '*', '–', '—', '>':
		return true
	}
	return false
}
