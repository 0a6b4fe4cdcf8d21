package filesync

import (
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/astromechza/codeboard/pkg/document"
)

// Edit replaces Range of the previous text with Text. Ranges are rune offsets into the previous
// text.
type Edit struct {
	Range document.Range
	Text  string
}

// Diff returns the edits that turn before into after, ordered by position. The edits do not overlap,
// so applying them from last to first keeps every range valid.
func Diff(before, after string) []Edit {
	if before == after {
		return nil
	}
	a := strings.SplitAfter(before, "\n")
	b := strings.SplitAfter(after, "\n")

	offsets := make([]int, len(a)+1)
	for i, line := range a {
		offsets[i+1] = offsets[i] + utf8.RuneCountInString(line)
	}

	var edits []Edit
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		from := strings.Join(a[op.I1:op.I2], "")
		to := strings.Join(b[op.J1:op.J2], "")
		prefix, suffix := commonAffixes(from, to)
		edits = append(edits, Edit{
			Range: document.Range{
				Start: offsets[op.I1] + prefix,
				End:   offsets[op.I2] - suffix,
			},
			Text: string([]rune(to)[prefix : utf8.RuneCountInString(to)-suffix]),
		})
	}
	return edits
}

// commonAffixes returns the rune lengths of the shared prefix and suffix of a and b. They never
// overlap.
func commonAffixes(a, b string) (int, int) {
	ra, rb := []rune(a), []rune(b)
	prefix := 0
	for prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(ra)-prefix && suffix < len(rb)-prefix && ra[len(ra)-1-suffix] == rb[len(rb)-1-suffix] {
		suffix++
	}
	return prefix, suffix
}
