package normalize

// LineIndex holds the character offset at which each line of a document
// starts. Offsets count runes, not bytes.
type LineIndex struct {
	starts []int
	length int
}

// NewLineIndex splits text on '\n'.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	n := 0
	for _, r := range text {
		n++
		if r == '\n' {
			starts = append(starts, n)
		}
	}
	return &LineIndex{starts: starts, length: n}
}

// Len returns the document length in characters.
func (idx *LineIndex) Len() int { return idx.length }

// LineCount returns the number of lines; an empty document has one.
func (idx *LineIndex) LineCount() int { return len(idx.starts) }

// LineStart returns the offset of a 1-based line.
func (idx *LineIndex) LineStart(line int) (int, bool) {
	if line < 1 || line > len(idx.starts) {
		return 0, false
	}
	return idx.starts[line-1], true
}

// Offset converts a 1-based position to a 0-based offset. It fails for
// lines outside the document, columns below 1 and offsets past the end.
func (idx *LineIndex) Offset(pos Position) (int, bool) {
	start, ok := idx.LineStart(pos.Line)
	if !ok || pos.Col < 1 {
		return 0, false
	}
	off := start + pos.Col - 1
	if off < 0 || off > idx.length {
		return 0, false
	}
	return off, true
}

// Position converts an offset back to a 1-based position.
func (idx *LineIndex) Position(offset int) (Position, bool) {
	if offset < 0 || offset > idx.length {
		return Position{}, false
	}
	lo, hi := 0, len(idx.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if idx.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return Position{Line: lo + 1, Col: offset - idx.starts[lo] + 1}, true
}
