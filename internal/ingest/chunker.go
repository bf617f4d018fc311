package ingest

import "unicode/utf8"

// Chunking defaults, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk is a piece of one row's text plus the metadata stored alongside its
// vector.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Chunker splits row text into overlapping windows. Break points prefer a
// paragraph boundary, then a newline, then a space, so chunks end on natural
// seams where possible.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker applies defaults for non-positive size and clamps the overlap
// below the size so the window always advances.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split breaks the row into chunks. Each chunk carries the row's category,
// the original question, and its 1-indexed position.
func (c *Chunker) Split(row Row) []Chunk {
	pieces := c.split(row.Text())
	chunks := make([]Chunk, len(pieces))
	for i, text := range pieces {
		chunks[i] = Chunk{
			Text: text,
			Metadata: map[string]any{
				"category":          row.Category,
				"original_question": row.Question,
				"chunk_num":         i + 1,
				"total_chunks":      len(pieces),
			},
		}
	}
	return chunks
}

func (c *Chunker) split(text string) []string {
	if len(text) <= c.Size {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(text) {
		end := start + c.Size
		if end >= len(text) {
			pieces = append(pieces, text[start:])
			break
		}
		end = alignRune(text, end)
		if end <= start {
			// The window is smaller than one rune; take the whole rune.
			_, n := utf8.DecodeRuneInString(text[start:])
			end = start + n
		}
		end = breakPoint(text, start, end)
		pieces = append(pieces, text[start:end])
		next := alignRune(text, end-c.Overlap)
		if next <= start {
			// The overlap would stall the window; advance past the seam.
			next = end
		}
		start = next
	}
	return pieces
}

// alignRune moves i back to the nearest rune start so slicing never cuts a
// multi-byte sequence.
func alignRune(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// breakPoint searches backward from end for a seam, but never retreats past
// the midpoint of the window.
func breakPoint(text string, start, end int) int {
	floor := start + (end-start)/2
	for _, sep := range []string{"\n\n", "\n", " "} {
		for i := end - len(sep); i > floor; i-- {
			if text[i:i+len(sep)] == sep {
				return i + len(sep)
			}
		}
	}
	return end
}
