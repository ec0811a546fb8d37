package translate

// Chunk is a contiguous group of input lines. Chunks are never modified
// after Split returns them.
type Chunk struct {
	// Seq is the 1-based position of the chunk within its round.
	Seq int
	// Offset is the index of the chunk's first line in the run's input.
	Offset int
	// Lines are the chunk's source lines.
	Lines []string
}

// Split divides lines into chunks of size lines each; the last chunk may be
// shorter. A size <= 0 puts everything into one chunk. Empty input yields
// no chunks.
func Split(lines []string, size int) []Chunk {
	return appendChunks(nil, 0, lines, size)
}

// appendChunks splits lines (starting at offset in the run's input) and
// appends the chunks to dst, continuing dst's Seq numbering.
func appendChunks(dst []Chunk, offset int, lines []string, size int) []Chunk {
	if len(lines) == 0 {
		return dst
	}
	if size <= 0 || size > len(lines) {
		size = len(lines)
	}
	for i := 0; i < len(lines); i += size {
		end := min(i+size, len(lines))
		dst = append(dst, Chunk{
			Seq:    len(dst) + 1,
			Offset: offset + i,
			Lines:  lines[i:end:end],
		})
	}
	return dst
}
