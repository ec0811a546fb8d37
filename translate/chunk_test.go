package translate

import (
	"reflect"
	"testing"
)

func TestSplitSizesAndSequence(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}

	chunks := Split(lines, 2)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	wantSizes := []int{2, 2, 1}
	wantOffsets := []int{0, 2, 4}
	var joined []string
	for i, c := range chunks {
		if c.Seq != i+1 {
			t.Errorf("chunk %d: Seq = %d, want %d", i, c.Seq, i+1)
		}
		if len(c.Lines) != wantSizes[i] {
			t.Errorf("chunk %d: %d lines, want %d", i, len(c.Lines), wantSizes[i])
		}
		if c.Offset != wantOffsets[i] {
			t.Errorf("chunk %d: Offset = %d, want %d", i, c.Offset, wantOffsets[i])
		}
		joined = append(joined, c.Lines...)
	}
	if !reflect.DeepEqual(joined, lines) {
		t.Fatalf("concatenated chunks = %v, want %v", joined, lines)
	}
}

func TestSplitEmpty(t *testing.T) {
	if chunks := Split(nil, 3); len(chunks) != 0 {
		t.Fatalf("Split(nil) = %v, want no chunks", chunks)
	}
	if chunks := Split([]string{}, 3); len(chunks) != 0 {
		t.Fatalf("Split([]) = %v, want no chunks", chunks)
	}
}

func TestSplitNonPositiveSizeKeepsEverythingTogether(t *testing.T) {
	lines := []string{"a", "b", "c"}
	for _, size := range []int{0, -1, 10} {
		chunks := Split(lines, size)
		if len(chunks) != 1 || len(chunks[0].Lines) != 3 {
			t.Fatalf("Split(size=%d) = %v, want a single chunk of 3", size, chunks)
		}
	}
}

func TestSplitChunksDoNotShareCapacity(t *testing.T) {
	lines := []string{"a", "b", "c", "d"}
	chunks := Split(lines, 2)

	// Appending to the first chunk must not overwrite the second.
	_ = append(chunks[0].Lines, "x")
	if lines[2] != "c" {
		t.Fatalf("append to chunk leaked into input: %v", lines)
	}
}

func TestAppendChunksContinuesNumbering(t *testing.T) {
	var chunks []Chunk
	chunks = appendChunks(chunks, 4, []string{"e", "f"}, 1)
	chunks = appendChunks(chunks, 9, []string{"j"}, 1)

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, want := range []struct{ seq, offset int }{{1, 4}, {2, 5}, {3, 9}} {
		if chunks[i].Seq != want.seq || chunks[i].Offset != want.offset {
			t.Errorf("chunk %d = {Seq:%d Offset:%d}, want {Seq:%d Offset:%d}",
				i, chunks[i].Seq, chunks[i].Offset, want.seq, want.offset)
		}
	}
}
