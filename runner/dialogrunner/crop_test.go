package dialogrunner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func textChunk(tokens ...int32) *chunk {
	return &chunk{kind: chunkText, tokens: tokens}
}

func modalChunk(n int32) *chunk {
	return &chunk{kind: chunkModal, modalTokens: n}
}

func tokensOf(cs chunkSequence) [][]int32 {
	out := make([][]int32, 0, len(cs))
	for _, c := range cs {
		if c.kind == chunkText {
			out = append(out, c.tokens)
		} else {
			out = append(out, []int32{-c.modalTokens})
		}
	}
	return out
}

func TestFindLabel(t *testing.T) {
	cases := []struct {
		name      string
		source    []int32
		label     []int32
		leftIndex int
		want      int
	}{
		{"am Anfang", []int32{9, 8, 1, 2}, []int32{9, 8}, 0, 0},
		{"in der Mitte", []int32{1, 9, 8, 2}, []int32{9, 8}, 0, 1},
		{"ab left_index", []int32{9, 8, 1, 9, 8}, []int32{9, 8}, 1, 3},
		{"nicht vorhanden", []int32{1, 2, 3}, []int32{9, 8}, 0, -1},
		{"left_index hinter Ende", []int32{9, 8}, []int32{9, 8}, 5, -1},
		{"Label ragt ueber Ende", []int32{1, 2, 9}, []int32{9, 8}, 0, -1},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := findLabel(tt.source, tt.label, tt.leftIndex); got != tt.want {
				t.Errorf("findLabel = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFindLabelChunk(t *testing.T) {
	s := &Server{cropLabel: []int32{9}}
	chunks := chunkSequence{
		textChunk(1, 2),
		modalChunk(5),
		textChunk(3, 9, 4),
	}

	chunkIdx, tokenIdx := s.findLabelChunk(chunks, 0, 0)
	if chunkIdx != 2 || tokenIdx != 1 {
		t.Errorf("findLabelChunk = (%d, %d), want (2, 1)", chunkIdx, tokenIdx)
	}

	// keine weitere Boundary hinter dem Treffer
	chunkIdx, tokenIdx = s.findLabelChunk(chunks, 2, 2)
	if chunkIdx != -1 || tokenIdx != -1 {
		t.Errorf("findLabelChunk = (%d, %d), want (-1, -1)", chunkIdx, tokenIdx)
	}
}

func TestCropByQueryRemovesMiddleTurns(t *testing.T) {
	s := &Server{cropLabel: []int32{9}}

	// drei Turns im selben Chunk, der erste wird entfernt
	chunks := chunkSequence{textChunk(9, 1, 1, 9, 2, 2, 9, 3, 3)}
	got, ok := s.cropByQuery(chunks, chunks.numTokens(), 6)
	if !ok {
		t.Fatal("cropByQuery failed, want success")
	}

	want := [][]int32{{9, 2, 2, 9, 3, 3}}
	if diff := cmp.Diff(want, tokensOf(got)); diff != "" {
		t.Errorf("unexpected chunks (-want +got):\n%s", diff)
	}
}

func TestCropByQueryAcrossChunks(t *testing.T) {
	s := &Server{cropLabel: []int32{9}}

	// Boundary-Paar ueberspannt einen Modal-Chunk, der mit entfernt wird
	chunks := chunkSequence{
		textChunk(9, 1),
		modalChunk(5),
		textChunk(9, 2, 2),
	}
	got, ok := s.cropByQuery(chunks, chunks.numTokens(), 7)
	if !ok {
		t.Fatal("cropByQuery failed, want success")
	}

	want := [][]int32{{9, 2, 2}}
	if diff := cmp.Diff(want, tokensOf(got)); diff != "" {
		t.Errorf("unexpected chunks (-want +got):\n%s", diff)
	}
}

func TestCropByQueryPreservesPrefix(t *testing.T) {
	s := &Server{cropLabel: []int32{9}}

	// System-Praefix vor der ersten Boundary bleibt unveraendert
	chunks := chunkSequence{textChunk(7, 7, 9, 1, 1, 1, 9, 2)}
	got, ok := s.cropByQuery(chunks, chunks.numTokens(), 5)
	if !ok {
		t.Fatal("cropByQuery failed, want success")
	}

	want := [][]int32{{7, 7, 9, 2}}
	if diff := cmp.Diff(want, tokensOf(got)); diff != "" {
		t.Errorf("unexpected chunks (-want +got):\n%s", diff)
	}
}

func TestCropByQueryFails(t *testing.T) {
	s := &Server{cropLabel: []int32{9}}

	cases := []struct {
		name   string
		chunks chunkSequence
		limit  int32
	}{
		{"keine Boundary", chunkSequence{textChunk(1, 2, 3, 4)}, 2},
		{"letzter Turn zu lang", chunkSequence{textChunk(9, 1, 1, 9, 2, 2, 2, 2, 2)}, 4},
		{"einzige Boundary zu lang", chunkSequence{textChunk(9, 1, 1, 1, 1)}, 3},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			before := tokensOf(tt.chunks)
			got, ok := s.cropByQuery(tt.chunks, tt.chunks.numTokens(), tt.limit)
			if ok {
				t.Fatalf("cropByQuery succeeded with %v, want failure", tokensOf(got))
			}

			// Fehlschlag laesst die Eingabe unveraendert
			if diff := cmp.Diff(before, tokensOf(tt.chunks)); diff != "" {
				t.Errorf("input modified on failure (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCropByTokensSuffix(t *testing.T) {
	s := &Server{cropLabel: []int32{99}}

	chunks := chunkSequence{
		textChunk(1, 2, 3, 4),
		textChunk(5, 6, 7, 8),
	}
	got := s.cropByTokens(chunks, chunks.numTokens(), 6)

	want := [][]int32{{3, 4}, {5, 6, 7, 8}}
	if diff := cmp.Diff(want, tokensOf(got)); diff != "" {
		t.Errorf("unexpected chunks (-want +got):\n%s", diff)
	}
}

func TestCropByTokensDropsModal(t *testing.T) {
	s := &Server{cropLabel: []int32{99}}

	// der Modal-Chunk passt nicht mehr ganz, alles Aeltere entfaellt
	chunks := chunkSequence{
		textChunk(1, 2),
		modalChunk(5),
		textChunk(3, 4, 5),
	}
	got := s.cropByTokens(chunks, chunks.numTokens(), 6)

	want := [][]int32{{3, 4, 5}}
	if diff := cmp.Diff(want, tokensOf(got)); diff != "" {
		t.Errorf("unexpected chunks (-want +got):\n%s", diff)
	}
}

func TestCropByTokensKeepsFittingModal(t *testing.T) {
	s := &Server{cropLabel: []int32{99}}

	chunks := chunkSequence{
		textChunk(1, 2, 3),
		modalChunk(2),
		textChunk(4, 5),
	}
	got := s.cropByTokens(chunks, chunks.numTokens(), 6)

	want := [][]int32{{2, 3}, {-2}, {4, 5}}
	if diff := cmp.Diff(want, tokensOf(got)); diff != "" {
		t.Errorf("unexpected chunks (-want +got):\n%s", diff)
	}
}

func TestLimitPromptTokensWithinBudget(t *testing.T) {
	s := &Server{numCtx: 10, cropLabel: []int32{9}}

	chunks := chunkSequence{textChunk(9, 1, 2, 3)}
	got := s.limitPromptTokens(chunks)

	if diff := cmp.Diff(tokensOf(chunks), tokensOf(got)); diff != "" {
		t.Errorf("within-budget sequence changed (-want +got):\n%s", diff)
	}
}

func TestLimitPromptTokensFallback(t *testing.T) {
	// zehn Text-Chunks, der letzte allein sprengt das Budget:
	// cropByQuery schlaegt fehl, cropByTokens behaelt genau das
	// Budget-Ende des letzten Chunks
	s := &Server{numCtx: 10, cropLabel: []int32{99}}

	chunks := make(chunkSequence, 0, 10)
	for i := int32(0); i < 9; i++ {
		chunks = append(chunks, textChunk(i))
	}
	last := make([]int32, 20)
	for i := range last {
		last[i] = int32(100 + i)
	}
	chunks = append(chunks, textChunk(last...))

	got := s.limitPromptTokens(chunks)

	// Budget = floor(10 * 0.8) = 8
	want := [][]int32{last[12:]}
	if diff := cmp.Diff(want, tokensOf(got)); diff != "" {
		t.Errorf("unexpected chunks (-want +got):\n%s", diff)
	}
	if got.numTokens() != 8 {
		t.Errorf("numTokens = %d, want 8", got.numTokens())
	}
}

func TestLimitPromptTokensIdempotent(t *testing.T) {
	s := &Server{numCtx: 10, cropLabel: []int32{9}}

	chunks := chunkSequence{textChunk(9, 1, 1, 1, 9, 2, 2, 9, 3, 3, 3)}
	once := s.limitPromptTokens(chunks)
	if once.numTokens() > 8 {
		t.Fatalf("numTokens = %d, want <= 8", once.numTokens())
	}

	twice := s.limitPromptTokens(once)
	if diff := cmp.Diff(tokensOf(once), tokensOf(twice)); diff != "" {
		t.Errorf("second application changed the sequence (-want +got):\n%s", diff)
	}
}
