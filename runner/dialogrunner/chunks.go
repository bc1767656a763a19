// Package dialogrunner - Tokenisierung zum Chunk-Strom
//
// Dieses Modul wandelt den formatierten Prompt und die vorbereiteten
// Bitmaps in die Chunk-Sequenz um. Der Prompt wird an [img-<n>] Tags
// gesplittet, Text-Teile werden tokenisiert, an den Tag-Positionen
// entstehen Modal-Chunks.
package dialogrunner

import (
	"fmt"
	"regexp"
	"strconv"
)

var imageTag = regexp.MustCompile(`\[img-(\d+)\]`)

// tokenizeChunks erzeugt die Chunk-Sequenz. Die Bitmap-Liste der
// Sequenz wird vorab entnommen und damit in jedem Fall geleert - der
// Besitz der Bitmaps geht an diesen Aufruf ueber, erfolgreich oder nicht.
func (s *Server) tokenizeChunks(prompt string, state *SequenceState) (chunkSequence, error) {
	bitmaps := state.takeBitmaps()

	var parts []string
	var matches [][]string
	if len(bitmaps) > 0 {
		parts = imageTag.Split(prompt, -1)
		matches = imageTag.FindAllStringSubmatch(prompt, -1)

		// jede vorbereitete Bitmap braucht genau einen Tag im Prompt,
		// sonst gingen Bilder kommentarlos verloren
		if len(matches) != len(bitmaps) {
			return nil, fmt.Errorf("prompt has %d image tags for %d prepared bitmaps", len(matches), len(bitmaps))
		}
	} else {
		parts = []string{prompt}
	}

	var chunks chunkSequence
	for i, part := range parts {
		tokens, err := s.text.Encode(part, i == 0)
		if err != nil {
			return nil, fmt.Errorf("failed to tokenize prompt: %w", err)
		}

		if len(tokens) > 0 {
			chunks = append(chunks, &chunk{kind: chunkText, tokens: tokens})
		}

		if i < len(matches) {
			n, _ := strconv.Atoi(matches[i][1])
			if n < 0 || n >= len(bitmaps) {
				return nil, fmt.Errorf("invalid image index: %d", n)
			}

			bm := bitmaps[n]
			chunks = append(chunks, &chunk{
				kind:        chunkModal,
				modalTokens: s.multimodal.BitmapTokens(bm),
				bitmap:      bm,
			})
		}
	}

	return chunks, nil
}
