// Package dialogrunner - Kontext-Budget-Durchsetzung
//
// Dieses Modul haelt die Chunk-Sequenz einer Dialogsequenz innerhalb
// des Token-Budgets. Zuerst wird versucht, ganze Gespraechsrunden aus
// der Mitte der Historie zu entfernen (cropByQuery); schlaegt das
// fehl, greift der Suffix-Fallback (cropByTokens), der immer gelingt.
package dialogrunner

import (
	"log/slog"
	"slices"
)

// promptProportion ist der Anteil des nutzbaren Kontexts, der fuer
// den Prompt zur Verfuegung steht. Der Rest bleibt der Antwort.
const promptProportion = 0.8

// findLabel sucht die Boundary-Tokenfolge in source ab leftIndex und
// liefert den Startindex des ersten Treffers, sonst -1.
func findLabel(source, label []int32, leftIndex int) int {
	if len(label) == 0 || leftIndex < 0 || leftIndex >= len(source) {
		return -1
	}

	for i := leftIndex; i+len(label) <= len(source); i++ {
		if slices.Equal(source[i:i+len(label)], label) {
			return i
		}
	}

	return -1
}

// findLabelChunk sucht die naechste Boundary ueber die Chunk-Sequenz
// hinweg, beginnend bei (leftChunk, leftToken). Modal-Chunks werden
// uebersprungen; ab dem zweiten Chunk beginnt die Suche bei Token 0.
// Liefert (-1, -1), wenn keine Boundary mehr existiert.
func (s *Server) findLabelChunk(chunks chunkSequence, leftChunk, leftToken int) (int, int) {
	tokenIndex := leftToken
	for index := leftChunk; index < len(chunks); index++ {
		if chunks[index].kind != chunkText {
			tokenIndex = 0
			continue
		}

		if found := findLabel(chunks[index].tokens, s.cropLabel, tokenIndex); found != -1 {
			return index, found
		}

		tokenIndex = 0
	}

	return -1, -1
}

// cropByQuery entfernt ganze Gespraechsrunden zwischen Boundary-Paaren,
// bis die Sequenz ins Budget passt. Anfang und Ende der Historie
// bleiben erhalten. Liefert (nil, false), wenn keine Boundary gefunden
// wird oder der juengste Abschnitt allein das Budget sprengt - die
// Eingabesequenz bleibt dann unveraendert.
func (s *Server) cropByQuery(chunks chunkSequence, currentTokens, promptLimit int32) (chunkSequence, bool) {
	slog.Info("attempting crop by user query", "tokens", currentTokens, "limit", promptLimit)

	fChunk, fToken := s.findLabelChunk(chunks, 0, 0)
	if fChunk == -1 {
		return nil, false
	}
	startChunk, startToken := fChunk, fToken
	endChunk, endToken := fChunk, fToken

	var cropped int32
	for currentTokens > promptLimit && fChunk != -1 {
		sChunk, sToken := s.findLabelChunk(chunks, fChunk, fToken+len(s.cropLabel))
		if sChunk == -1 {
			break
		}

		var removed int32
		if fChunk == sChunk {
			removed = int32(sToken - fToken)
		} else {
			removed = int32(len(chunks[fChunk].tokens) - fToken)
			for i := fChunk + 1; i < sChunk; i++ {
				removed += chunks[i].numTokens()
			}
			removed += int32(sToken)
		}

		cropped += removed
		currentTokens -= removed

		fChunk, fToken = sChunk, sToken
		endChunk, endToken = sChunk, sToken
	}

	// last query is too long, could not crop by query
	if currentTokens > promptLimit {
		return nil, false
	}

	newChunks := make(chunkSequence, 0, len(chunks))
	newChunks = append(newChunks, chunks[:startChunk]...)

	startTokens := slices.Clone(chunks[startChunk].tokens[:startToken])
	endTokens := chunks[endChunk].tokens[endToken:]

	if startChunk == endChunk {
		merged := append(startTokens, endTokens...)
		if len(merged) > 0 {
			newChunks = append(newChunks, &chunk{kind: chunkText, tokens: merged})
		}
	} else {
		if len(startTokens) > 0 {
			newChunks = append(newChunks, &chunk{kind: chunkText, tokens: startTokens})
		}
		if len(endTokens) > 0 {
			newChunks = append(newChunks, &chunk{kind: chunkText, tokens: slices.Clone(endTokens)})
		}
	}

	newChunks = append(newChunks, chunks[endChunk+1:]...)

	slog.Info("crop by query removed tokens", "tokens", cropped)
	return newChunks, true
}

// cropByTokens behaelt das juengste Material bis zum Budget. Der Lauf
// geht vom neuesten zum aeltesten Chunk: Text-Chunks werden auf ihre
// letzten Tokens gekuerzt, Modal-Chunks nur ganz uebernommen. Passt
// ein Modal-Chunk nicht mehr, bricht der Lauf ab und alles Aeltere
// entfaellt. Gelingt immer.
func (s *Server) cropByTokens(chunks chunkSequence, currentTokens, promptLimit int32) chunkSequence {
	slog.Info("attempting crop by tokens", "tokens", currentTokens, "limit", promptLimit)

	var newChunks chunkSequence
	remaining := promptLimit
	for i := len(chunks) - 1; i >= 0 && remaining > 0; i-- {
		c := chunks[i]
		if c.kind == chunkText {
			keep := min(int32(len(c.tokens)), remaining)
			if keep > 0 {
				kept := slices.Clone(c.tokens[int32(len(c.tokens))-keep:])
				newChunks = append(chunkSequence{&chunk{kind: chunkText, tokens: kept}}, newChunks...)
				remaining -= keep
			}
		} else {
			if c.numTokens() <= remaining {
				newChunks = append(chunkSequence{c}, newChunks...)
				remaining -= c.numTokens()
			} else {
				// Modal-Chunk passt nicht mehr ganz, alles Aeltere verwerfen
				break
			}
		}
	}

	slog.Info("crop by tokens removed tokens", "tokens", currentTokens-(promptLimit-remaining))
	return newChunks
}

// limitPromptTokens prueft die Chunk-Sequenz gegen das Token-Budget
// und kuerzt sie bei Ueberschreitung. Sequenzen innerhalb des Budgets
// werden unveraendert zurueckgegeben.
func (s *Server) limitPromptTokens(chunks chunkSequence) chunkSequence {
	promptLimit := int32(float32(s.numCtx) * promptProportion)
	currentTokens := chunks.numTokens()

	if currentTokens <= promptLimit {
		return chunks
	}

	slog.Warn("prompt exceeds context budget, cropping",
		"tokens", currentTokens, "numCtx", s.numCtx, "proportion", promptProportion)

	if cropped, ok := s.cropByQuery(chunks, currentTokens, promptLimit); ok {
		return cropped
	}

	return s.cropByTokens(chunks, currentTokens, promptLimit)
}
