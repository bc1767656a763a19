// Package dialogrunner - Prompt-Aufbereitung
//
// Dieses Modul enthaelt die Schritte vor der Tokenisierung:
// - applyChatTemplate: Nachrichten und Tools → Modell-Prompt
// - prepareBitmaps: Befuellt die Bitmap-Liste der Sequenz
package dialogrunner

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/lokal-ai/lokal/api"
	"github.com/lokal-ai/lokal/template"
	"github.com/lokal-ai/lokal/vision"
)

// applyChatTemplate formatiert die Nachrichten (und Tools, falls
// vorhanden) zum Modell-Prompt. Es wird immer der Generierungs-Einstieg
// angehaengt und der "extended reasoning" Modus bleibt deaktiviert.
// Vor-dekodierte Puffer tragen keine eingebetteten Bilder; ihre
// Bild-Tags werden hier in die Nachrichten eingesetzt, damit der
// Chunker die Modal-Chunks platzieren kann.
func (s *Server) applyChatTemplate(req *Request) (string, error) {
	msgs := sanitizeToolCalls(req.Messages)
	if n := req.numModalParts(); n > 0 {
		msgs = tagModalParts(msgs, n)
	}

	var b strings.Builder
	err := s.tmpl.Execute(&b, template.Values{
		Messages: msgs,
		Tools:    req.Tools,
		Think:    false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to apply chat template: %w", err)
	}

	return b.String(), nil
}

// tagModalParts haengt die Bild-Tags fuer n vor-dekodierte Puffer an
// die juengste User-Nachricht an, in derselben Reihenfolge in der
// prepareBitmaps die Handles aufloest. Ohne User-Nachricht bleiben die
// Tags aus und die Tokenisierung schlaegt am Tag/Bitmap-Abgleich fehl.
func tagModalParts(msgs []api.Message, n int) []api.Message {
	tagged := slices.Clone(msgs)
	for i := len(tagged) - 1; i >= 0; i-- {
		if tagged[i].Role != "user" {
			continue
		}

		for j := 0; j < n; j++ {
			tagged[i].Content += fmt.Sprintf(" [img-%d]", j)
		}
		break
	}
	return tagged
}

// prepareBitmaps befuellt die Bitmap-Liste der Sequenz vor der
// Tokenisierung. Zwei sich ausschliessende Pfade: sind vor-dekodierte
// Puffer angegeben, wird jedes Handle aufgeloest und dekodiert; sonst
// werden die in den Nachrichten eingebetteten Bilder einzeln dekodiert.
// Jeder einzelne Fehlschlag bricht die gesamte Vorbereitung ab - eine
// teilweise befuellte Bitmap-Liste wird nie verwendet.
func (s *Server) prepareBitmaps(req *Request, state *SequenceState) error {
	var bitmaps []*vision.Bitmap

	if len(req.ModalParts) > 0 {
		for _, part := range req.ModalParts {
			// Handles aufsteigend, damit die Bitmap-Reihenfolge der
			// Registrierungs-Reihenfolge entspricht
			for _, handle := range slices.Sorted(maps.Keys(part)) {
				data, err := s.buffers.Resolve(handle)
				if err != nil {
					return fmt.Errorf("failed to resolve modal buffer: %w", err)
				}

				if length := part[handle]; int32(len(data)) != length {
					return fmt.Errorf("modal buffer %d: declared length %d does not match %d", handle, length, len(data))
				}

				bm, err := vision.DecodeBitmap(data)
				if err != nil {
					return fmt.Errorf("failed to decode modal buffer %d: %w", handle, err)
				}
				bitmaps = append(bitmaps, bm)
			}
		}
	} else {
		for _, m := range req.Messages {
			for _, data := range m.Images {
				bm, err := vision.DecodeBitmap(data)
				if err != nil {
					return fmt.Errorf("failed to decode message image: %w", err)
				}
				bitmaps = append(bitmaps, bm)
			}
		}
	}

	state.setBitmaps(bitmaps)
	return nil
}
