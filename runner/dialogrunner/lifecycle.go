// Package dialogrunner - Sequenz-Lebenszyklus
//
// Dieses Modul baut aus einer dekodierten Anfrage eine lauffertige
// Sequenz auf und beendet laufende Sequenzen wieder. Beim Beenden
// werden Zustand und KV-Cache-Belegung der Sequenz freigegeben.
package dialogrunner

import (
	"log/slog"

	"github.com/lokal-ai/lokal/api"
)

// NewSequence formatiert, tokenisiert und budgetiert die Anfrage und
// registriert den Sequenzzustand unter req.ID. Eine bereits
// registrierte Sequenz mit derselben ID wird ueberschrieben.
func (s *Server) NewSequence(req *Request) (*Sequence, error) {
	prompt, err := s.applyChatTemplate(req)
	if err != nil {
		return nil, err
	}

	state := &SequenceState{}
	if err := s.prepareBitmaps(req, state); err != nil {
		return nil, err
	}

	chunks, err := s.tokenizeChunks(prompt, state)
	if err != nil {
		return nil, err
	}

	before := chunks.numTokens()
	chunks = s.limitPromptTokens(chunks)
	after := chunks.numTokens()

	state.setInferring(true)

	s.seqsMu.Lock()
	s.seqs[req.ID] = state
	s.seqsMu.Unlock()

	slog.Debug("sequence created", "id", req.ID, "chunks", len(chunks),
		"tokens", after, "cropped", before-after)

	return &Sequence{
		id:      req.ID,
		state:   state,
		chunks:  chunks,
		cropped: before - after,
	}, nil
}

// FinishStep verbucht einen Inferenzschritt fuer die Sequenz seqID.
// response wird immer als letzter Antwortstand gespeichert und
// zurueckgegeben. stopInfer beendet die Sequenz: Zustand zuruecksetzen,
// KV-Cache-Speicher raeumen, Registrierung loeschen. Der Statuscode
// ist davon unabhaengig: Fehler schlaegt "Kontext ueberschritten",
// dieses schlaegt Erfolg.
func (s *Server) FinishStep(seqID int32, success bool, response string, stopInfer, tooLong bool) (string, bool, api.StatusCode) {
	state := s.lookupSeq(seqID)
	if state != nil {
		state.storeResponse(response)
	}

	finished := false
	if stopInfer {
		finished = true
		if state != nil {
			state.setInferring(false)
			state.SetPosition(0)
		}

		s.sched.SubmitClearMem(seqID, -1, -1)
		s.eraseSeq(seqID)
	}

	if !success {
		slog.Error("sequence step failed", "id", seqID, "response", response)
		return response, finished, api.StatusError
	}

	if tooLong {
		return response, finished, api.StatusContextExceeded
	}

	return response, finished, api.StatusSuccess
}

func (s *Server) lookupSeq(seqID int32) *SequenceState {
	s.seqsMu.Lock()
	defer s.seqsMu.Unlock()
	return s.seqs[seqID]
}

func (s *Server) eraseSeq(seqID int32) {
	s.seqsMu.Lock()
	defer s.seqsMu.Unlock()
	delete(s.seqs, seqID)
}
