// Package kvcache - KV-Zellen-Buchfuehrung und Memory-Scheduler
//
// Dieses Modul verwaltet die Belegung der KV-Cache-Zellen pro Sequenz:
// - Track: Belegt eine Zelle fuer eine Token-Position einer Sequenz
// - SubmitClearMem: Reicht eine asynchrone Freigabe-Anfrage ein
// - SeqLen: Anzahl belegter Zellen einer Sequenz
//
// Die Freigabe ist fire-and-forget: der Aufrufer wartet nicht auf den
// Abschluss. Der Sentinel-Bereich (-1, -1) bedeutet "gesamte Sequenz".
package kvcache

import (
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
)

// ErrKvCacheFull wird zurueckgegeben wenn keine freie Zelle verfuegbar ist
var ErrKvCacheFull = errors.New("could not find a kv cache slot")

// cell ist eine einzelne KV-Cache-Zelle; eine Zelle kann von mehreren
// Sequenzen geteilt werden (Prompt-Prefix-Sharing)
type cell struct {
	pos       int32
	sequences []int32
}

// cellRange umschliesst die belegten Zellen einer Sequenz
type cellRange struct {
	min int
	max int
}

func newRange() cellRange {
	return cellRange{
		min: math.MaxInt,
		max: 0,
	}
}

// clearReq ist eine eingereichte Freigabe-Anfrage
type clearReq struct {
	seq        int32
	beginIndex int32
	endIndex   int32
}

// Scheduler verwaltet KV-Zellen und bearbeitet Freigaben asynchron
type Scheduler struct {
	mu         sync.Mutex
	cells      []cell
	cellRanges map[int32]cellRange

	clearCh chan clearReq
	done    chan struct{}
}

// NewScheduler erstellt einen Scheduler mit fester Zellen-Kapazitaet
// und startet den Freigabe-Worker
func NewScheduler(capacity int) *Scheduler {
	s := &Scheduler{
		cells:      make([]cell, capacity),
		cellRanges: make(map[int32]cellRange),
		clearCh:    make(chan clearReq, 64),
		done:       make(chan struct{}),
	}

	go s.run()
	return s
}

// Close beendet den Freigabe-Worker nachdem alle eingereichten
// Anfragen bearbeitet wurden
func (s *Scheduler) Close() {
	close(s.clearCh)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	for req := range s.clearCh {
		s.remove(req.seq, req.beginIndex, req.endIndex)
	}
}

// Track belegt eine freie Zelle fuer die Token-Position einer Sequenz
func (s *Scheduler) Track(seq, pos int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cells {
		if len(s.cells[i].sequences) == 0 {
			s.cells[i].pos = pos
			s.cells[i].sequences = []int32{seq}

			seqRange, ok := s.cellRanges[seq]
			if !ok {
				seqRange = newRange()
			}
			if i < seqRange.min {
				seqRange.min = i
			}
			if i > seqRange.max {
				seqRange.max = i
			}
			s.cellRanges[seq] = seqRange
			return nil
		}
	}

	return ErrKvCacheFull
}

// SubmitClearMem reicht eine Freigabe-Anfrage ein und kehrt sofort
// zurueck. beginIndex/endIndex = -1 gibt die gesamte Sequenz frei.
func (s *Scheduler) SubmitClearMem(seq, beginIndex, endIndex int32) {
	select {
	case s.clearCh <- clearReq{seq: seq, beginIndex: beginIndex, endIndex: endIndex}:
	default:
		// Warteschlange voll: synchron freigeben statt Anfragen zu verlieren
		slog.Warn("kv clear queue full, clearing synchronously", "seq", seq)
		s.remove(seq, beginIndex, endIndex)
	}
}

// remove entfernt die Sequenz aus allen Zellen im Positions-Bereich
func (s *Scheduler) remove(seq, beginIndex, endIndex int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if beginIndex < 0 {
		beginIndex = 0
	}
	if endIndex < 0 {
		endIndex = math.MaxInt32
	}

	seqRange := newRange()
	for i := range s.cells {
		if slices.Contains(s.cells[i].sequences, seq) {
			if s.cells[i].pos >= beginIndex && s.cells[i].pos < endIndex {
				s.cells[i].sequences = slices.DeleteFunc(s.cells[i].sequences, func(x int32) bool { return x == seq })
			} else {
				if i < seqRange.min {
					seqRange.min = i
				}
				if i > seqRange.max {
					seqRange.max = i
				}
			}
		}
	}

	if seqRange == newRange() {
		delete(s.cellRanges, seq)
		return
	}

	s.cellRanges[seq] = seqRange
}

// SeqLen gibt die Anzahl der belegten Zellen einer Sequenz zurueck
func (s *Scheduler) SeqLen(seq int32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for i := range s.cells {
		if slices.Contains(s.cells[i].sequences, seq) {
			n++
		}
	}
	return n
}
