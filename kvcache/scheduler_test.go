// Package kvcache - Tests fuer Zellen-Buchfuehrung und Freigabe
package kvcache

import (
	"errors"
	"testing"
)

func TestTrackAndSeqLen(t *testing.T) {
	s := NewScheduler(8)
	defer s.Close()

	for pos := int32(0); pos < 5; pos++ {
		if err := s.Track(1, pos); err != nil {
			t.Fatalf("Track(1, %d) error = %v", pos, err)
		}
	}

	if got := s.SeqLen(1); got != 5 {
		t.Errorf("SeqLen(1) = %d, erwartet 5", got)
	}
}

func TestTrackFull(t *testing.T) {
	s := NewScheduler(2)
	defer s.Close()

	_ = s.Track(1, 0)
	_ = s.Track(1, 1)

	if err := s.Track(1, 2); !errors.Is(err, ErrKvCacheFull) {
		t.Errorf("Track bei vollem Cache error = %v, erwartet ErrKvCacheFull", err)
	}
}

func TestSubmitClearMemWholeSequence(t *testing.T) {
	s := NewScheduler(8)

	for pos := int32(0); pos < 4; pos++ {
		_ = s.Track(7, pos)
	}
	_ = s.Track(8, 0)

	// Sentinel-Bereich: gesamte Sequenz freigeben
	s.SubmitClearMem(7, -1, -1)
	s.Close()

	if got := s.SeqLen(7); got != 0 {
		t.Errorf("SeqLen(7) nach Freigabe = %d, erwartet 0", got)
	}

	// andere Sequenzen bleiben unberuehrt
	if got := s.SeqLen(8); got != 1 {
		t.Errorf("SeqLen(8) = %d, erwartet 1", got)
	}
}

func TestSubmitClearMemRange(t *testing.T) {
	s := NewScheduler(8)

	for pos := int32(0); pos < 6; pos++ {
		_ = s.Track(3, pos)
	}

	// Positionen [2, 4) freigeben
	s.SubmitClearMem(3, 2, 4)
	s.Close()

	if got := s.SeqLen(3); got != 4 {
		t.Errorf("SeqLen(3) nach Teilfreigabe = %d, erwartet 4", got)
	}
}

func TestClearedCellsAreReusable(t *testing.T) {
	s := NewScheduler(2)

	_ = s.Track(1, 0)
	_ = s.Track(1, 1)

	s.SubmitClearMem(1, -1, -1)
	s.Close()

	if err := s.Track(2, 0); err != nil {
		t.Errorf("Track nach Freigabe error = %v", err)
	}
}
