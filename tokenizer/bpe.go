// Package tokenizer - BPE-Textverarbeitung
//
// Dieses Modul enthaelt:
// - BPE: tiktoken-basierter Text-Prozessor fuer den Dialog-Runner
// - Encode/Decode: Text ↔ Token-IDs mit Special-Token-Behandlung
//
// Die Kodierung wird lazy beim ersten Zugriff initialisiert, da das
// BPE-Vokabular beim ersten Mal geladen werden muss.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// BPE kapselt eine tiktoken-Kodierung
type BPE struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// New erstellt einen BPE-Prozessor fuer die angegebene Kodierung
// (z.B. "cl100k_base" oder "o200k_base")
func New(encoding string) *BPE {
	return &BPE{encoding: encoding}
}

// init initialisiert die Kodierung beim ersten Zugriff
func (b *BPE) init() error {
	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding(b.encoding)
		if err != nil {
			b.initErr = fmt.Errorf("init tiktoken encoding %s: %w", b.encoding, err)
			return
		}
		b.enc = enc
	})
	return b.initErr
}

// Encode tokenisiert Text zu Token-IDs. Special-Tokens im Text werden
// als Kontroll-Tokens kodiert statt als Literale zerlegt. addSpecial ist
// fuer Kodierungen ohne BOS-Token wirkungslos und existiert fuer die
// TextProcessor-Schnittstelle des Runners.
func (b *BPE) Encode(s string, addSpecial bool) ([]int32, error) {
	if err := b.init(); err != nil {
		return nil, err
	}

	ids := b.enc.Encode(s, []string{"all"}, nil)
	tokens := make([]int32, len(ids))
	for i, id := range ids {
		tokens[i] = int32(id)
	}
	return tokens, nil
}

// Decode wandelt Token-IDs zurueck in Text
func (b *BPE) Decode(tokens []int32) (string, error) {
	if err := b.init(); err != nil {
		return "", err
	}

	ids := make([]int, len(tokens))
	for i, t := range tokens {
		ids[i] = int(t)
	}
	return b.enc.Decode(ids), nil
}

// Name gibt den Kodierungsnamen zurueck
func (b *BPE) Name() string {
	return fmt.Sprintf("tiktoken[%s]", b.encoding)
}
