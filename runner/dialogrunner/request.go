// Package dialogrunner - Request-Dekodierung
//
// Dieses Modul wandelt den Anfrage-Umschlag in einen typisierten Request:
// - DecodeRequest: JSON-Bytes → Request
// - RequestFromEnvelope: bereits geparster Umschlag → Request
//
// Ein nicht parsbares Puffer-Handle in modal_prts laesst die gesamte
// Dekodierung fehlschlagen: ein kaputtes Handle darf spaeter nicht
// aufgeloest werden.
package dialogrunner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lokal-ai/lokal/api"
)

// chatCmplIDPrefix ist das erwartete Praefix der Anfrage-ID
const chatCmplIDPrefix = "local-chatcmpl-"

// ModalPart bildet Puffer-Handles auf ihre deklarierte Laenge ab
type ModalPart map[uint64]int32

// Request ist die dekodierte Anfrage. Nach der Dekodierung ist sie
// unveraenderlich, nur das Stop-Flag wird noch ausgewertet.
type Request struct {
	ID         int32
	Priority   int32
	Messages   []api.Message
	Tools      []api.Tool
	ModalParts []ModalPart
	Stop       bool
}

// numModalParts gibt die Gesamtzahl der vor-dekodierten Puffer ueber
// alle ModalParts zurueck
func (r *Request) numModalParts() int {
	var n int
	for _, part := range r.ModalParts {
		n += len(part)
	}
	return n
}

// DecodeRequest parst JSON-Bytes zu einem Request
func DecodeRequest(data []byte) (*Request, error) {
	var env api.DialogEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return RequestFromEnvelope(&env)
}

// RequestFromEnvelope wandelt einen geparsten Umschlag in einen Request.
// Eine ID ohne bekanntes Praefix oder mit nicht-numerischem Suffix
// ergibt die Default-ID 0.
func RequestFromEnvelope(env *api.DialogEnvelope) (*Request, error) {
	r := &Request{
		Priority: env.Priority,
		Messages: env.Messages,
		Tools:    env.Tools,
		Stop:     env.Stop,
	}

	if suffix, ok := strings.CutPrefix(env.ID, chatCmplIDPrefix); ok {
		if id, err := strconv.ParseInt(suffix, 10, 32); err == nil {
			r.ID = int32(id)
		}
	}

	for _, part := range env.ModalParts {
		mp := make(ModalPart, len(part))
		for key, length := range part {
			handle, err := strconv.ParseUint(key, 10, 64)
			if err != nil {
				slog.Error("invalid buffer handle in modal_prts", "handle", key)
				return nil, fmt.Errorf("invalid buffer handle in modal_prts: %q", key)
			}
			mp[handle] = length
		}
		r.ModalParts = append(r.ModalParts, mp)
	}

	return r, nil
}
