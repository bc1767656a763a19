// MODUL: buffers
// ZWECK: Prozess-lokale Registry fuer vor-dekodierte Bildpuffer
// INPUT: Rohe Bild-Bytes beim Registrieren, Handles beim Aufloesen
// OUTPUT: Opakes uint64-Handle bzw. registrierte Bytes
// NEBENEFFEKTE: haelt registrierte Puffer bis zur Freigabe im Speicher
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Handles wandern als Dezimal-Strings durch den Request-Umschlag;
// unbekannte oder bereits freigegebene Handles schlagen sauber fehl

package vision

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownHandle wird beim Aufloesen eines unbekannten oder bereits
// freigegebenen Handles zurueckgegeben
var ErrUnknownHandle = errors.New("unbekanntes Puffer-Handle")

// BufferTable verwaltet vor-dekodierte Puffer unter opaken Handles.
// Die registrierende Seite dekodiert ein Bild einmal, traegt die Bytes
// hier ein und reicht nur das Handle durch den Request weiter.
type BufferTable struct {
	mu   sync.Mutex
	next uint64
	bufs map[uint64][]byte
}

// NewBufferTable erstellt eine leere Puffer-Registry
func NewBufferTable() *BufferTable {
	return &BufferTable{
		next: 1,
		bufs: make(map[uint64][]byte),
	}
}

// Register traegt einen Puffer ein und gibt sein Handle zurueck
func (t *BufferTable) Register(data []byte) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle := t.next
	t.next++
	t.bufs[handle] = data
	return handle
}

// Resolve gibt die Bytes zu einem Handle zurueck
func (t *BufferTable) Resolve(handle uint64) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, ok := t.bufs[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, handle)
	}
	return data, nil
}

// Release gibt einen Puffer frei und meldet ob er registriert war
func (t *BufferTable) Release(handle uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.bufs[handle]
	delete(t.bufs, handle)
	return ok
}

// Len gibt die Anzahl registrierter Puffer zurueck
func (t *BufferTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bufs)
}
