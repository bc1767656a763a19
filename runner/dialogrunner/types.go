// Package dialogrunner - Dialog-Context-Verwaltung des Inferenz-Engines
//
// Dieses Modul definiert die Kerntypen des Runners:
// - chunk/chunkSequence: Tokenisierter Prompt als Text- und Modal-Chunks
// - SequenceState: Zustand einer laufenden Inferenz-Sequenz
// - Sequence: Eine vorbereitete Anfrage mit ihrer Chunk-Sequenz
// - Server: Der Dialog-Runner mit Registry und Abhaengigkeiten
package dialogrunner

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lokal-ai/lokal/template"
	"github.com/lokal-ai/lokal/vision"
)

// TextProcessor tokenisiert Text zu Token-IDs. Special-Tokens im Text
// werden als Kontroll-Tokens behandelt.
type TextProcessor interface {
	Encode(s string, addSpecial bool) ([]int32, error)
}

// MultimodalProcessor bestimmt die Token-Anzahl eines Bitmaps im Prompt
type MultimodalProcessor interface {
	BitmapTokens(bm *vision.Bitmap) int32
}

// MemoryScheduler nimmt Freigabe-Anfragen fuer den KV-Cache entgegen.
// SubmitClearMem ist fire-and-forget; der Sentinel-Bereich (-1, -1)
// bedeutet "gesamte Sequenz".
type MemoryScheduler interface {
	SubmitClearMem(seq, beginIndex, endIndex int32)
}

type chunkType int

const (
	chunkText chunkType = iota
	chunkModal
)

// chunk ist ein Element der Prompt-Sequenz - entweder ein Lauf von
// Text-Tokens oder die Token-Repraesentation eines Bildes
type chunk struct {
	kind chunkType

	// tokens enthaelt die Token-IDs eines Text-Chunks
	tokens []int32

	// modalTokens ist die Token-Anzahl eines Modal-Chunks; die
	// einzelnen Tokens sind nicht einsehbar
	modalTokens int32

	// bitmap ist das Bild eines Modal-Chunks
	bitmap *vision.Bitmap
}

// numTokens gibt die Token-Anzahl des Chunks zurueck
func (c *chunk) numTokens() int32 {
	if c.kind == chunkText {
		return int32(len(c.tokens))
	}
	return c.modalTokens
}

// chunkSequence ist die geordnete Chunk-Liste einer Anfrage. Sie gehoert
// exklusiv der laufenden Anfrage und wird beim Cropping als Ganzes
// ersetzt, nie elementweise veraendert.
type chunkSequence []*chunk

func (cs chunkSequence) numTokens() int32 {
	var n int32
	for _, c := range cs {
		n += c.numTokens()
	}
	return n
}

// SequenceState ist der Zustand einer laufenden Inferenz-Sequenz.
// Position und Inferring werden von einem anderen Ausfuehrungskontext
// gelesen als dem, der den Inferenz-Schritt ausfuehrt; alle Zugriffe
// laufen deshalb ueber den Mutex.
type SequenceState struct {
	mu        sync.Mutex
	response  string
	bitmaps   []*vision.Bitmap
	nPast     int32
	inferring bool
}

// Response gibt den akkumulierten Antwort-Text zurueck
func (st *SequenceState) Response() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.response
}

func (st *SequenceState) storeResponse(s string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.response = s
}

// Position gibt den Token-Positions-Zaehler zurueck
func (st *SequenceState) Position() int32 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.nPast
}

// SetPosition setzt den Token-Positions-Zaehler
func (st *SequenceState) SetPosition(n int32) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nPast = n
}

// Advance erhoeht den Token-Positions-Zaehler
func (st *SequenceState) Advance(n int32) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nPast += n
}

// Inferring meldet ob die Sequenz gerade einen Schritt ausfuehrt
func (st *SequenceState) Inferring() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.inferring
}

func (st *SequenceState) setInferring(b bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.inferring = b
}

func (st *SequenceState) setBitmaps(bitmaps []*vision.Bitmap) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.bitmaps = bitmaps
}

// takeBitmaps entnimmt die Bitmap-Liste und leert sie. Der Besitz geht
// an den Aufrufer ueber; die Liste darf danach nicht wiederverwendet
// werden.
func (st *SequenceState) takeBitmaps() []*vision.Bitmap {
	st.mu.Lock()
	defer st.mu.Unlock()
	bitmaps := st.bitmaps
	st.bitmaps = nil
	return bitmaps
}

// Sequence ist eine vorbereitete Anfrage: die Chunk-Sequenz innerhalb
// des Token-Budgets plus der registrierte Sequenz-Zustand
type Sequence struct {
	id      int32
	state   *SequenceState
	chunks  chunkSequence
	cropped int32
}

func (q *Sequence) ID() int32 {
	return q.id
}

func (q *Sequence) State() *SequenceState {
	return q.state
}

// NumTokens gibt die Token-Anzahl der vorbereiteten Chunk-Sequenz zurueck
func (q *Sequence) NumTokens() int32 {
	return q.chunks.numTokens()
}

// NumChunks gibt die Anzahl der Chunks zurueck
func (q *Sequence) NumChunks() int {
	return len(q.chunks)
}

// CroppedTokens gibt die Anzahl der beim Cropping entfernten Tokens zurueck
func (q *Sequence) CroppedTokens() int32 {
	return q.cropped
}

// Server ist der Dialog-Runner. Er haelt die injizierten Abhaengigkeiten
// und die Registry der laufenden Sequenzen.
type Server struct {
	// tmpl formatiert Nachrichten zum Modell-Prompt
	tmpl *template.Template

	// text ist der externe Tokenizer
	text TextProcessor

	// multimodal bestimmt Token-Anzahlen fuer Bitmaps
	multimodal MultimodalProcessor

	// buffers loest Puffer-Handles aus modal_prts auf
	buffers *vision.BufferTable

	// sched nimmt KV-Freigaben entgegen
	sched MemoryScheduler

	// numCtx ist die nutzbare Kontextgroesse in Tokens
	numCtx int32

	// cropLabel ist die Token-Folge die den Beginn eines
	// Konversations-Turns markiert
	cropLabel []int32

	// seqsMu schuetzt seqs
	seqsMu sync.Mutex

	// seqs enthaelt die Zustaende der laufenden Sequenzen
	seqs map[int32]*SequenceState

	// seqsSem begrenzt parallele Sequenzen
	seqsSem *semaphore.Weighted
}

// Options enthaelt die Abhaengigkeiten und Parameter des Runners
type Options struct {
	Text         TextProcessor
	Multimodal   MultimodalProcessor
	Buffers      *vision.BufferTable
	Scheduler    MemoryScheduler
	Template     *template.Template
	NumCtx       int32
	CropLabel    string
	MaxSequences int64
}

// defaultPatchSize ist die Patch-Kantenlaenge des Vision-Encoders
const defaultPatchSize = 16

// patchGrid ist der Default-MultimodalProcessor: ein Token pro Patch
type patchGrid struct {
	size int
}

func (p patchGrid) BitmapTokens(bm *vision.Bitmap) int32 {
	return bm.GridTokens(p.size)
}

// NewServer erstellt einen Dialog-Runner mit den angegebenen Optionen
func NewServer(opts Options) (*Server, error) {
	if opts.Text == nil {
		return nil, errors.New("text processor is required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("memory scheduler is required")
	}
	if opts.Template == nil {
		return nil, errors.New("template is required")
	}
	if opts.NumCtx <= 0 {
		return nil, errors.New("context size must be positive")
	}

	var cropLabel []int32
	if opts.CropLabel != "" {
		var err error
		cropLabel, err = opts.Text.Encode(opts.CropLabel, false)
		if err != nil {
			return nil, err
		}
	}

	if opts.Multimodal == nil {
		opts.Multimodal = patchGrid{size: defaultPatchSize}
	}
	if opts.Buffers == nil {
		opts.Buffers = vision.NewBufferTable()
	}
	if opts.MaxSequences <= 0 {
		opts.MaxSequences = 1
	}

	return &Server{
		tmpl:       opts.Template,
		text:       opts.Text,
		multimodal: opts.Multimodal,
		buffers:    opts.Buffers,
		sched:      opts.Scheduler,
		numCtx:     opts.NumCtx,
		cropLabel:  cropLabel,
		seqs:       make(map[int32]*SequenceState),
		seqsSem:    semaphore.NewWeighted(opts.MaxSequences),
	}, nil
}

// Buffers gibt die Puffer-Registry des Runners zurueck
func (s *Server) Buffers() *vision.BufferTable {
	return s.buffers
}

// Acquire reserviert einen Platz fuer eine Sequenz
func (s *Server) Acquire(ctx context.Context) error {
	return s.seqsSem.Acquire(ctx, 1)
}

// Release gibt einen Sequenz-Platz zurueck
func (s *Server) Release() {
	s.seqsSem.Release(1)
}
