// MODUL: bitmap
// ZWECK: Dekodierung von Bild-Bytes in Bitmap-Handles fuer den Tokenizer
// INPUT: Rohe Bild-Bytes (JPEG/PNG/WebP)
// OUTPUT: Bitmap mit RGBA-Pixeln und Metadaten
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: golang.org/x/image/draw, golang.org/x/image/webp (extern)
// HINWEISE: Ein Bitmap wird genau einmal vom Tokenizer konsumiert

package vision

import (
	"bytes"
	"fmt"
	"image"

	// Standard-Decoder registrieren
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Bitmap ist ein dekodiertes Bild mit Metadaten
type Bitmap struct {
	Image  *image.RGBA
	Width  int
	Height int
	Format ImageFormat
}

// DecodeBitmap dekodiert ein Bild aus Byte-Daten
func DecodeBitmap(data []byte) (*Bitmap, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}

	rgba := toRGBA(img)
	bounds := rgba.Bounds()

	return &Bitmap{
		Image:  rgba,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}

// toRGBA konvertiert ein beliebiges image.Image zu *image.RGBA
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

// GridTokens gibt die Anzahl der Modal-Tokens zurueck, die das Bitmap
// im Prompt belegt: ein Token pro Patch des Vision-Encoders
func (b *Bitmap) GridTokens(patchSize int) int32 {
	if patchSize <= 0 {
		return 1
	}

	cols := (b.Width + patchSize - 1) / patchSize
	rows := (b.Height + patchSize - 1) / patchSize
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return int32(cols * rows)
}
