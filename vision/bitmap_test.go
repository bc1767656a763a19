// MODUL: bitmap_test
// ZWECK: Tests fuer Bitmap-Dekodierung und Patch-Token-Berechnung
// INPUT: Synthetische PNG-Bytes
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, image, image/png, bytes

package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// createPNGBytes erzeugt PNG-Bytes aus einem Testbild
func createPNGBytes(w, h int, c color.Color) []byte {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rgba.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, rgba)
	return buf.Bytes()
}

func TestDecodeBitmap(t *testing.T) {
	pngData := createPNGBytes(100, 50, color.RGBA{255, 0, 0, 255})

	bm, err := DecodeBitmap(pngData)
	if err != nil {
		t.Fatalf("DecodeBitmap() error = %v", err)
	}

	if bm.Width != 100 || bm.Height != 50 {
		t.Errorf("Groesse = %dx%d, erwartet 100x50", bm.Width, bm.Height)
	}

	if bm.Format != FormatPNG {
		t.Errorf("Format = %v, erwartet %v", bm.Format, FormatPNG)
	}
}

func TestDecodeBitmapInvalid(t *testing.T) {
	invalidData := []byte{0x00, 0x00, 0x00, 0x00}

	_, err := DecodeBitmap(invalidData)
	if err == nil {
		t.Error("Erwartet Fehler bei ungueltigem Format")
	}
}

func TestGridTokens(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		patchSize int
		expected  int32
	}{
		{"Exakt", 32, 32, 16, 4},
		{"Aufgerundet", 33, 33, 16, 9},
		{"Kleiner als Patch", 8, 8, 16, 1},
		{"Ungueltiger Patch", 32, 32, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bm := &Bitmap{Width: tt.w, Height: tt.h}
			if got := bm.GridTokens(tt.patchSize); got != tt.expected {
				t.Errorf("GridTokens(%d) = %d, erwartet %d", tt.patchSize, got, tt.expected)
			}
		})
	}
}
