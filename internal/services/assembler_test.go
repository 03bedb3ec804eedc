package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceBoxFlipsToBottomLeftOrigin(t *testing.T) {
	x, y, w, h := placeBox(600, 800, Stamp{Page: 1, X: 0.1, Y: 0.2, Width: 0.3, Height: 0.05})

	assert.InDelta(t, 60, x, 1e-9)
	assert.InDelta(t, 600, y, 1e-9)
	assert.InDelta(t, 180, w, 1e-9)
	assert.InDelta(t, 40, h, 1e-9)

	// A field flush with the bottom edge sits on the origin.
	_, y, _, _ = placeBox(600, 800, Stamp{Y: 0.9, Height: 0.1})
	assert.InDelta(t, 0, y, 1e-9)
}

func TestFitScaleKeepsAspectRatio(t *testing.T) {
	tests := []struct {
		name           string
		boxW, boxH     float64
		imgW, imgH     float64
		expectedFactor float64
	}{
		{"wide image limited by width", 100, 50, 400, 100, 0.25},
		{"tall image limited by height", 100, 50, 100, 200, 0.25},
		{"small image grows", 200, 100, 50, 25, 4},
		{"degenerate image", 100, 50, 0, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expectedFactor, fitScale(tt.boxW, tt.boxH, tt.imgW, tt.imgH), 1e-9)
		})
	}
}

func TestPDFAssemblerWithoutStampsReturnsBase(t *testing.T) {
	base := []byte("%PDF-1.7 untouched")

	out, err := NewPDFAssembler().Assemble(context.Background(), base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, out)
}

func TestPDFAssemblerRejectsUnreadableDocument(t *testing.T) {
	_, err := NewPDFAssembler().Assemble(context.Background(), []byte("not a pdf"), []Stamp{{Page: 1, Width: 0.1, Height: 0.1, Text: "x"}})
	assert.Error(t, err)
}
