// internal/services/assembler.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Stamp is one filled-in field. Coordinates are page fractions from the top-left corner.
type Stamp struct {
	Page   int
	X      float64
	Y      float64
	Width  float64
	Height float64
	Image  []byte
	Text   string
}

// Assembler renders signed fields onto the base document.
type Assembler interface {
	Assemble(ctx context.Context, base []byte, stamps []Stamp) ([]byte, error)
}

type PDFAssembler struct {
	conf *model.Configuration
}

func NewPDFAssembler() *PDFAssembler {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFAssembler{conf: conf}
}

func (a *PDFAssembler) Assemble(ctx context.Context, base []byte, stamps []Stamp) ([]byte, error) {
	if len(stamps) == 0 {
		return base, nil
	}

	dims, err := api.PageDims(bytes.NewReader(base), a.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}

	watermarks := map[int][]*model.Watermark{}
	for _, s := range stamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.Page < 1 || s.Page > len(dims) {
			return nil, fmt.Errorf("field on page %d but document has %d pages", s.Page, len(dims))
		}
		wm, err := a.watermark(dims[s.Page-1], s)
		if err != nil {
			return nil, err
		}
		watermarks[s.Page] = append(watermarks[s.Page], wm)
	}

	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(base), &out, watermarks, a.conf); err != nil {
		return nil, fmt.Errorf("failed to stamp document: %w", err)
	}
	return out.Bytes(), nil
}

func (a *PDFAssembler) watermark(dim types.Dim, s Stamp) (*model.Watermark, error) {
	x, y, w, h := placeBox(dim.Width, dim.Height, s)

	if len(s.Image) > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(s.Image))
		if err != nil {
			return nil, fmt.Errorf("unsupported signature image: %w", err)
		}
		scale := fitScale(w, h, float64(cfg.Width), float64(cfg.Height))
		desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:%.4f abs, rot:0", x, y, scale)
		return api.ImageWatermarkForReader(bytes.NewReader(s.Image), desc, true, false, types.POINTS)
	}

	points := int(math.Max(6, math.Min(14, h*0.7)))
	desc := fmt.Sprintf("font:Helvetica, points:%d, pos:bl, off:%.2f %.2f, scale:1 abs, rot:0, fillc:#000000", points, x, y)
	return api.TextWatermark(s.Text, desc, true, false, types.POINTS)
}

// placeBox converts a top-left relative box into PDF user space, whose origin is bottom-left.
func placeBox(pageWidth, pageHeight float64, s Stamp) (x, y, w, h float64) {
	w = s.Width * pageWidth
	h = s.Height * pageHeight
	x = s.X * pageWidth
	y = (1 - s.Y - s.Height) * pageHeight
	return x, y, w, h
}

// fitScale shrinks or grows an image to fit inside the box while keeping its aspect ratio.
func fitScale(boxWidth, boxHeight, imgWidth, imgHeight float64) float64 {
	if imgWidth <= 0 || imgHeight <= 0 {
		return 1
	}
	return math.Min(boxWidth/imgWidth, boxHeight/imgHeight)
}
