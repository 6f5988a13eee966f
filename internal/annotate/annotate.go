package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/anime-shed/vision-guard-go/pkg/models"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// JPEGQuality is the quality used for annotated output
const JPEGQuality = 90

var palette = []color.NRGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
}

// ColorFor returns the box colour for a class id
func ColorFor(labelID int) color.NRGBA {
	if labelID < 0 {
		labelID = -labelID
	}
	return palette[labelID%len(palette)]
}

// Draw returns a copy of img with every detection outlined and labelled.
// The source image is not modified.
func Draw(img image.Image, detections []models.Detection) *image.NRGBA {
	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()

	thickness := max(2, min(bounds.Dx(), bounds.Dy())/300)
	for _, d := range detections {
		c := ColorFor(d.LabelID)
		rect := image.Rect(int(d.BBox.X1), int(d.BBox.Y1), int(d.BBox.X2), int(d.BBox.Y2)).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		drawOutline(canvas, rect, c, thickness)
		drawLabel(canvas, rect.Min, fmt.Sprintf("%s %.2f", d.Label, d.Confidence), c)
	}
	return canvas
}

// EncodeJPEG draws the detections and encodes the result as JPEG
func EncodeJPEG(img image.Image, detections []models.Detection) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Draw(img, detections), imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}

func drawOutline(dst draw.Image, r image.Rectangle, c color.Color, thickness int) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text on a filled tag above the box, or inside it when the box touches the top edge
func drawLabel(dst draw.Image, at image.Point, text string, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := at.Y - height
	if top < dst.Bounds().Min.Y {
		top = at.Y
	}
	tag := image.Rect(at.X, top, at.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, tag, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(at.X+2, top+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}
