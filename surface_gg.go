package mediagrid

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"
)

// GGSurface is a DrawSurface backed by a gogpu/gg software context.
type GGSurface struct {
	dc     *gg.Context
	face   text.Face
	width  int
	height int
}

var _ DrawSurface = (*GGSurface)(nil)

// NewGGSurface creates a width x height canvas. Titles are drawn with the
// font at fontFile, or the Go Regular font when fontFile is empty.
func NewGGSurface(width, height int, fontSize float64, fontFile string) (*GGSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: canvas size %dx%d", ErrConfiguration, width, height)
	}
	if fontSize <= 0 {
		fontSize = 10
	}

	var (
		source *text.FontSource
		err    error
	)
	if fontFile != "" {
		source, err = text.NewFontSourceFromFile(fontFile)
	} else {
		source, err = text.NewFontSource(goregular.TTF)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: title font: %v", ErrConfiguration, err)
	}

	dc := gg.NewContext(width, height)
	face := source.Face(fontSize)
	dc.SetFont(face)

	return &GGSurface{
		dc:     dc,
		face:   face,
		width:  width,
		height: height,
	}, nil
}

func (s *GGSurface) Width() int  { return s.width }
func (s *GGSurface) Height() int { return s.height }

func (s *GGSurface) FillRect(r Rect, c color.Color) {
	s.dc.SetColor(c)
	s.dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	_ = s.dc.Fill()
}

func (s *GGSurface) StrokeRect(r Rect, c color.Color, lineWidth float64) {
	if lineWidth <= 0 {
		lineWidth = 1
	}
	s.dc.SetColor(c)
	s.dc.SetLineWidth(lineWidth)
	s.dc.DrawRectangle(r.X, r.Y, r.Width, r.Height)
	_ = s.dc.Stroke()
}

func (s *GGSurface) DrawImage(img image.Image, src image.Rectangle, dst Rect) {
	if src.Empty() || dst.Width <= 0 || dst.Height <= 0 {
		return
	}
	s.dc.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
		X:             dst.X,
		Y:             dst.Y,
		DstWidth:      dst.Width,
		DstHeight:     dst.Height,
		SrcRect:       &src,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})
}

// DrawImageCircle pre-scales the source region and masks it to a disc
// before compositing, because gg image blits bypass the clip stack.
func (s *GGSurface) DrawImageCircle(img image.Image, src image.Rectangle, dst Rect) {
	w, h := int(math.Round(dst.Width)), int(math.Round(dst.Height))
	if src.Empty() || w <= 0 || h <= 0 {
		return
	}
	bounds := image.Rect(0, 0, w, h)

	scaled := image.NewRGBA(bounds)
	xdraw.BiLinear.Scale(scaled, bounds, img, src, xdraw.Src, nil)

	masked := image.NewRGBA(bounds)
	mask := &discMask{cx: float64(w) / 2, cy: float64(h) / 2, r: math.Min(float64(w), float64(h)) / 2}
	xdraw.DrawMask(masked, bounds, scaled, image.Point{}, mask, image.Point{}, xdraw.Over)

	s.dc.DrawImageEx(gg.ImageBufFromImage(masked), gg.DrawImageOptions{
		X:         math.Round(dst.X),
		Y:         math.Round(dst.Y),
		Opacity:   1,
		BlendMode: gg.BlendNormal,
	})
}

func (s *GGSurface) FillText(str string, x, y, maxWidth float64, c color.Color) {
	if s.face == nil || str == "" || maxWidth <= 0 {
		return
	}
	str = truncateText(s.face, str, maxWidth)
	if str == "" {
		return
	}
	s.dc.SetColor(c)
	s.dc.SetFont(s.face)
	s.dc.DrawString(str, x, y-s.face.Metrics().Descent)
}

func (s *GGSurface) Snapshot() *image.RGBA {
	img := s.dc.Image()
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(out, image.Point{}, img, b, xdraw.Src, nil)
	return out
}

// Close releases the drawing context.
func (s *GGSurface) Close() error {
	return s.dc.Close()
}

// truncateText drops trailing runes until str fits maxWidth.
func truncateText(face text.Face, str string, maxWidth float64) string {
	if face.Advance(str) <= maxWidth {
		return str
	}
	runes := []rune(str)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if face.Advance(string(runes)) <= maxWidth {
			break
		}
	}
	return string(runes)
}

// discMask is an alpha mask that is opaque inside a circle.
type discMask struct {
	cx, cy, r float64
}

func (m *discMask) ColorModel() color.Model { return color.AlphaModel }

func (m *discMask) Bounds() image.Rectangle {
	return image.Rect(int(m.cx-m.r), int(m.cy-m.r), int(math.Ceil(m.cx+m.r)), int(math.Ceil(m.cy+m.r)))
}

func (m *discMask) At(x, y int) color.Color {
	dx := float64(x) + 0.5 - m.cx
	dy := float64(y) + 0.5 - m.cy
	if dx*dx+dy*dy <= m.r*m.r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}
