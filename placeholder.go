package mediagrid

import (
	"image"
	"sync"

	"github.com/gogpu/gg"
)

// Placeholder is the still image shown in a tile that has no live video.
// It is either ready up front or pending on a channel that delivers the
// image once it has been loaded. The zero value uses DefaultPlaceholder.
type Placeholder struct {
	ready   image.Image
	pending <-chan image.Image
}

// ReadyPlaceholder returns a placeholder that is already resolved.
func ReadyPlaceholder(img image.Image) Placeholder {
	return Placeholder{ready: img}
}

// PendingPlaceholder returns a placeholder resolved by the first image
// received on ch. A closed channel or a nil image leaves the default in place.
func PendingPlaceholder(ch <-chan image.Image) Placeholder {
	return Placeholder{pending: ch}
}

// IsPending reports whether the placeholder still waits on a channel.
func (p Placeholder) IsPending() bool {
	return p.pending != nil
}

var (
	defaultPlaceholderOnce sync.Once
	defaultPlaceholder     image.Image
)

// DefaultPlaceholder returns the built-in 100x100 placeholder: a set of
// nested, slightly off-center discs.
func DefaultPlaceholder() image.Image {
	defaultPlaceholderOnce.Do(func() {
		dc := gg.NewContext(100, 100)
		defer dc.Close()

		discs := []struct {
			r, cx, cy float64
			hex       string
		}{
			{50, 50, 50, "#ff6347"}, // tomato
			{41, 47, 50, "#ffa500"}, // orange
			{33, 48, 53, "#ffd700"}, // gold
			{25, 49, 51, "#9acd32"}, // yellowgreen
			{17, 52, 50, "#20b2aa"}, // lightseagreen
			{9, 55, 48, "#008080"},  // teal
		}
		for _, d := range discs {
			dc.SetColor(MustParseHexColor(d.hex))
			dc.DrawCircle(d.cx, d.cy, d.r)
			_ = dc.Fill()
		}
		defaultPlaceholder = dc.Image()
	})
	return defaultPlaceholder
}
