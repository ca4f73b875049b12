// Package imagecard renders share-card images for published posts.
package imagecard

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
)

// LinkedIn's recommended share image dimensions.
const (
	cardWidth  = 1200
	cardHeight = 630

	accentBand = 24
)

type scheme struct {
	top    color.NRGBA
	bottom color.NRGBA
	accent color.NRGBA
}

// Theme palettes. The default scheme uses the national flag colors.
var schemes = map[string]scheme{
	"default": {
		top:    color.NRGBA{R: 0xC1, G: 0x27, B: 0x2D, A: 0xFF},
		bottom: color.NRGBA{R: 0x5E, G: 0x12, B: 0x14, A: 0xFF},
		accent: color.NRGBA{R: 0x00, G: 0x62, B: 0x33, A: 0xFF},
	},
	"business": {
		top:    color.NRGBA{R: 0x0F, G: 0x2B, B: 0x46, A: 0xFF},
		bottom: color.NRGBA{R: 0x08, G: 0x16, B: 0x24, A: 0xFF},
		accent: color.NRGBA{R: 0xD4, G: 0xA0, B: 0x17, A: 0xFF},
	},
	"technology": {
		top:    color.NRGBA{R: 0x1A, G: 0x1B, B: 0x41, A: 0xFF},
		bottom: color.NRGBA{R: 0x0D, G: 0x0E, B: 0x21, A: 0xFF},
		accent: color.NRGBA{R: 0x00, G: 0xB4, B: 0xD8, A: 0xFF},
	},
	"sports": {
		top:    color.NRGBA{R: 0x14, G: 0x53, B: 0x2D, A: 0xFF},
		bottom: color.NRGBA{R: 0x05, G: 0x2E, B: 0x16, A: 0xFF},
		accent: color.NRGBA{R: 0xF8, G: 0xFA, B: 0xFC, A: 0xFF},
	},
	"culture": {
		top:    color.NRGBA{R: 0x7C, G: 0x2D, B: 0x12, A: 0xFF},
		bottom: color.NRGBA{R: 0x43, G: 0x14, B: 0x07, A: 0xFF},
		accent: color.NRGBA{R: 0xF5, G: 0x9E, B: 0x0B, A: 0xFF},
	},
}

// topicKeywords routes a topic to a scheme when the provider did not name a
// usable theme. Checked in fixed order so rendering stays deterministic for
// topics that match more than one group.
var topicKeywords = []struct {
	theme string
	words []string
}{
	{"technology", []string{"tech", "ai", "digital", "software", "cyber", "data", "startup", "innovation"}},
	{"business", []string{"business", "economy", "economic", "market", "invest", "trade", "finance", "export"}},
	{"sports", []string{"sport", "football", "soccer", "atlas lions", "league", "cup", "olympic", "match"}},
	{"culture", []string{"culture", "festival", "music", "art", "film", "heritage", "cuisine", "tourism"}},
}

func pickScheme(topic, theme string) scheme {
	if s, ok := schemes[strings.ToLower(strings.TrimSpace(theme))]; ok {
		return s
	}
	lower := strings.ToLower(topic)
	for _, group := range topicKeywords {
		for _, w := range group.words {
			if strings.Contains(lower, w) {
				return schemes[group.theme]
			}
		}
	}
	return schemes["default"]
}

// Generator renders card PNGs. Rendering is deterministic: the same topic
// and theme always produce the same bytes.
type Generator struct{}

func New() *Generator {
	return &Generator{}
}

// Render produces a 1200x630 PNG: a vertical gradient with an accent band
// along the bottom edge. The color scheme comes from the theme name when it
// is known, then from topic keywords, then the default palette.
func (g *Generator) Render(topic, theme string) ([]byte, error) {
	s := pickScheme(topic, theme)

	img := image.NewNRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	gradientHeight := cardHeight - accentBand

	for y := 0; y < gradientHeight; y++ {
		c := lerp(s.top, s.bottom, y, gradientHeight-1)
		for x := 0; x < cardWidth; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	for y := gradientHeight; y < cardHeight; y++ {
		for x := 0; x < cardWidth; x++ {
			img.SetNRGBA(x, y, s.accent)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding card: %w", err)
	}
	return buf.Bytes(), nil
}

func lerp(a, b color.NRGBA, step, steps int) color.NRGBA {
	if steps <= 0 {
		return a
	}
	mix := func(x, y uint8) uint8 {
		return uint8(int(x) + (int(y)-int(x))*step/steps)
	}
	return color.NRGBA{
		R: mix(a.R, b.R),
		G: mix(a.G, b.G),
		B: mix(a.B, b.B),
		A: 0xFF,
	}
}
