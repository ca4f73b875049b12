package imagecard

import (
	"bytes"
	"image/png"
	"testing"
)

func TestRender_Dimensions(t *testing.T) {
	data, err := New().Render("argan oil exports", "business")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding card: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 1200 || b.Dy() != 630 {
		t.Errorf("dimensions = %dx%d, want 1200x630", b.Dx(), b.Dy())
	}
}

func TestRender_Deterministic(t *testing.T) {
	g := New()
	a, err := g.Render("solar power in Ouarzazate", "technology")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	b, err := g.Render("solar power in Ouarzazate", "technology")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same topic and theme rendered different bytes")
	}
}

func TestRender_TopicKeywordsPickScheme(t *testing.T) {
	g := New()
	fromKeywords, err := g.Render("football season kicks off", "interpretive dance")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	explicit, err := g.Render("anything", "sports")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.Equal(fromKeywords, explicit) {
		t.Error("topic keywords should route an unknown theme to the sports scheme")
	}
}

func TestRender_UnmatchedTopicFallsBack(t *testing.T) {
	g := New()
	unknown, err := g.Render("zzz", "interpretive dance")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	def, err := g.Render("zzz", "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.Equal(unknown, def) {
		t.Error("unmatched topic and theme did not fall back to the default scheme")
	}
}

func TestRender_ThemesDiffer(t *testing.T) {
	g := New()
	business, _ := g.Render("zzz", "business")
	sports, _ := g.Render("zzz", "sports")
	if bytes.Equal(business, sports) {
		t.Error("distinct themes rendered identical cards")
	}
}
