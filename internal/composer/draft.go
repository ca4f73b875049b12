package composer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ibrakm/morocco-trend-automator/internal/provider"
)

const (
	// LinkedIn truncates post bodies around 3000 characters.
	defaultMaxPostChars = 3000

	maxHashtags = 5
)

// Draft is publish-ready post content assembled from a research result.
// Hashtags are normalized: no leading '#', no blanks, no duplicates.
type Draft struct {
	Hook         string
	Body         string
	CallToAction string
	Hashtags     []string
	ImageTheme   string
}

// Composer turns research results into drafts within a character budget.
// Composition is deterministic and never calls the network.
type Composer struct {
	MaxPostChars int
}

// New creates a Composer with the given character budget for the rendered
// post. If maxPostChars <= 0, the default (3000) is used.
func New(maxPostChars int) *Composer {
	if maxPostChars <= 0 {
		maxPostChars = defaultMaxPostChars
	}
	return &Composer{MaxPostChars: maxPostChars}
}

// Compose builds a Draft from a research result. The hook and post text are
// required; a result without them cannot become a post. When the rendered
// post exceeds the budget the body is trimmed at a word boundary, never the
// hook, call to action, or hashtags.
func (c *Composer) Compose(res *provider.ResearchResult) (Draft, error) {
	if res == nil {
		return Draft{}, fmt.Errorf("composing draft: no research result")
	}

	d := Draft{
		Hook:         strings.TrimSpace(res.Hook),
		Body:         strings.TrimSpace(res.PostText),
		CallToAction: strings.TrimSpace(res.CallToAction),
		Hashtags:     normalizeHashtags(res.Hashtags),
		ImageTheme:   strings.ToLower(strings.TrimSpace(res.ImageTheme)),
	}

	if d.Hook == "" {
		return Draft{}, fmt.Errorf("composing draft for %q: result has no hook", res.Topic)
	}
	if d.Body == "" {
		return Draft{}, fmt.Errorf("composing draft for %q: result has no post text", res.Topic)
	}

	rendered := FormatPost(d)
	if over := utf8.RuneCountInString(rendered) - c.MaxPostChars; over > 0 {
		room := utf8.RuneCountInString(d.Body) - over
		d.Body = truncateAtWord(d.Body, room)
	}

	return d, nil
}

// FormatPost renders a draft as the final post text: hook, body, and call to
// action as paragraphs, hashtags on the last line. Empty sections are skipped.
func FormatPost(d Draft) string {
	var sections []string
	for _, s := range []string{d.Hook, d.Body, d.CallToAction} {
		if s != "" {
			sections = append(sections, s)
		}
	}
	if len(d.Hashtags) > 0 {
		tags := make([]string, len(d.Hashtags))
		for i, t := range d.Hashtags {
			tags[i] = "#" + t
		}
		sections = append(sections, strings.Join(tags, " "))
	}
	return strings.Join(sections, "\n\n")
}

// normalizeHashtags strips leading '#' runes and whitespace, drops blanks,
// dedupes case-insensitively preserving first occurrence, and caps the count.
func normalizeHashtags(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range in {
		tag := strings.TrimLeft(strings.TrimSpace(raw), "#")
		tag = strings.Join(strings.Fields(tag), "")
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
		if len(out) == maxHashtags {
			break
		}
	}
	return out
}

// truncateAtWord cuts s to at most max runes, preferring the last word
// boundary and marking the cut with an ellipsis.
func truncateAtWord(s string, max int) string {
	if max <= 1 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max-1])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "…"
}
