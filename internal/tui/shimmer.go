package tui

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Shimmer sweeps a highlight across a line of text. The status view runs
// it over the header while a drain is in progress.
type Shimmer struct {
	center    float64
	width     float64 // highlight width as a fraction of the text
	step      float64 // glyphs per frame
	trueColor bool
}

// NewShimmer returns a shimmer with the default sweep speed
func NewShimmer() *Shimmer {
	return &Shimmer{
		width:     0.25,
		step:      1.5,
		trueColor: os.Getenv("COLORTERM") == "truecolor",
	}
}

// Advance moves the highlight one frame along text of length n and wraps
// once it has left the text
func (s *Shimmer) Advance(n int) {
	if n <= 0 {
		return
	}
	s.center += s.step
	if s.center > float64(n)*(1+s.width) {
		s.center = -float64(n) * s.width
	}
}

// Render draws text with the highlight at its current position
func (s *Shimmer) Render(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return ""
	}
	sigma := math.Max(1, s.width*float64(len(runes))/2)

	var b strings.Builder
	for i, r := range runes {
		dx := float64(i) - s.center
		weight := math.Exp(-(dx * dx) / (2 * sigma * sigma))
		b.WriteString(lipgloss.NewStyle().Foreground(s.color(weight)).Render(string(r)))
	}
	return b.String()
}

// color blends from the secondary text grey to a light violet
func (s *Shimmer) color(weight float64) lipgloss.TerminalColor {
	if !s.trueColor {
		if weight > 0.5 {
			return lipgloss.Color("147")
		}
		return lipgloss.Color("250")
	}
	blend := func(from, to int) int {
		return int(float64(from)*(1-weight) + float64(to)*weight)
	}
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", blend(177, 234), blend(184, 230), blend(199, 255)))
}
