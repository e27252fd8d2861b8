package chat

import (
	"errors"
	"slices"

	goaway "github.com/TwiN/go-away"
)

var ErrInappropriateContent = errors.New("message contains inappropriate content")

// Screener decides whether text may be posted.
type Screener interface {
	IsProfane(text string) bool
}

// Clean words the default dictionary matches as substrings.
var extraFalsePositives = []string{
	"assault",
	"assemble",
	"assess",
	"asset",
	"assort",
	"canal",
	"cockpit",
	"cocoon",
	"football",
	"hoarse",
	"manuscript",
	"muffin",
	"muffle",
	"parse",
	"peacock",
	"raccoon",
	"sparse",
	"turnip",
	"tycoon",
	"whoever",
}

// NewProfanityScreener returns a go-away detector that does not match
// across word boundaries.
func NewProfanityScreener() Screener {
	falsePositives := append(slices.Clone(goaway.DefaultFalsePositives), extraFalsePositives...)
	return goaway.NewProfanityDetector().
		WithSanitizeSpaces(false).
		WithCustomDictionary(goaway.DefaultProfanities, falsePositives, goaway.DefaultFalseNegatives)
}

// ScreenerFunc adapts a function to Screener.
type ScreenerFunc func(text string) bool

func (f ScreenerFunc) IsProfane(text string) bool { return f(text) }
