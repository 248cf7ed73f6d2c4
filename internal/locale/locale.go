// Package locale holds the catalog of lecture languages and their dialects
// and validates user input against it.
//
// Unknown codes are rejected with a "did you mean" suggestion ranked by
// Jaro-Winkler similarity over codes and names.
package locale

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/aiprof/pkg/lecture"
)

// suggestThreshold is the minimum Jaro-Winkler score for a suggestion.
const suggestThreshold = 0.75

var (
	// ErrUnknownLanguage is wrapped when a language code is not in the catalog.
	ErrUnknownLanguage = errors.New("locale: unknown language")

	// ErrUnknownDialect is wrapped when a dialect does not belong to its language.
	ErrUnknownDialect = errors.New("locale: unknown dialect")
)

// Language is one entry of the catalog.
type Language struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Dialects []string `json:"dialects"`
}

// Languages is the catalog offered for live lectures, in display order.
var Languages = []Language{
	{Code: "en", Name: "English", Dialects: []string{"US", "UK", "AU", "CA"}},
	{Code: "es", Name: "Español", Dialects: []string{"ES", "MX", "AR", "CO"}},
	{Code: "fr", Name: "Français", Dialects: []string{"FR", "CA", "BE", "CH"}},
	{Code: "de", Name: "Deutsch", Dialects: []string{"DE", "AT", "CH"}},
	{Code: "ar", Name: "العربية", Dialects: []string{"MSA", "EG", "SA", "MA"}},
	{Code: "zh", Name: "中文", Dialects: []string{"CN", "TW", "HK", "SG"}},
	{Code: "hi", Name: "हिंदी", Dialects: []string{"IN", "PK"}},
	{Code: "pt", Name: "Português", Dialects: []string{"BR", "PT", "AO"}},
	{Code: "ru", Name: "Русский", Dialects: []string{"RU", "UA", "BY"}},
	{Code: "ja", Name: "日本語", Dialects: []string{"JP"}},
}

// Lookup returns the catalog entry for code, case-insensitively.
func Lookup(code string) (Language, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, l := range Languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// Validate checks language and dialect. An empty dialect is always allowed.
// Errors wrap [ErrUnknownLanguage] or [ErrUnknownDialect] and carry a
// suggestion when a close match exists.
func Validate(language, dialect string) error {
	l, ok := Lookup(language)
	if !ok {
		return unknown(ErrUnknownLanguage, language, languageCandidates())
	}
	if dialect == "" {
		return nil
	}
	if slices.Contains(l.Dialects, strings.ToUpper(strings.TrimSpace(dialect))) {
		return nil
	}
	return unknown(fmt.Errorf("%w for %s", ErrUnknownDialect, l.Code), dialect, l.Dialects)
}

// ValidateConfig validates the language and dialect of a lecture config.
// It matches the controller's input validation hook.
func ValidateConfig(c lecture.Config) error {
	return Validate(c.Language, c.Dialect)
}

// Suggest returns the candidate most similar to input, or "" when none
// scores at least the suggestion threshold.
func Suggest(input string, candidates []string) string {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return ""
	}
	best, bestScore := "", 0.0
	for _, c := range candidates {
		score := matchr.JaroWinkler(in, strings.ToLower(c), false)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return best
}

func unknown(sentinel error, input string, candidates []string) error {
	if s := Suggest(input, candidates); s != "" {
		return fmt.Errorf("%w %q (did you mean %q?)", sentinel, input, s)
	}
	return fmt.Errorf("%w %q", sentinel, input)
}

// languageCandidates lists codes and names so that "english" suggests
// "English".
func languageCandidates() []string {
	out := make([]string, 0, 2*len(Languages))
	for _, l := range Languages {
		out = append(out, l.Code, l.Name)
	}
	return out
}
