package wiki

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidTitle marks a title rejected before any network call.
var ErrInvalidTitle = errors.New("invalid article title")

// Punctuation accepted inside article titles, besides letters, digits
// and spaces. Anything else is rejected so titles cannot smuggle query
// syntax into the API request.
const titlePunctuation = `'-–(),.:;!?&/_`

const maxTitleLength = 200

// CleanTitle trims and validates a raw article title. Titles must be
// non-empty, must not start with a lowercase letter (wiki titles never
// do), and may only contain letters, digits, spaces and a fixed
// punctuation set.
func CleanTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("%w: empty title", ErrInvalidTitle)
	}
	if len(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title longer than %d characters", ErrInvalidTitle, maxTitleLength)
	}

	first, _ := utf8.DecodeRuneInString(title)
	if unicode.IsLower(first) {
		return "", fmt.Errorf("%w: %q starts with a lowercase letter", ErrInvalidTitle, title)
	}

	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			continue
		}
		if strings.ContainsRune(titlePunctuation, r) {
			continue
		}
		return "", fmt.Errorf("%w: %q contains disallowed character %q", ErrInvalidTitle, title, r)
	}

	return title, nil
}
