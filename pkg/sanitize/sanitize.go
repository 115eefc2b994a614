package sanitize

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	unsafeFileChar = regexp.MustCompile(`[<>:"|?*\\]`)
)

// SanitizeFilename reduces a client-supplied filename to a safe base name
// usable inside an object key.
func SanitizeFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = path.Base(filename)
	filename = controlChars.ReplaceAllString(filename, "")
	filename = unsafeFileChar.ReplaceAllString(filename, "_")
	filename = strings.TrimLeft(filename, ".")
	if filename == "" || filename == "/" {
		return "file"
	}
	return filename
}

// StripControlCharacters removes control characters except newlines and tabs
func StripControlCharacters(input string) string {
	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// ValidateStringLength checks the rune length of input is within bounds
func ValidateStringLength(input string, minLen, maxLen int) bool {
	n := utf8.RuneCountInString(input)
	return n >= minLen && n <= maxLen
}
