package render

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxNameRunes = 60
	defaultName  = "PRODUTO"
)

var unsafeNameChars = regexp.MustCompile(`[^-\p{L}\p{N}_.]`)

// SafeName turns a product title into a filesystem-safe, uppercased stem.
func SafeName(title string) string {
	name := strings.ToUpper(strings.TrimSpace(title))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeNameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	if name == "" {
		return defaultName
	}
	return name
}

// Stem builds the shared file stem: SAFE_TITLE_HHMMSS_token.
func Stem(title string, now time.Time, token string) string {
	stem := SafeName(title) + "_" + now.Format("150405")
	if token != "" {
		stem += "_" + token
	}
	return stem
}
