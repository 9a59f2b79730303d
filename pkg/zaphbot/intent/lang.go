// Package intent – lang.go provides a cheap language heuristic used to hint
// the reply generator. This is deliberately crude; it only needs to catch
// obvious Spanish/French so replies come back in kind.
package intent

import "regexp"

var (
	reSpanish = regexp.MustCompile(`(?i)[¿¡ñ]|\b(que|porque|hola)\b`)
	reFrench  = regexp.MustCompile(`(?i)[àâçèêëîïôû]|\b(bonjour|merci)\b`)
)

// DetectLanguage guesses the language of text. Returns an ISO 639-1 code,
// defaulting to "en".
func DetectLanguage(text string) string {
	switch {
	case reSpanish.MatchString(text):
		return "es"
	case reFrench.MatchString(text):
		return "fr"
	default:
		return "en"
	}
}
