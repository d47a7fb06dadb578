package chat

import (
	"fmt"
	"strings"
)

// Language is the language the assistant is asked to answer in.
type Language string

const (
	Hindi    Language = "hindi"
	English  Language = "english"
	French   Language = "french"
	Spanish  Language = "spanish"
	German   Language = "german"
	Mandarin Language = "mandarin"
)

// Languages lists every supported language.
func Languages() []Language {
	return []Language{Hindi, English, French, Spanish, German, Mandarin}
}

// ParseLanguage resolves a case-insensitive language name.
func ParseLanguage(s string) (Language, error) {
	want := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range Languages() {
		if l == want {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Directive is appended to every user utterance.
func (l Language) Directive() string {
	return "\nAnswer in " + string(l) + " and do not answer as the user."
}
