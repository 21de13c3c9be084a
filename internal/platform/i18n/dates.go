// Package i18n formats report dates for the caller's preferred locale.
package i18n

import (
	"strings"
	"time"

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/de"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/en_GB"
	"github.com/go-playground/locales/en_US"
	"github.com/go-playground/locales/es"
	"github.com/go-playground/locales/fr"
	"github.com/go-playground/locales/it"
	"github.com/go-playground/locales/nl"
	"github.com/go-playground/locales/pl"
	"github.com/go-playground/locales/pt"
	"github.com/go-playground/locales/pt_BR"
	"github.com/go-playground/locales/sv"
	"golang.org/x/text/language"
)

func supported() []locales.Translator {
	return []locales.Translator{
		en.New(), en_US.New(), en_GB.New(), de.New(), es.New(), fr.New(),
		it.New(), nl.New(), pl.New(), pt.New(), pt_BR.New(), sv.New(),
	}
}

// DateFormatter picks a CLDR locale from an Accept-Language header.
type DateFormatter struct {
	translators []locales.Translator
	matcher     language.Matcher
}

// NewDateFormatter uses defaultLocale ("en", "pt_BR", "de-DE") when the
// header is absent, malformed, or matches nothing. Unknown defaults fall back
// to English.
func NewDateFormatter(defaultLocale string) *DateFormatter {
	all := supported()
	want := normalize(defaultLocale)
	for i, tr := range all {
		if normalize(tr.Locale()) == want {
			all[0], all[i] = all[i], all[0]
			break
		}
	}

	tags := make([]language.Tag, len(all))
	for i, tr := range all {
		tags[i] = language.Make(normalize(tr.Locale()))
	}
	return &DateFormatter{translators: all, matcher: language.NewMatcher(tags)}
}

// Translator returns the best match for acceptLanguage.
func (f *DateFormatter) Translator(acceptLanguage string) locales.Translator {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return f.translators[0]
	}
	_, idx, conf := f.matcher.Match(tags...)
	if conf == language.No {
		return f.translators[0]
	}
	return f.translators[idx]
}

// FormatDate renders t in the CLDR medium date style of the matched locale,
// e.g. "May 1, 2024" for en and "01.05.2024" for de.
func (f *DateFormatter) FormatDate(acceptLanguage string, t time.Time) string {
	return f.Translator(acceptLanguage).FmtDateMedium(t)
}

func normalize(locale string) string {
	return strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
}
