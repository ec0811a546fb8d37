// Package i18n localizes batchtr's own command line messages.
//
// Catalogs are gettext .po files embedded from locales/<lang>/LC_MESSAGES/
// and read with gotext. Messages without a translation are printed as is.
package i18n

import (
	"embed"
	"os"
	"strings"
	"sync"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

const domain = "batchtr"

var (
	mu     sync.RWMutex
	po     *gotext.Locale
	active = "en"
)

// Init loads the catalog for lang. An empty lang is detected from the
// environment (LANGUAGE, LC_ALL, LC_MESSAGES, LANG). It returns the language
// in use.
func Init(lang string) string {
	if lang == "" {
		lang = Detect()
	}

	l := gotext.NewLocaleFSWithPath(lang, locales, "locales")
	l.AddDomain(domain)
	l.SetDomain(domain)

	mu.Lock()
	po, active = l, lang
	mu.Unlock()
	return lang
}

// Lang returns the language passed to or detected by Init.
func Lang() string {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// T translates msgid.
func T(msgid string) string {
	mu.RLock()
	l := po
	mu.RUnlock()
	if l == nil {
		return msgid
	}
	return l.Get(msgid)
}

// N translates a message with plural forms for count n.
func N(singular, plural string, n int) string {
	mu.RLock()
	l := po
	mu.RUnlock()
	if l == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return l.GetN(singular, plural, n)
}

// Detect returns the user's message language following GNU gettext
// priority: LANGUAGE > LC_ALL > LC_MESSAGES > LANG. "C" and "POSIX" are
// skipped; the fallback is "en".
func Detect() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		val, _, _ = strings.Cut(val, ".")
		val, _, _ = strings.Cut(val, "@")
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}
		return val
	}
	return "en"
}
