// Package langmeta maps language codes to the language names used in
// translation prompts. Models follow "Translate into Vietnamese" far more
// reliably than "Translate into vi", so codes given on the command line or
// over the API are expanded before they reach the prompt.
package langmeta

import (
	"sort"
	"strings"
)

// Meta describes a language.
type Meta struct {
	// Name is the English name, used in prompts.
	Name string `json:"name"`
	// Native is the name in the language itself.
	Native string `json:"native"`
}

// Registry contains canonical language metadata keyed by BCP 47-style code.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"af":    {Name: "Afrikaans", Native: "Afrikaans"},
	"ar":    {Name: "Arabic", Native: "العربية"},
	"az":    {Name: "Azerbaijani", Native: "Azərbaycanca"},
	"be":    {Name: "Belarusian", Native: "Беларуская"},
	"bg":    {Name: "Bulgarian", Native: "Български"},
	"bn":    {Name: "Bengali", Native: "বাংলা"},
	"ca":    {Name: "Catalan", Native: "Català"},
	"cs":    {Name: "Czech", Native: "Čeština"},
	"da":    {Name: "Danish", Native: "Dansk"},
	"de":    {Name: "German", Native: "Deutsch"},
	"el":    {Name: "Greek", Native: "Ελληνικά"},
	"en":    {Name: "English", Native: "English"},
	"en-GB": {Name: "British English", Native: "English (UK)"},
	"en-US": {Name: "American English", Native: "English (US)"},
	"es":    {Name: "Spanish", Native: "Español"},
	"es-MX": {Name: "Mexican Spanish", Native: "Español (México)"},
	"et":    {Name: "Estonian", Native: "Eesti"},
	"fa":    {Name: "Persian", Native: "فارسی"},
	"fi":    {Name: "Finnish", Native: "Suomi"},
	"fil":   {Name: "Filipino", Native: "Filipino"},
	"fr":    {Name: "French", Native: "Français"},
	"fr-CA": {Name: "Canadian French", Native: "Français (Canada)"},
	"he":    {Name: "Hebrew", Native: "עברית"},
	"hi":    {Name: "Hindi", Native: "हिन्दी"},
	"hr":    {Name: "Croatian", Native: "Hrvatski"},
	"hu":    {Name: "Hungarian", Native: "Magyar"},
	"id":    {Name: "Indonesian", Native: "Bahasa Indonesia"},
	"it":    {Name: "Italian", Native: "Italiano"},
	"ja":    {Name: "Japanese", Native: "日本語"},
	"ka":    {Name: "Georgian", Native: "ქართული"},
	"kk":    {Name: "Kazakh", Native: "Қазақ тілі"},
	"ko":    {Name: "Korean", Native: "한국어"},
	"lt":    {Name: "Lithuanian", Native: "Lietuvių"},
	"lv":    {Name: "Latvian", Native: "Latviešu"},
	"ms":    {Name: "Malay", Native: "Bahasa Melayu"},
	"nb":    {Name: "Norwegian Bokmål", Native: "Norsk bokmål"},
	"nl":    {Name: "Dutch", Native: "Nederlands"},
	"pl":    {Name: "Polish", Native: "Polski"},
	"pt":    {Name: "Portuguese", Native: "Português"},
	"pt-BR": {Name: "Brazilian Portuguese", Native: "Português (Brasil)"},
	"ro":    {Name: "Romanian", Native: "Română"},
	"ru":    {Name: "Russian", Native: "Русский"},
	"sk":    {Name: "Slovak", Native: "Slovenčina"},
	"sl":    {Name: "Slovenian", Native: "Slovenščina"},
	"sr":    {Name: "Serbian", Native: "Српски"},
	"sv":    {Name: "Swedish", Native: "Svenska"},
	"sw":    {Name: "Swahili", Native: "Kiswahili"},
	"ta":    {Name: "Tamil", Native: "தமிழ்"},
	"th":    {Name: "Thai", Native: "ไทย"},
	"tr":    {Name: "Turkish", Native: "Türkçe"},
	"uk":    {Name: "Ukrainian", Native: "Українська"},
	"ur":    {Name: "Urdu", Native: "اردو"},
	"uz":    {Name: "Uzbek", Native: "O'zbek"},
	"vi":    {Name: "Vietnamese", Native: "Tiếng Việt"},
	"zh":    {Name: "Chinese", Native: "中文"},
	"zh-CN": {Name: "Simplified Chinese", Native: "简体中文"},
	"zh-TW": {Name: "Traditional Chinese", Native: "繁體中文"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns metadata for a language code, supporting variants like
// pt_BR and pt-BR and falling back to the base language. ok is false for
// values that are not a known code.
func Resolve(lang string) (m Meta, ok bool) {
	if m, ok := Registry[lang]; ok {
		return m, true
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m, true
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m, true
		}
	}
	return Meta{}, false
}

// Name returns the English name for a language code. Anything else,
// including names that are already spelled out ("Vietnamese"), is returned
// trimmed but otherwise unchanged.
func Name(lang string) string {
	if m, ok := Resolve(lang); ok {
		return m.Name
	}
	return strings.TrimSpace(lang)
}

// Codes returns the registered codes, sorted.
func Codes() []string {
	codes := make([]string, 0, len(Registry))
	for code := range Registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
