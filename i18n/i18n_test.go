package i18n

import "testing"

func clearLocaleEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LANGUAGE", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")
}

func TestDetect(t *testing.T) {
	t.Run("LANGUAGE has highest priority", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "ru_RU.UTF-8:en_US")
		t.Setenv("LC_ALL", "de_DE.UTF-8")

		if got := Detect(); got != "ru_RU" {
			t.Fatalf("Detect() = %q, want %q", got, "ru_RU")
		}
	})

	t.Run("C and POSIX are skipped", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "C")
		t.Setenv("LC_ALL", "POSIX")
		t.Setenv("LC_MESSAGES", "fr_FR.UTF-8")

		if got := Detect(); got != "fr_FR" {
			t.Fatalf("Detect() = %q, want %q", got, "fr_FR")
		}
	})

	t.Run("modifier is stripped", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANG", "sr_RS@latin")

		if got := Detect(); got != "sr_RS" {
			t.Fatalf("Detect() = %q, want %q", got, "sr_RS")
		}
	})

	t.Run("falls back to en", func(t *testing.T) {
		clearLocaleEnv(t)
		if got := Detect(); got != "en" {
			t.Fatalf("Detect() = %q, want %q", got, "en")
		}
	})
}

func TestFallbackWhenUninitialized(t *testing.T) {
	mu.Lock()
	old := po
	po = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		po = old
		mu.Unlock()
	})

	if got := T("Hello"); got != "Hello" {
		t.Fatalf("T fallback = %q, want %q", got, "Hello")
	}
	if got := N("line", "lines", 1); got != "line" {
		t.Fatalf("N singular fallback = %q, want %q", got, "line")
	}
	if got := N("line", "lines", 2); got != "lines" {
		t.Fatalf("N plural fallback = %q, want %q", got, "lines")
	}
}

func TestRussianCatalog(t *testing.T) {
	t.Cleanup(func() { Init("en") })

	if got := Init("ru"); got != "ru" || Lang() != "ru" {
		t.Fatalf("Init(ru) = %q, Lang() = %q", got, Lang())
	}
	if got := T("Translation complete"); got != "Перевод завершён" {
		t.Fatalf("T(Translation complete) = %q", got)
	}
	if got := N("%d line", "%d lines", 5); got != "%d строк" {
		t.Fatalf("N(5) = %q", got)
	}
	if got := T("no such message"); got != "no such message" {
		t.Fatalf("untranslated message = %q", got)
	}
}

func TestEnglishPassthrough(t *testing.T) {
	Init("en")
	if got := T("Translation complete"); got != "Translation complete" {
		t.Fatalf("T() = %q", got)
	}
}
