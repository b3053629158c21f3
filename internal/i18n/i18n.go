// Package i18n resolves localization keys to display strings with a fixed
// fallback chain: requested language -> ru -> en -> the key itself. A missing
// translation therefore never fails, it only degrades.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed locales/*.json
var localeFS embed.FS

// DefaultLanguage is the first fallback step after the requested language.
const DefaultLanguage = "ru"

// Bundle holds all loaded locales, read-only after construction.
type Bundle struct {
	locales map[string]map[string]string
}

// Load parses every embedded locale file into a Bundle.
func Load() (*Bundle, error) {
	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales dir: %w", err)
	}

	locales := make(map[string]map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		lang := strings.TrimSuffix(name, ".json")
		data, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("i18n: read locale %s: %w", name, err)
		}
		table := make(map[string]string)
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("i18n: parse locale %s: %w", name, err)
		}
		locales[lang] = table
	}
	if len(locales) == 0 {
		return nil, fmt.Errorf("i18n: no locales embedded")
	}
	return &Bundle{locales: locales}, nil
}

// Languages returns the set of loaded language codes.
func (b *Bundle) Languages() []string {
	out := make([]string, 0, len(b.locales))
	for lang := range b.locales {
		out = append(out, lang)
	}
	return out
}

// Has reports whether the key resolves in the given language without fallback.
func (b *Bundle) Has(key, lang string) bool {
	table, ok := b.locales[lang]
	if !ok {
		return false
	}
	_, ok = table[key]
	return ok
}

// Resolve returns the display string for key in lang. The fallback chain is
// lang -> ru -> en -> key, so the worst case is the literal key.
func (b *Bundle) Resolve(key, lang string) string {
	for _, l := range []string{lang, DefaultLanguage, "en"} {
		if l == "" {
			continue
		}
		if table, ok := b.locales[l]; ok {
			if text, ok := table[key]; ok {
				return text
			}
		}
	}
	return key
}

// Resolvef resolves key and substitutes {placeholder} arguments.
func (b *Bundle) Resolvef(key, lang string, args map[string]string) string {
	text := b.Resolve(key, lang)
	if len(args) == 0 {
		return text
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// MissingKeys reports keys present in one loaded language but absent in
// another. Used by start-up validation to catch inconsistent locale files.
func (b *Bundle) MissingKeys() map[string][]string {
	missing := make(map[string][]string)
	for refLang, refTable := range b.locales {
		for lang, table := range b.locales {
			if lang == refLang {
				continue
			}
			for key := range refTable {
				if _, ok := table[key]; !ok {
					missing[lang] = append(missing[lang], key)
				}
			}
		}
	}
	for lang := range missing {
		if len(missing[lang]) == 0 {
			delete(missing, lang)
		}
	}
	return missing
}
