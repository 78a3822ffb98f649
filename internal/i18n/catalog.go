// Package i18n renders the localised state and reason texts of blind
// decisions.
//
// Catalogues are embedded YAML files (locales/*.yaml) with nested keys that
// are flattened to dotted form, e.g. "blind.states.default". Parameters are
// written as {{name}}. The requested locale is matched against the embedded
// ones with golang.org/x/text/language; English is the fallback for missing
// keys.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// ErrNoCatalog is returned when no catalogue could be loaded.
var ErrNoCatalog = errors.New("i18n: no catalogue")

var paramPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Catalog is an immutable set of translated messages. Safe for concurrent
// use.
type Catalog struct {
	tag      language.Tag
	messages map[string]string
	fallback map[string]string
}

// Load returns the catalogue best matching locale (a BCP 47 tag such as
// "de-AT" or "en"). Unknown or empty locales get English.
func Load(locale string) (*Catalog, error) {
	tags, files, err := available()
	if err != nil {
		return nil, err
	}

	fallback, err := readCatalog(files[language.English])
	if err != nil {
		return nil, err
	}

	want, err := language.Parse(locale)
	if err != nil {
		want = language.English
	}
	_, idx, _ := language.NewMatcher(tags).Match(want)
	tag := tags[idx]

	messages := fallback
	if tag != language.English {
		if messages, err = readCatalog(files[tag]); err != nil {
			return nil, err
		}
	}
	return &Catalog{tag: tag, messages: messages, fallback: fallback}, nil
}

// Language returns the matched language.
func (c *Catalog) Language() language.Tag { return c.tag }

// T renders key with params. Unknown keys render as the key itself.
func (c *Catalog) T(key string, params map[string]any) string {
	text, ok := c.messages[key]
	if !ok {
		if text, ok = c.fallback[key]; !ok {
			return key
		}
	}
	if len(params) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	return paramPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := paramPattern.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}

// Keys returns all keys of the catalogue, sorted.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.messages))
	for k := range c.messages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// available lists the embedded locales with English first, so the matcher
// falls back to it.
func available() ([]language.Tag, map[language.Tag]string, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNoCatalog, err)
	}
	tags := []language.Tag{language.English}
	files := map[language.Tag]string{}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		tag, err := language.Parse(name)
		if err != nil {
			continue
		}
		files[tag] = path.Join("locales", e.Name())
		if tag != language.English {
			tags = append(tags, tag)
		}
	}
	if _, ok := files[language.English]; !ok {
		return nil, nil, fmt.Errorf("%w: english catalogue missing", ErrNoCatalog)
	}
	return tags, files, nil
}

func readCatalog(file string) (map[string]string, error) {
	data, err := localeFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCatalog, err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	out := make(map[string]string)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, out)
		case string:
			out[key] = t
		default:
			out[key] = fmt.Sprint(t)
		}
	}
}
