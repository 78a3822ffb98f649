package i18n

import (
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestLoadMatchesLocale(t *testing.T) {
	tests := []struct {
		locale string
		want   language.Tag
	}{
		{"en", language.English},
		{"de", language.German},
		{"de-AT", language.German},
		{"fr", language.English},
		{"", language.English},
		{"not a tag", language.English},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			c, err := Load(tt.locale)
			if err != nil {
				t.Fatalf("Load(%q) error = %v", tt.locale, err)
			}
			if c.Language() != tt.want {
				t.Errorf("Language() = %v, want %v", c.Language(), tt.want)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	c, err := Load("en")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		key    string
		params map[string]any
		want   string
	}{
		{"plain", "blind.states.default", nil, "default"},
		{"params", "blind.states.overrideNoExpire", map[string]any{"prio": 2}, "override prio 2"},
		{"nested org", "blind.states.ruleMin", map[string]any{"org": "default", "number": 3}, "default (rule 3 min)"},
		{"missing param", "blind.states.rule", map[string]any{}, "rule {{number}}"},
		{"nil param", "blind.states.rule", map[string]any{"number": nil}, "rule "},
		{"unknown key", "blind.states.nope", nil, "blind.states.nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.T(tt.key, tt.params); got != tt.want {
				t.Errorf("T(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestCataloguesCoverEveryReason(t *testing.T) {
	names := []string{
		"default", "overrideNoExpire", "overrideExpire", "rule", "ruleCond", "ruleTime",
		"ruleTimeCond", "sunCtrl", "sunCtrlMin", "sunCtrlMax", "sunMinAltitude", "sunNotInWin",
		"sunNotInWinMin", "sunInWinMax", "sunMinDelta", "oversteer", "smooth", "ruleMin",
		"ruleMax", "levelBottom", "levelTop",
	}
	for _, locale := range []string{"en", "de"} {
		c, err := Load(locale)
		if err != nil {
			t.Fatalf("Load(%q) error = %v", locale, err)
		}
		for _, n := range names {
			for _, prefix := range []string{"blind.states.", "blind.reasons."} {
				if _, ok := c.messages[prefix+n]; !ok {
					t.Errorf("%s: missing %s%s", locale, prefix, n)
				}
			}
		}
	}
}

func TestGermanText(t *testing.T) {
	c, err := Load("de-DE")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := c.T("blind.states.ruleCond", map[string]any{"number": 1, "text": "flow.lux > 100"})
	if !strings.HasPrefix(got, "Regel 1") {
		t.Errorf("T() = %q, want German rule text", got)
	}
	if len(c.Keys()) == 0 {
		t.Error("Keys() empty")
	}
}
