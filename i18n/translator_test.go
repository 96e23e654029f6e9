package i18n_test

import (
	"testing"

	"github.com/robinmordasiewicz/specdrift/i18n"
)

type upper struct{}

func (upper) Message(code string) string { return "X-" + code }

func TestTranslator_DefaultAndJapanese(t *testing.T) {
	if msg := i18n.T("invalid_type"); msg != "invalid type" {
		t.Fatalf("expected a human message, got %q", msg)
	}

	i18n.SetLanguage("ja")
	defer i18n.SetLanguage("en")
	if msg := i18n.T("not-evaluated"); msg != "未評価" {
		t.Fatalf("expected japanese message, got %q", msg)
	}
}

func TestTranslator_UnknownAndCustom(t *testing.T) {
	if msg := i18n.T("no_such_code"); msg != "no_such_code" {
		t.Fatalf("unknown codes pass through, got %q", msg)
	}
	i18n.SetLanguage("!!")
	if msg := i18n.T("required"); msg != "required property missing" {
		t.Fatalf("fallback to english, got %q", msg)
	}
	i18n.SetTranslator(upper{})
	defer i18n.SetTranslator(nil)
	if msg := i18n.T("required"); msg != "X-required" {
		t.Fatalf("custom translator: %q", msg)
	}
}
