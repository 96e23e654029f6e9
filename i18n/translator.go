// Package i18n renders issue codes and report statuses for people.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator retrieves localized messages for issue codes and statuses.
type Translator interface {
	Message(code string) string
}

var entries = map[string]map[language.Tag]string{
	"parse_error":      {language.English: "parse error", language.Japanese: "解析エラー"},
	"duplicate_key":    {language.English: "duplicate key", language.Japanese: "キーが重複しています"},
	"invalid_type":     {language.English: "invalid type", language.Japanese: "型が不正です"},
	"required":         {language.English: "required property missing", language.Japanese: "必須プロパティが不足しています"},
	"invalid_version":  {language.English: "unsupported OpenAPI version", language.Japanese: "未対応の OpenAPI バージョンです"},
	"dangling_ref":     {language.English: "reference target not found", language.Japanese: "参照先が見つかりません"},
	"unsupported_ref":  {language.English: "unsupported reference", language.Japanese: "未対応の参照です"},
	"invalid_pattern":  {language.English: "invalid pattern", language.Japanese: "パターンが不正です"},
	"invalid_keyword":  {language.English: "invalid keyword value", language.Japanese: "キーワードの値が不正です"},
	"schema_violation": {language.English: "structure violation", language.Japanese: "構造が不正です"},
	"confirmed":        {language.English: "confirmed", language.Japanese: "確認済み"},
	"corrected":        {language.English: "corrected", language.Japanese: "修正済み"},
	"review":           {language.English: "needs review", language.Japanese: "要確認"},
	"not-evaluated":    {language.English: "not evaluated", language.Japanese: "未評価"},
}

var cat = func() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for code, msgs := range entries {
		for tag, msg := range msgs {
			// keys never contain format verbs
			_ = b.SetString(tag, code, msg)
		}
	}
	return b
}()

// catalogTranslator looks codes up in the built-in catalog.
type catalogTranslator struct{ p *message.Printer }

func (t catalogTranslator) Message(code string) string { return t.p.Sprintf(code) }

func newCatalogTranslator(tag language.Tag) Translator {
	return catalogTranslator{p: message.NewPrinter(tag, message.Catalog(cat))}
}

var currentTranslator = newCatalogTranslator(language.English)

// SetLanguage switches the built-in translator ("en" or "ja"). Unknown
// languages fall back to English.
func SetLanguage(lang string) {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	currentTranslator = newCatalogTranslator(tag)
}

// SetTranslator replaces the translator; nil restores English.
func SetTranslator(tr Translator) {
	if tr == nil {
		currentTranslator = newCatalogTranslator(language.English)
		return
	}
	currentTranslator = tr
}

// T fetches the message for code. Unknown codes are returned unchanged.
func T(code string) string { return currentTranslator.Message(code) }
