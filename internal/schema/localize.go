package schema

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// messageTemplate maps a validator message shape onto a catalog key. The
// submatches of pattern become the key's arguments.
type messageTemplate struct {
	pattern *regexp.Regexp
	key     string
}

var messageTemplates = []messageTemplate{
	{regexp.MustCompile(`^expected (.+), but got (.+)$`), "expected %s, but got %s"},
	{regexp.MustCompile(`^missing properties: (.+)$`), "missing properties: %s"},
	{regexp.MustCompile(`^additionalProperties (.+) not allowed$`), "additionalProperties %s not allowed"},
	{regexp.MustCompile(`^value must be one of (.+)$`), "value must be one of %s"},
	{regexp.MustCompile(`^length must be >= (\S+), but got (\S+)$`), "length must be >= %s, but got %s"},
	{regexp.MustCompile(`^length must be <= (\S+), but got (\S+)$`), "length must be <= %s, but got %s"},
	{regexp.MustCompile(`^does not match pattern (.+)$`), "does not match pattern %s"},
	{regexp.MustCompile(`^(.+) is not valid (.+)$`), "%s is not valid %s"},
	{regexp.MustCompile(`^must be >= (\S+) but found (\S+)$`), "must be >= %s but found %s"},
	{regexp.MustCompile(`^must be <= (\S+) but found (\S+)$`), "must be <= %s but found %s"},
	{regexp.MustCompile(`^minimum (\S+) items required, but found (\S+) items$`), "minimum %s items required, but found %s items"},
	{regexp.MustCompile(`^maximum (\S+) items required, but found (\S+) items$`), "maximum %s items required, but found %s items"},
}

var translations = map[language.Tag]map[string]string{
	language.BrazilianPortuguese: {
		"expected %s, but got %s":                       "deve ser %s, mas recebeu %s",
		"missing properties: %s":                        "propriedades obrigatórias ausentes: %s",
		"additionalProperties %s not allowed":           "propriedades adicionais %s não são permitidas",
		"value must be one of %s":                       "valor deve ser um de %s",
		"length must be >= %s, but got %s":              "tamanho deve ser >= %s, mas recebeu %s",
		"length must be <= %s, but got %s":              "tamanho deve ser <= %s, mas recebeu %s",
		"does not match pattern %s":                     "não corresponde ao padrão %s",
		"%s is not valid %s":                            "%s não é um %s válido",
		"must be >= %s but found %s":                    "deve ser >= %s mas encontrou %s",
		"must be <= %s but found %s":                    "deve ser <= %s mas encontrou %s",
		"minimum %s items required, but found %s items": "mínimo de %s itens exigido, mas encontrou %s itens",
		"maximum %s items required, but found %s items": "máximo de %s itens permitido, mas encontrou %s itens",
	},
	language.Spanish: {
		"expected %s, but got %s":                       "debe ser %s, pero se recibió %s",
		"missing properties: %s":                        "faltan propiedades requeridas: %s",
		"additionalProperties %s not allowed":           "propiedades adicionales %s no permitidas",
		"value must be one of %s":                       "el valor debe ser uno de %s",
		"length must be >= %s, but got %s":              "la longitud debe ser >= %s, pero se recibió %s",
		"length must be <= %s, but got %s":              "la longitud debe ser <= %s, pero se recibió %s",
		"does not match pattern %s":                     "no coincide con el patrón %s",
		"%s is not valid %s":                            "%s no es un %s válido",
		"must be >= %s but found %s":                    "debe ser >= %s pero se encontró %s",
		"must be <= %s but found %s":                    "debe ser <= %s pero se encontró %s",
		"minimum %s items required, but found %s items": "se requieren al menos %s elementos, pero se encontraron %s",
		"maximum %s items required, but found %s items": "se permiten como máximo %s elementos, pero se encontraron %s",
	},
}

var supportedLocales = []language.Tag{
	language.English,
	language.BrazilianPortuguese,
	language.Spanish,
}

// Translator rewrites validator messages into a configured locale. Messages
// without a known shape are returned unchanged.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// NewTranslator returns a translator for the closest supported match to
// locale. An empty or unsupported locale yields English.
func NewTranslator(locale string) *Translator {
	tag := language.English
	if strings.TrimSpace(locale) != "" {
		matcher := language.NewMatcher(supportedLocales)
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, conf := matcher.Match(parsed)
			if conf != language.No {
				tag = supportedLocales[idx]
			}
		}
	}

	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for lang, entries := range translations {
		for key, msg := range entries {
			_ = builder.SetString(lang, key, msg)
		}
	}
	return &Translator{tag: tag, printer: message.NewPrinter(tag, message.Catalog(builder))}
}

// Locale returns the matched locale tag.
func (t *Translator) Locale() language.Tag {
	return t.tag
}

// Translate localizes msg.
func (t *Translator) Translate(msg string) string {
	if t == nil || t.tag == language.English {
		return msg
	}
	for _, tmpl := range messageTemplates {
		m := tmpl.pattern.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		args := make([]any, 0, len(m)-1)
		for _, sub := range m[1:] {
			args = append(args, sub)
		}
		return t.printer.Sprintf(tmpl.key, args...)
	}
	return msg
}
