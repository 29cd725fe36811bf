package definition

import (
	"maps"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Parameters holds the string parameters passed to a transform, keyed by
// language. The empty language is the default set; other languages only
// carry the names they translate.
type Parameters struct {
	byLanguage map[string]map[string]string
}

func NewParameters() *Parameters {
	return &Parameters{byLanguage: map[string]map[string]string{"": {}}}
}

// Set records value for name in lang ("" for the default). Language tags are
// validated and stored in canonical BCP 47 form.
func (p *Parameters) Set(lang, name, value string) error {
	if name == "" {
		return Errorf("parameter", "empty parameter name")
	}
	key, err := canonicalLanguage(lang)
	if err != nil {
		return &ConfigurationError{Subject: "parameter " + name, Msg: "invalid language " + lang, Err: err}
	}
	if p.byLanguage == nil {
		p.byLanguage = map[string]map[string]string{"": {}}
	}
	params, ok := p.byLanguage[key]
	if !ok {
		params = map[string]string{}
		p.byLanguage[key] = params
	}
	params[name] = value
	return nil
}

// Resolve returns the default parameters overlaid with the ones of lang. An
// unknown or unparsable lang yields the defaults.
func (p *Parameters) Resolve(lang string) map[string]string {
	out := map[string]string{}
	if p == nil || p.byLanguage == nil {
		return out
	}
	maps.Copy(out, p.byLanguage[""])
	if lang == "" {
		return out
	}
	key, err := canonicalLanguage(lang)
	if err != nil {
		return out
	}
	maps.Copy(out, p.byLanguage[key])
	return out
}

// Languages lists the non-default languages with at least one parameter.
func (p *Parameters) Languages() []string {
	var out []string
	for l := range p.byLanguage {
		if l != "" {
			out = append(out, l)
		}
	}
	slices.Sort(out)
	return out
}

func canonicalLanguage(lang string) (string, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "", nil
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}
