package consolidate

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/enrich-cli/internal/model"
)

// digitRuns matches digit sequences joined by the separators people put
// inside phone numbers and postal codes.
var digitRuns = regexp.MustCompile(`\+?\d[\d \-.()]*\d|\d`)

// postalPattern matches the Portuguese dddd-ddd postal form.
var postalPattern = regexp.MustCompile(`\b\d{4}\s*-\s*\d{3}\b`)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// foldChain strips combining marks so "Colégio" and "Colegio" compare equal.
var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CanonicalValue returns the form of a proposed value that gets stored:
// phones reduce to digits, postal codes to dddd-ddd, emails to lowercase,
// and free text keeps its spelling with whitespace collapsed.
func CanonicalValue(k model.FieldKey, raw string) string {
	raw = collapseSpace(raw)
	if raw == "" {
		return ""
	}

	switch k {
	case model.FieldPhone:
		d := digits(raw)
		if d == "" {
			return ""
		}
		if strings.HasPrefix(raw, "+") {
			return "+" + d
		}
		return d
	case model.FieldPostalCode:
		if d := digits(raw); len(d) == 7 {
			return d[:4] + "-" + d[4:]
		}
		return raw
	case model.FieldEmail:
		return strings.ToLower(raw)
	default:
		return raw
	}
}

// CompareKey returns the form used for equality between two values of the
// same field. Phones and postal codes compare by digits, emails by lowercase,
// free text case- and accent-folded.
func CompareKey(k model.FieldKey, raw string) string {
	switch k {
	case model.FieldPhone:
		return stripCountryPrefix(digits(raw))
	case model.FieldPostalCode:
		return digits(raw)
	case model.FieldEmail:
		return strings.ToLower(strings.TrimSpace(raw))
	default:
		return fold(raw)
	}
}

// Supports reports whether the evidence text contains the value after both
// sides are normalized for the field kind. This is the anti-hallucination
// gate: a proposal nothing supports is discarded.
func Supports(k model.FieldKey, text, value string) bool {
	key := CompareKey(k, value)
	if key == "" {
		return false
	}

	switch k {
	case model.FieldPhone, model.FieldPostalCode:
		for _, run := range digitRuns.FindAllString(text, -1) {
			if strings.Contains(stripCountryPrefix(digits(run)), key) {
				return true
			}
		}
		return false
	case model.FieldEmail:
		return strings.Contains(strings.ToLower(text), key)
	default:
		return strings.Contains(fold(text), key)
	}
}

// ExtractValues pulls every well-formed value of the field kind out of the
// evidence text, in compare-key form. Only phones, postal codes, and emails
// are extractable; free-text fields return nothing.
func ExtractValues(k model.FieldKey, text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	switch k {
	case model.FieldPhone:
		for _, run := range digitRuns.FindAllString(text, -1) {
			d := stripCountryPrefix(digits(run))
			// Portuguese numbers are nine digits starting 2 (fixed) or 9
			// (mobile); anything else is a NIF, a year, or noise.
			if len(d) == 9 && (d[0] == '2' || d[0] == '9') {
				add(d)
			}
		}
	case model.FieldPostalCode:
		for _, m := range postalPattern.FindAllString(text, -1) {
			d := digits(m)
			add(d[:4] + "-" + d[4:])
		}
	case model.FieldEmail:
		for _, m := range emailPattern.FindAllString(text, -1) {
			add(strings.ToLower(m))
		}
	}
	return out
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// stripCountryPrefix drops the Portuguese country code so "+351 912 345 678"
// and "912345678" compare equal.
func stripCountryPrefix(d string) string {
	if len(d) == 12 && strings.HasPrefix(d, "351") {
		return d[3:]
	}
	if len(d) == 14 && strings.HasPrefix(d, "00351") {
		return d[5:]
	}
	return d
}

func fold(s string) string {
	out, _, err := transform.String(foldChain, s)
	if err != nil {
		out = s
	}
	return collapseSpace(strings.ToLower(out))
}

func collapseSpace(s string) string {
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}
