package text

import (
	"regexp"
	"strconv"
	"strings"
)

type Language string

const (
	ENGLISH Language = "en"
	SPANISH Language = "es"
)

// NumberNormalizer rewrites a string so numeric runs are expanded into their
// spoken cardinal form in the configured language. Synthesis models trained
// on transcribed speech never see raw digits, so anything spoken must be
// spelled out first.
type NumberNormalizer struct {
	lang Language
}

func NewNumberNormalizer(lang Language) *NumberNormalizer {
	return &NumberNormalizer{lang: lang}
}

var (
	letterThenDigit = regexp.MustCompile(`(\p{L})(\d)`)
	digitThenLetter = regexp.MustCompile(`(\d)(\p{L})`)
	digitRun        = regexp.MustCompile(`\b\d+\b`)
)

// Normalize inserts a space at every letter/digit boundary, then replaces
// every maximal run of digits bounded by word boundaries with its cardinal
// spelling. Pure and total: runs too long to spell (or otherwise malformed)
// pass through unchanged, and input without digits is returned as-is.
func (n *NumberNormalizer) Normalize(text string) string {
	text = letterThenDigit.ReplaceAllString(text, "$1 $2")
	text = digitThenLetter.ReplaceAllString(text, "$1 $2")

	return digitRun.ReplaceAllStringFunc(text, func(run string) string {
		value, err := strconv.ParseInt(run, 10, 64)
		if err != nil {
			return run
		}
		spelled := spellCardinal(value, n.lang)
		if spelled == "" {
			return run
		}
		return spelled
	})
}

// spellCardinal returns the cardinal spelling of v in lang, or "" when v is
// out of the supported range (0 up to but excluding 10^12).
func spellCardinal(v int64, lang Language) string {
	if v < 0 || v >= 1_000_000_000_000 {
		return ""
	}
	switch lang {
	case SPANISH:
		return spanishCardinal(v)
	case ENGLISH:
		return englishCardinal(v)
	default:
		return ""
	}
}

var spanishUnits = []string{
	"cero", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho",
	"nueve", "diez", "once", "doce", "trece", "catorce", "quince",
	"dieciséis", "diecisiete", "dieciocho", "diecinueve", "veinte",
	"veintiuno", "veintidós", "veintitrés", "veinticuatro", "veinticinco",
	"veintiséis", "veintisiete", "veintiocho", "veintinueve",
}

var spanishTens = map[int64]string{
	30: "treinta", 40: "cuarenta", 50: "cincuenta", 60: "sesenta",
	70: "setenta", 80: "ochenta", 90: "noventa",
}

var spanishHundreds = map[int64]string{
	100: "cien", 200: "doscientos", 300: "trescientos", 400: "cuatrocientos",
	500: "quinientos", 600: "seiscientos", 700: "setecientos",
	800: "ochocientos", 900: "novecientos",
}

// spanishUnder1000 spells 0..999.
func spanishUnder1000(v int64) string {
	if v < 30 {
		return spanishUnits[v]
	}
	if v < 100 {
		tens := spanishTens[v/10*10]
		if v%10 == 0 {
			return tens
		}
		return tens + " y " + spanishUnits[v%10]
	}
	hundreds := v / 100 * 100
	rest := v % 100
	if rest == 0 {
		return spanishHundreds[hundreds]
	}
	word := spanishHundreds[hundreds]
	if hundreds == 100 {
		word = "ciento" // cien only stands alone
	}
	return word + " " + spanishUnder1000(rest)
}

// spanishApocope applies the apocope used before "mil" and "millones":
// veintiuno → veintiún, uno → un.
func spanishApocope(s string) string {
	if strings.HasSuffix(s, "veintiuno") {
		return strings.TrimSuffix(s, "veintiuno") + "veintiún"
	}
	if strings.HasSuffix(s, "uno") {
		return strings.TrimSuffix(s, "uno") + "un"
	}
	return s
}

func spanishCardinal(v int64) string {
	if v < 1000 {
		return spanishUnder1000(v)
	}

	var parts []string
	millions := v / 1_000_000
	rest := v % 1_000_000

	if millions > 0 {
		if millions == 1 {
			parts = append(parts, "un millón")
		} else {
			parts = append(parts, spanishApocope(spanishCardinal(millions))+" millones")
		}
	}

	thousands := rest / 1000
	under := rest % 1000
	if thousands > 0 {
		if thousands == 1 {
			parts = append(parts, "mil")
		} else {
			parts = append(parts, spanishApocope(spanishUnder1000(thousands))+" mil")
		}
	}
	if under > 0 || len(parts) == 0 {
		parts = append(parts, spanishUnder1000(under))
	}
	return strings.Join(parts, " ")
}

var englishUnits = []string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight",
	"nine", "ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen",
	"sixteen", "seventeen", "eighteen", "nineteen",
}

var englishTens = map[int64]string{
	20: "twenty", 30: "thirty", 40: "forty", 50: "fifty", 60: "sixty",
	70: "seventy", 80: "eighty", 90: "ninety",
}

// englishUnder1000 spells 0..999.
func englishUnder1000(v int64) string {
	if v < 20 {
		return englishUnits[v]
	}
	if v < 100 {
		tens := englishTens[v/10*10]
		if v%10 == 0 {
			return tens
		}
		return tens + "-" + englishUnits[v%10]
	}
	word := englishUnits[v/100] + " hundred"
	if v%100 == 0 {
		return word
	}
	return word + " " + englishUnder1000(v%100)
}

var englishScales = []struct {
	value int64
	name  string
}{
	{1_000_000_000, "billion"},
	{1_000_000, "million"},
	{1000, "thousand"},
}

func englishCardinal(v int64) string {
	if v < 1000 {
		return englishUnder1000(v)
	}
	var parts []string
	for _, scale := range englishScales {
		if v >= scale.value {
			parts = append(parts, englishUnder1000(v/scale.value)+" "+scale.name)
			v %= scale.value
		}
	}
	if v > 0 {
		parts = append(parts, englishUnder1000(v))
	}
	return strings.Join(parts, " ")
}
