package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Number is one numeric interpretation found in a piece of text.
type Number struct {
	Text    string  // the matched span, normalized to lower case
	Value   float64 // resolved value
	Integer bool    // Value has no fractional part
}

var numberTokenRegex = regexp.MustCompile(`[a-z]+|-?\d[\d,]*(?:\.\d+)?`)

var unitWords = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16, "seventeen": 17,
	"eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
	"seventy": 70, "eighty": 80, "ninety": 90,
}

var scaleWords = map[string]float64{
	"dozen":    12,
	"hundred":  100,
	"thousand": 1000,
	"million":  1000000,
}

func isNumberWord(w string) bool {
	_, unit := unitWords[w]
	_, scale := scaleWords[w]
	return unit || scale
}

// RecognizeNumbers returns every number found in text, in order of appearance.
// Digit forms ("25", "-3", "1,000", "2.5") and spelled-out English forms ("twenty-five",
// "a hundred and five", "a dozen", "minus four") are recognized.
func RecognizeNumbers(text string) []Number {
	tokens := numberTokens(strings.ToLower(text))

	var out []Number
	var run []string
	negative := false
	flush := func() {
		if len(run) == 0 {
			return
		}
		if v, ok := wordsToNumber(run); ok {
			label := strings.Join(run, " ")
			if negative {
				v, label = -v, "minus "+label
			}
			out = append(out, Number{Text: label, Value: v, Integer: true})
		}
		run = nil
		negative = false
	}

	for i, tok := range tokens {
		next := ""
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}
		switch {
		case tok[0] == '-' || (tok[0] >= '0' && tok[0] <= '9'):
			sign := negative
			flush()
			negative = false
			if n, ok := parseDigits(tok); ok {
				if sign && n.Value > 0 {
					n.Value, n.Text = -n.Value, "minus "+n.Text
				}
				out = append(out, n)
			}
		case (tok == "minus" || tok == "negative") && len(run) == 0 && startsNumber(next):
			negative = true
		case isNumberWord(tok):
			run = append(run, tok)
		case tok == "a" && len(run) == 0 && scaleWords[next] > 0:
			run = append(run, tok)
		case tok == "and" && len(run) > 0 && isNumberWord(next):
			// "one hundred and five"
		default:
			flush()
		}
	}
	flush()
	return out
}

// numberTokens splits text into words and digit groups. A '-' counts as a sign only at the
// start of the text or after a non-alphanumeric character, so "20-25" stays two positives.
func numberTokens(text string) []string {
	locs := numberTokenRegex.FindAllStringIndex(text, -1)
	tokens := make([]string, 0, len(locs))
	for _, loc := range locs {
		tok := text[loc[0]:loc[1]]
		if tok[0] == '-' && loc[0] > 0 && isAlnum(text[loc[0]-1]) {
			tok = tok[1:]
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// startsNumber reports whether a token can begin a number.
func startsNumber(tok string) bool {
	if tok == "" {
		return false
	}
	return tok == "a" || isNumberWord(tok) || (tok[0] >= '0' && tok[0] <= '9')
}

func parseDigits(tok string) (Number, bool) {
	clean := strings.ReplaceAll(tok, ",", "")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return Number{}, false
	}
	return Number{Text: tok, Value: v, Integer: v == math.Trunc(v)}, true
}

// wordsToNumber folds a run of number words into a value, e.g. [two hundred forty one] -> 241.
func wordsToNumber(words []string) (float64, bool) {
	var total, current float64
	seen := false
	for _, w := range words {
		if w == "a" {
			current = 1
			continue
		}
		if v, ok := unitWords[w]; ok {
			current += v
			seen = true
			continue
		}
		scale := scaleWords[w]
		if current == 0 {
			current = 1
		}
		seen = true
		switch {
		case scale >= 1000:
			total += current * scale
			current = 0
		default:
			current *= scale
		}
	}
	return total + current, seen
}
