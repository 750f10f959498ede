package goalseek

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Format names the validator output format a score was read from.
type Format string

// Recognized formats, in priority order.
const (
	FormatNone       Format = "none"
	FormatStructured Format = "structured"
	FormatLabeled    Format = "labeled"
	FormatRatio      Format = "ratio"
	FormatPercent    Format = "percent"
)

// Extraction is the result of scoring validator output.
type Extraction struct {
	Score   Score    `json:"score"`
	Gaps    []string `json:"gaps,omitempty"`
	RawGaps string   `json:"raw_gaps,omitempty"`
	Format  Format   `json:"format"`
}

// Number grammar shared by the text formats: optional sign, integer or
// decimal.
const number = `[-+]?(?:\d+(?:\.\d*)?|\.\d+)`

var (
	labeledPattern = regexp.MustCompile(`(?im)\bscore\s*[:=]\s*(` + number + `)(?:\s*/\s*(` + number + `))?\s*%?`)
	ratioPattern   = regexp.MustCompile(`(` + number + `)\s*/\s*(` + number + `)`)
	percentPattern = regexp.MustCompile(`(?:^|[^\w.])(` + number + `)\s*%`)
)

// structuredScoreKeys are the JSON fields read as the score, in order.
var structuredScoreKeys = []string{"score", "Score", "SCORE"}

// structuredGapKeys are the JSON fields read as gaps, in order.
var structuredGapKeys = []string{"gaps", "Gaps", "GAPS"}

// Extract scores validator output. It is pure: the same output always yields
// the same Extraction. Stdout is tried first; if it matches no format the
// fallback text (typically stderr) is tried.
func Extract(output string, fallback ...string) Extraction {
	if ex, ok := extract(output); ok {
		return ex
	}
	for _, f := range fallback {
		if ex, ok := extract(f); ok {
			return ex
		}
	}
	return Extraction{Score: NoScore, Format: FormatNone}
}

func extract(output string) (Extraction, bool) {
	if strings.TrimSpace(output) == "" {
		return Extraction{}, false
	}
	if ex, ok := extractStructured(output); ok {
		return ex, true
	}
	if s, ok := extractLabeled(output); ok {
		return Extraction{Score: s, Format: FormatLabeled}, true
	}
	if s, ok := extractRatio(output); ok {
		return Extraction{Score: s, Format: FormatRatio}, true
	}
	if s, ok := extractPercent(output); ok {
		return Extraction{Score: s, Format: FormatPercent}, true
	}
	return Extraction{}, false
}

// extractStructured reads a JSON object from the whole output or, failing
// that, from the span between the first '{' and the last '}'.
func extractStructured(output string) (Extraction, bool) {
	doc := strings.TrimSpace(output)
	if !gjson.Valid(doc) || !gjson.Parse(doc).IsObject() {
		start := strings.IndexByte(output, '{')
		end := strings.LastIndexByte(output, '}')
		if start < 0 || end <= start {
			return Extraction{}, false
		}
		doc = output[start : end+1]
		if !gjson.Valid(doc) {
			return Extraction{}, false
		}
	}

	root := gjson.Parse(doc)
	if !root.IsObject() {
		return Extraction{}, false
	}

	var score gjson.Result
	for _, key := range structuredScoreKeys {
		if r := root.Get(key); r.Exists() {
			score = r
			break
		}
	}
	v, ok := numericValue(score)
	if !ok {
		return Extraction{}, false
	}

	ex := Extraction{Score: Scored(v), Format: FormatStructured}
	for _, key := range structuredGapKeys {
		if r := root.Get(key); r.Exists() {
			ex.Gaps = gapList(r)
			if len(ex.Gaps) > 0 {
				ex.RawGaps = r.Raw
			}
			break
		}
	}
	return ex, true
}

// numericValue accepts JSON numbers and numeric strings such as "85" or "85%".
func numericValue(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		s := strings.TrimSuffix(strings.TrimSpace(r.Str), "%")
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}

// gapList flattens a gaps value into strings. Arrays of strings are used
// as-is; objects in arrays contribute their description or message field
// (or their compact JSON); a map contributes "key: value" entries in key
// order.
func gapList(r gjson.Result) []string {
	var gaps []string
	switch {
	case r.IsArray():
		r.ForEach(func(_, item gjson.Result) bool {
			if g := gapText(item); g != "" {
				gaps = append(gaps, g)
			}
			return true
		})
	case r.IsObject():
		type kv struct{ k, v string }
		var entries []kv
		r.ForEach(func(key, item gjson.Result) bool {
			entries = append(entries, kv{key.String(), gapText(item)})
			return true
		})
		sort.Slice(entries, func(i, j int) bool { return entries[i].k < entries[j].k })
		for _, e := range entries {
			if e.v == "" {
				gaps = append(gaps, e.k)
			} else {
				gaps = append(gaps, e.k+": "+e.v)
			}
		}
	case r.Type == gjson.String:
		if s := strings.TrimSpace(r.Str); s != "" {
			gaps = append(gaps, s)
		}
	}
	return gaps
}

func gapText(item gjson.Result) string {
	if item.IsObject() {
		for _, key := range []string{"description", "message", "gap", "name"} {
			if f := item.Get(key); f.Type == gjson.String && f.Str != "" {
				return f.Str
			}
		}
		return item.Get("@ugly").Raw
	}
	if item.Type == gjson.Null {
		return ""
	}
	return strings.TrimSpace(item.String())
}

// extractLabeled uses the last "score: N" occurrence, since validators often
// print intermediate scores before the final one. "score: 7/10" reads as a
// ratio.
func extractLabeled(output string) (Score, bool) {
	matches := labeledPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return NoScore, false
	}
	m := matches[len(matches)-1]
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return NoScore, false
	}
	if m[2] != "" {
		den, err := strconv.ParseFloat(m[2], 64)
		if err == nil && den != 0 {
			return Scored(100 * num / den), true
		}
	}
	return Scored(num), true
}

// extractRatio uses the first "N/M" pair with a non-zero denominator.
func extractRatio(output string) (Score, bool) {
	for _, m := range ratioPattern.FindAllStringSubmatch(output, -1) {
		num, err1 := strconv.ParseFloat(m[1], 64)
		den, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || den == 0 {
			continue
		}
		return Scored(100 * num / den), true
	}
	return NoScore, false
}

// extractPercent uses the first standalone "N%" token.
func extractPercent(output string) (Score, bool) {
	m := percentPattern.FindStringSubmatch(output)
	if m == nil {
		return NoScore, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return NoScore, false
	}
	return Scored(v), true
}
