// Package keywords tags clinical terms in a transcript: symptoms, diseases
// and time expressions. The vocabularies are fixed and read-only.
package keywords

import (
	"regexp"
	"sort"
	"strings"
)

type Keywords struct {
	Symptoms        []string `json:"symptoms"`
	Diseases        []string `json:"diseases"`
	TimeExpressions []string `json:"time_expressions"`
}

var symptomTerms = []string{
	"fever", "cough", "headache", "nausea", "pain", "chills", "fatigue", "vomiting", "rash", "sore throat",
	"shortness of breath", "dizziness", "runny nose", "diarrhea", "constipation", "itching", "sneezing",
	"muscle pain", "joint pain", "abdominal pain", "back pain", "weakness", "loss of appetite", "sweating",
	"bleeding", "congestion", "chest pain", "cold", "burning sensation", "swelling", "palpitations",
}

var diseaseTerms = []string{"diabetes", "asthma", "covid", "flu", "malaria", "tuberculosis", "hypertension"}

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}\s?(?:am|pm)\b`),
	regexp.MustCompile(`\b\d{1,2}:\d{2}\b`),
	regexp.MustCompile(`\b(?:yesterday|today|tonight|tomorrow|last night|last week|next week|this morning|since)\b`),
	regexp.MustCompile(`\b\d+\s(?:days?|weeks?|months?)\s(?:ago|later)\b`),
}

type term struct {
	text string
	re   *regexp.Regexp
}

var (
	symptoms = compileTerms(symptomTerms)
	diseases = compileTerms(diseaseTerms)
)

// compileTerms matches each term as whole words, allowing any run of
// whitespace between the words of a phrase.
func compileTerms(list []string) []term {
	out := make([]term, 0, len(list))
	for _, t := range list {
		words := strings.Fields(t)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		out = append(out, term{text: t, re: regexp.MustCompile(`\b` + strings.Join(words, `\s+`) + `\b`)})
	}
	return out
}

// Extract classifies text. Matching is case-insensitive; every list is
// de-duplicated and sorted.
func Extract(text string) Keywords {
	lower := strings.ToLower(text)
	k := Keywords{
		Symptoms:        matchTerms(symptoms, lower),
		Diseases:        matchTerms(diseases, lower),
		TimeExpressions: []string{},
	}

	seen := map[string]bool{}
	for _, re := range timePatterns {
		for _, m := range re.FindAllString(lower, -1) {
			if !seen[m] {
				seen[m] = true
				k.TimeExpressions = append(k.TimeExpressions, m)
			}
		}
	}
	sort.Strings(k.TimeExpressions)
	return k
}

func matchTerms(terms []term, lower string) []string {
	out := []string{}
	for _, t := range terms {
		if t.re.MatchString(lower) {
			out = append(out, t.text)
		}
	}
	sort.Strings(out)
	return out
}
