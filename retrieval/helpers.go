package retrieval

import (
	"strings"
)

// ftsSpecial strips FTS5 syntax characters from user input.
var ftsSpecial = strings.NewReplacer(
	"\"", " ", "*", " ", "(", " ", ")", " ",
	"+", " ", "-", " ", "^", " ", ":", " ",
	"?", " ", "[", " ", "]", " ", "{", " ",
	"}", " ", "!", " ", ".", " ", ",", " ",
	";", " ",
)

// extractSignificantTerms returns the lower-cased words of a query that are
// longer than two bytes and not stop words, without duplicates.
func extractSignificantTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range strings.Fields(ftsSpecial.Replace(query)) {
		lower := strings.ToLower(w)
		if len(lower) > 2 && !isStopWord(lower) && !seen[lower] {
			seen[lower] = true
			terms = append(terms, lower)
		}
	}
	return terms
}

// buildFTSQuery turns free text into an FTS5 OR query: the full phrase when
// there are several words, then each significant term quoted. Returns ""
// when nothing searchable is left.
func buildFTSQuery(query string) string {
	words := strings.Fields(ftsSpecial.Replace(query))
	if len(words) == 0 {
		return ""
	}

	var parts []string
	if len(words) > 1 {
		parts = append(parts, `"`+strings.Join(words, " ")+`"`)
	}
	for _, t := range extractSignificantTerms(query) {
		parts = append(parts, `"`+t+`"`)
	}
	if len(parts) == 0 {
		// Only short or stop words: search them as typed.
		for _, w := range words {
			parts = append(parts, `"`+w+`"`)
		}
	}
	return strings.Join(parts, " OR ")
}

// stopWords are Portuguese function words common in exam statements.
var stopWords = map[string]bool{
	"que": true, "para": true, "com": true, "por": true, "uma": true,
	"dos": true, "das": true, "nos": true, "nas": true, "não": true,
	"nao": true, "mais": true, "como": true, "mas": true, "sua": true,
	"seu": true, "suas": true, "seus": true, "pelo": true, "pela": true,
	"qual": true, "quais": true, "sobre": true, "entre": true, "quando": true,
	"este": true, "esta": true, "esse": true, "essa": true, "isso": true,
	"ele": true, "ela": true, "são": true, "foi": true, "ser": true,
	"ter": true, "tem": true, "sem": true, "até": true, "também": true,
	"the": true, "and": true, "for": true,
}

func isStopWord(w string) bool {
	return stopWords[strings.ToLower(w)]
}
