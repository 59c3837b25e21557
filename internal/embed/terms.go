package embed

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// stopwords carry no topical signal in questions or notes.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a an the and or but nor of to in on at for with about from by into onto over
		is are was were be been being am do does did doing have has had having
		i me my mine we us our you your yours he him his she her it its they them their
		this that these those there here what which who whom whose when where why how
		tell show give find list all any some every each please can could would should
		will shall may might must just also so than then too very not no yes
		know anything something everything remember recall ever`) {
		stopwords[w] = struct{}{}
	}
}

// Tokens splits text into lower-cased word tokens.
func Tokens(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Terms returns the content-bearing tokens of text: stopwords removed and a
// plural "s" stripped so "reviews" matches "review".
func Terms(text string) []string {
	var out []string
	for _, tok := range Tokens(text) {
		if _, ok := stopwords[tok]; ok {
			continue
		}
		out = append(out, Stem(tok))
	}
	return out
}

// Stem strips a trailing plural "s" from words longer than three runes,
// leaving "ss" endings alone.
func Stem(tok string) string {
	if len([]rune(tok)) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return strings.TrimSuffix(tok, "s")
	}
	return tok
}
