package resolve

import (
	"regexp"
	"strings"
	"sync"
)

var patternCache sync.Map // pattern -> *regexp.Regexp

// MatchRoute reports whether route matches the shell-style pattern. Unlike
// path.Match a '*' also crosses '/', so "/products/*" matches
// "/products/42/reviews".
func MatchRoute(pattern, route string) bool {
	re := compilePattern(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(route)
}

func compilePattern(pattern string) *regexp.Regexp {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}
	re, err := regexp.Compile(translate(pattern))
	if err != nil {
		re = nil
	}
	patternCache.Store(pattern, re)
	return re
}

// translate turns a glob into an anchored regular expression:
// '*' any run, '?' any single character, [seq] and [!seq] character
// classes. An unterminated '[' is literal. Reversed ranges such as z-a are
// empty and dropped; a class left empty matches nothing, or any character
// when negated.
func translate(pattern string) string {
	pat := []rune(pattern)
	n := len(pat)

	var res strings.Builder
	res.WriteString(`(?s)^`)

	for i := 0; i < n; {
		c := pat[i]
		i++
		switch c {
		case '*':
			for i < n && pat[i] == '*' {
				i++
			}
			res.WriteString(`.*`)
		case '?':
			res.WriteString(`.`)
		case '[':
			j := i
			if j < n && pat[j] == '!' {
				j++
			}
			if j < n && pat[j] == ']' {
				j++
			}
			for j < n && pat[j] != ']' {
				j++
			}
			if j >= n {
				res.WriteString(`\[`)
				continue
			}

			negate := pat[i] == '!'
			start := i
			if negate {
				start++
			}
			members := dropEmptyRanges(pat[start:j])
			i = j + 1

			if len(members) == 0 {
				if negate {
					res.WriteString(`.`)
				} else {
					res.WriteString(neverMatch)
				}
				continue
			}

			class := string(members)
			if negate {
				class = "!" + class
			}
			class = strings.ReplaceAll(class, `\`, `\\`)
			class = strings.ReplaceAll(class, `[`, `\[`)
			switch {
			case strings.HasPrefix(class, "!"):
				class = "^" + class[1:]
			case strings.HasPrefix(class, "^"):
				class = `\` + class
			}
			res.WriteString("[" + class + "]")
		default:
			res.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	res.WriteString(`$`)
	return res.String()
}

// neverMatch is a class that no rune satisfies
const neverMatch = `[^\x00-\x{10FFFF}]`

// dropEmptyRanges removes ranges whose bounds are reversed
func dropEmptyRanges(class []rune) []rune {
	out := make([]rune, 0, len(class))
	for k := 0; k < len(class); {
		if k+2 < len(class) && class[k+1] == '-' && class[k] > class[k+2] {
			k += 3
			continue
		}
		out = append(out, class[k])
		k++
	}
	return out
}
