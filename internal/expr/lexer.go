package expr

import (
	"strconv"
	"strings"
	"unicode"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokVar
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokCaret
	tokLParen
	tokRParen
	tokAssign
	tokIllegal
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

type lexer struct {
	s string
	i int
}

func (l *lexer) next() token {
	for l.i < len(l.s) && unicode.IsSpace(rune(l.s[l.i])) {
		l.i++
	}
	if l.i >= len(l.s) {
		return token{kind: tokEOF, pos: l.i}
	}

	start := l.i
	single := func(k tokenKind) token {
		l.i++
		return token{kind: k, text: l.s[start:l.i], pos: start}
	}

	switch l.s[l.i] {
	case '+':
		return single(tokPlus)
	case '-':
		return single(tokMinus)
	case '*':
		return single(tokStar)
	case '/':
		return single(tokSlash)
	case '^':
		return single(tokCaret)
	case '(':
		return single(tokLParen)
	case ')':
		return single(tokRParen)
	case '=':
		return single(tokAssign)
	case '{':
		return l.scanVar()
	case '}':
		l.i++
		return token{kind: tokIllegal, text: "unbalanced '}'", pos: start}
	}

	ch := rune(l.s[l.i])
	if isIdentStart(ch) {
		l.i++
		for l.i < len(l.s) && isIdentContinue(rune(l.s[l.i])) {
			l.i++
		}
		return token{kind: tokIdent, text: l.s[start:l.i], pos: start}
	}
	if ch == '.' || unicode.IsDigit(ch) {
		l.i = scanNumber(l.s, l.i)
		txt := l.s[start:l.i]
		f, err := strconv.ParseFloat(txt, 64)
		if err != nil || txt == "" {
			if l.i == start {
				l.i++
			}
			return token{kind: tokIllegal, text: "malformed number " + strconv.Quote(l.s[start:l.i]), pos: start}
		}
		return token{kind: tokNumber, text: txt, num: f, pos: start}
	}

	l.i++
	return token{kind: tokIllegal, text: "unrecognized token " + strconv.Quote(string(ch)), pos: start}
}

// scanVar reads a {name} reference.
func (l *lexer) scanVar() token {
	start := l.i
	end := strings.IndexAny(l.s[start+1:], "{}")
	if end < 0 || l.s[start+1+end] != '}' {
		l.i = len(l.s)
		return token{kind: tokIllegal, text: "unbalanced '{'", pos: start}
	}
	name := strings.TrimSpace(l.s[start+1 : start+1+end])
	l.i = start + end + 2
	if name == "" {
		return token{kind: tokIllegal, text: "empty variable reference", pos: start}
	}
	return token{kind: tokVar, text: name, pos: start}
}

func scanNumber(s string, i int) int {
	start := i
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && unicode.IsDigit(rune(s[i])) {
			i++
		}
	}
	if i > start && i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && unicode.IsDigit(rune(s[k])) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentContinue(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

