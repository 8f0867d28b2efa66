package query

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/scrypster/recall/pkg/types"
)

// tokenType classifies lexer output.
type tokenType int

const (
	tokWord tokenType = iota // bare identifier or keyword
	tokString                // quoted literal, quotes stripped
	tokNumber                // integer or float literal
	tokLBracket
	tokRBracket
	tokComma
	tokEOF
)

// token is one lexeme with its byte offset in the original input.
type token struct {
	typ  tokenType
	text string  // raw text (unquoted for tokString)
	num  float64 // populated for tokNumber
	pos  int
}

// isWordRune reports whether r can appear inside a bare word.
// Words cover keywords, edge types and kind names; labels with spaces
// or punctuation must be quoted.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == '*'
}

// lex tokenizes a structured query string. It is only invoked after
// the first word dispatched to a structured keyword; raw SQL text is
// never lexed beyond that first word.
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '[':
			toks = append(toks, token{typ: tokLBracket, text: "[", pos: i})
			i++
		case c == ']':
			toks = append(toks, token{typ: tokRBracket, text: "]", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{typ: tokComma, text: ",", pos: i})
			i++

		case c == '"' || c == '\'':
			lit, next, err := lexQuoted(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{typ: tokString, text: lit, pos: i})
			i = next

		case c >= '0' && c <= '9':
			start := i
			for i < n && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			text := input[start:i]
			num, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &types.ParseError{Msg: "invalid number", Token: text, Pos: start}
			}
			toks = append(toks, token{typ: tokNumber, text: text, num: num, pos: start})

		default:
			r := rune(c)
			if !isWordRune(r) {
				return nil, &types.ParseError{Msg: "unexpected character", Token: string(c), Pos: i}
			}
			start := i
			for i < n && isWordRune(rune(input[i])) {
				i++
			}
			toks = append(toks, token{typ: tokWord, text: input[start:i], pos: start})
		}
	}

	toks = append(toks, token{typ: tokEOF, pos: n})
	return toks, nil
}

// lexQuoted scans a quoted literal starting at input[start] and returns
// the unescaped text plus the index after the closing quote. Backslash
// escapes the quote character and itself.
func lexQuoted(input string, start int) (string, int, error) {
	quote := input[start]
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		if c == '\\' && i+1 < len(input) && (input[i+1] == quote || input[i+1] == '\\') {
			sb.WriteByte(input[i+1])
			i += 2
			continue
		}
		if c == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(c)
		i++
	}
	return "", 0, &types.ParseError{Msg: "unterminated string literal", Token: input[start:min(start+16, len(input))], Pos: start}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// keywordAt reports the upper-cased keyword form of a word token.
func keyword(t token) string {
	if t.typ != tokWord {
		return ""
	}
	return strings.ToUpper(t.text)
}

// firstWord extracts the leading bare word of a query string without
// full tokenization, so raw SQL with arbitrary syntax never trips the
// structured lexer.
func firstWord(input string) string {
	s := strings.TrimLeft(input, " \t\r\n")
	end := 0
	for end < len(s) && isWordRune(rune(s[end])) {
		end++
	}
	return strings.ToUpper(s[:end])
}
