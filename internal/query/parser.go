package query

import (
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// Structured keywords. Dispatch happens on the first token only; any
// other first token means the whole string is a raw SQL descriptor.
const (
	kwLookup    = "LOOKUP"
	kwFuzzy     = "FUZZY"
	kwSearch    = "SEARCH"
	kwTraverse  = "TRAVERSE"
	kwThreshold = "THRESHOLD"
	kwLimit     = "LIMIT"
	kwDepth     = "DEPTH"
	kwWhere     = "WHERE"
	kwOrder     = "ORDER"
	kwBy        = "BY"
	kwType      = "TYPE"
	kwFrom      = "FROM"
	kwWith      = "WITH"
)

// Parse turns a query string into exactly one descriptor, or fails
// with a *types.ParseError naming the offending token and offset.
// Keyword recognition is case-insensitive.
func Parse(input string) (Query, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &types.ParseError{Msg: "empty query", Pos: 0}
	}

	switch firstWord(input) {
	case kwLookup, kwFuzzy, kwSearch, kwTraverse:
		// fall through to structured parsing
	default:
		// Everything else — including multi-statement WITH prefixes —
		// is raw SQL, passed through verbatim.
		return &SQL{Raw: input}, nil
	}

	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.typ != tokEOF {
		return nil, p.errf(t, "unexpected trailing token")
	}
	return q, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.typ != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errf(t token, msg string) error {
	return &types.ParseError{Msg: msg, Token: t.text, Pos: t.pos}
}

// parseQuery parses one descriptor starting at the current token.
// Used both for top-level queries and for TRAVERSE seeds; each variant
// consumes only the modifiers it recognizes and stops at foreign ones.
func (p *parser) parseQuery() (Query, error) {
	t := p.peek()
	switch keyword(t) {
	case kwLookup:
		p.next()
		return p.parseLookup()
	case kwFuzzy:
		p.next()
		return p.parseFuzzy()
	case kwSearch:
		p.next()
		return p.parseSearch()
	case kwTraverse:
		p.next()
		return p.parseTraverse()
	}
	return nil, p.errf(t, "expected LOOKUP, FUZZY, SEARCH or TRAVERSE")
}

// parseLookup handles LOOKUP "label" and LOOKUP ["a","b","c"].
func (p *parser) parseLookup() (Query, error) {
	t := p.peek()
	switch t.typ {
	case tokString, tokWord:
		p.next()
		return &Lookup{Keys: []string{t.text}}, nil
	case tokLBracket:
		p.next()
		var keys []string
		for {
			kt := p.next()
			if kt.typ != tokString && kt.typ != tokWord {
				return nil, p.errf(kt, "expected label in lookup list")
			}
			keys = append(keys, kt.text)
			sep := p.next()
			if sep.typ == tokRBracket {
				return &Lookup{Keys: keys}, nil
			}
			if sep.typ != tokComma {
				return nil, p.errf(sep, "expected ',' or ']' in lookup list")
			}
		}
	}
	return nil, p.errf(t, "expected label or label list after LOOKUP")
}

// parseFuzzy handles FUZZY "text" [THRESHOLD t] [LIMIT n].
// Modifiers are positionally independent of each other.
func (p *parser) parseFuzzy() (Query, error) {
	txt := p.next()
	if txt.typ != tokString && txt.typ != tokWord {
		return nil, p.errf(txt, "expected search text after FUZZY")
	}

	q := &Fuzzy{Text: txt.text, Threshold: DefaultThreshold, Limit: DefaultFuzzyLimit}
	for {
		switch keyword(p.peek()) {
		case kwThreshold:
			p.next()
			num, err := p.parseFloat()
			if err != nil {
				return nil, err
			}
			if num < 0 || num > 1 {
				return nil, p.errf(p.toks[p.i-1], "THRESHOLD must be between 0.0 and 1.0")
			}
			q.Threshold = num
		case kwLimit:
			p.next()
			n, err := p.parsePositiveInt()
			if err != nil {
				return nil, err
			}
			q.Limit = n
		default:
			return q, nil
		}
	}
}

// parseSearch handles SEARCH "text" [FROM kind] [WHERE "predicate"] [LIMIT n].
func (p *parser) parseSearch() (Query, error) {
	txt := p.next()
	if txt.typ != tokString && txt.typ != tokWord {
		return nil, p.errf(txt, "expected search text after SEARCH")
	}

	q := &Search{Text: txt.text, Kind: DefaultSearchKind, Limit: DefaultSearchLimit}
	for {
		switch keyword(p.peek()) {
		case kwFrom:
			p.next()
			kt := p.next()
			if kt.typ != tokWord && kt.typ != tokString {
				return nil, p.errf(kt, "expected entity kind after FROM")
			}
			kind, err := types.ParseKind(strings.ToLower(kt.text))
			if err != nil {
				return nil, p.errf(kt, "unknown entity kind")
			}
			q.Kind = kind
		case kwWhere:
			p.next()
			pt := p.next()
			if pt.typ != tokString {
				return nil, p.errf(pt, "expected quoted predicate after WHERE")
			}
			q.Predicate = pt.text
		case kwLimit:
			p.next()
			n, err := p.parsePositiveInt()
			if err != nil {
				return nil, err
			}
			q.Limit = n
		default:
			return q, nil
		}
	}
}

// parseTraverse handles
//
//	TRAVERSE [type1,type2] WITH <seed-query> [DEPTH n] [ORDER BY expr] [LIMIT n]
//
// Edge types may be written bare (TRAVERSE authored_by WITH ...),
// bracketed, or prefixed with TYPE. The seed sub-parser consumes every
// modifier it recognizes, so a LIMIT appearing before DEPTH/ORDER BY
// binds to the seed and a LIMIT after them binds to the traversal.
func (p *parser) parseTraverse() (Query, error) {
	edgeTypes, err := p.parseEdgeTypes()
	if err != nil {
		return nil, err
	}

	wt := p.next()
	if keyword(wt) != kwWith {
		return nil, p.errf(wt, "expected WITH <seed-query> in TRAVERSE")
	}

	seed, err := p.parseQuery()
	if err != nil {
		return nil, err
	}

	q := &Traverse{
		EdgeTypes: edgeTypes,
		Seed:      seed,
		Depth:     DefaultTraverseDepth,
		Limit:     DefaultTraverseLimit,
	}
	for {
		switch keyword(p.peek()) {
		case kwDepth:
			p.next()
			n, err := p.parseNonNegativeInt()
			if err != nil {
				return nil, err
			}
			q.Depth = n
		case kwLimit:
			p.next()
			n, err := p.parsePositiveInt()
			if err != nil {
				return nil, err
			}
			q.Limit = n
		case kwOrder:
			p.next()
			bt := p.next()
			if keyword(bt) != kwBy {
				return nil, p.errf(bt, "expected BY after ORDER")
			}
			expr, err := p.parseOrderExpr()
			if err != nil {
				return nil, err
			}
			q.OrderBy = expr
		default:
			return q, nil
		}
	}
}

// parseEdgeTypes consumes the optional edge-type list before WITH.
func (p *parser) parseEdgeTypes() ([]string, error) {
	if keyword(p.peek()) == kwType {
		p.next()
	}

	// Bracketed form: [a, b, c]
	if p.peek().typ == tokLBracket {
		p.next()
		var out []string
		for {
			t := p.next()
			if t.typ != tokWord && t.typ != tokString {
				return nil, p.errf(t, "expected edge type in list")
			}
			out = append(out, t.text)
			sep := p.next()
			if sep.typ == tokRBracket {
				return out, nil
			}
			if sep.typ != tokComma {
				return nil, p.errf(sep, "expected ',' or ']' in edge type list")
			}
		}
	}

	// Bare form: zero or more comma-separated words before WITH.
	var out []string
	for {
		t := p.peek()
		if keyword(t) == kwWith || t.typ == tokEOF {
			return out, nil
		}
		if t.typ != tokWord && t.typ != tokString {
			return nil, p.errf(t, "expected edge type or WITH")
		}
		p.next()
		out = append(out, t.text)
		if p.peek().typ == tokComma {
			p.next()
		}
	}
}

// parseOrderExpr collects the ordering expression: one or two words
// (field plus optional asc/desc direction).
func (p *parser) parseOrderExpr() (string, error) {
	ft := p.next()
	if ft.typ != tokWord {
		return "", p.errf(ft, "expected ordering field after ORDER BY")
	}
	expr := strings.ToLower(ft.text)
	if d := keyword(p.peek()); d == "ASC" || d == "DESC" {
		p.next()
		expr += " " + strings.ToLower(d)
	}
	return expr, nil
}

func (p *parser) parseFloat() (float64, error) {
	t := p.next()
	if t.typ != tokNumber {
		return 0, p.errf(t, "expected a number")
	}
	return t.num, nil
}

func (p *parser) parsePositiveInt() (int, error) {
	t := p.next()
	if t.typ != tokNumber || t.num != float64(int(t.num)) || int(t.num) < 1 {
		return 0, p.errf(t, "expected a positive integer")
	}
	return int(t.num), nil
}

func (p *parser) parseNonNegativeInt() (int, error) {
	t := p.next()
	if t.typ != tokNumber || t.num != float64(int(t.num)) || int(t.num) < 0 {
		return 0, p.errf(t, "expected a non-negative integer")
	}
	return int(t.num), nil
}
