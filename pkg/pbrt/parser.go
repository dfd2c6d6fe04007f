package pbrt

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/pkg/errors"
	"github.com/tdewolff/parse/v2"
)

// Sentinel errors wrapped by SyntaxError.
var (
	ErrSyntax           = errors.New("syntax error")
	ErrUnknownDirective = errors.New("unknown directive")
	ErrArity            = errors.New("wrong number of arguments")
)

// SyntaxError reports malformed input. Parsing never returns partial results
// alongside it.
type SyntaxError struct {
	Line     int
	Column   int
	Fragment string // offending text, up to the end of its line
	Message  string
	Err      error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d:%d: %s near %q", e.Line, e.Column, e.Message, e.Fragment)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parse turns pbrt scene text into an ordered list of directives. The whole
// input must be consumed; any malformed directive fails the entire parse.
func Parse(src string) ([]Directive, error) {
	p := newParser(StripComments(src))
	return p.parse()
}

// ParseFile reads and parses a scene file. Include directives are left in
// the result for the consumer to resolve.
func ParseFile(path string) ([]Directive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read scene file %s", path)
	}
	directives, err := Parse(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return directives, nil
}

type parser struct {
	src        string
	lex        *lexer
	tok        token
	peeked     bool
	lineStarts []int
}

func newParser(src string) *parser {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &parser{src: src, lex: newLexer(src), lineStarts: starts}
}

func (p *parser) peek() token {
	if !p.peeked {
		p.tok = p.lex.next()
		p.peeked = true
	}
	return p.tok
}

func (p *parser) next() token {
	t := p.peek()
	p.peeked = false
	return t
}

func (p *parser) line(offset int) int {
	return sort.Search(len(p.lineStarts), func(i int) bool { return p.lineStarts[i] > offset })
}

func (p *parser) errorf(offset int, sentinel error, format string, args ...interface{}) error {
	line, col, _ := parse.Position(strings.NewReader(p.src), offset)
	fragment := ""
	if offset < len(p.src) {
		fragment = p.src[offset:]
		if i := strings.IndexByte(fragment, '\n'); i >= 0 {
			fragment = fragment[:i]
		}
		fragment = strings.TrimSpace(fragment)
		if len(fragment) > 60 {
			fragment = fragment[:60]
		}
	}
	return &SyntaxError{
		Line:     line,
		Column:   col,
		Fragment: fragment,
		Message:  fmt.Sprintf(format, args...),
		Err:      sentinel,
	}
}

func (p *parser) parse() ([]Directive, error) {
	var directives []Directive
	for {
		t := p.next()
		switch t.typ {
		case tokEOF:
			return directives, nil
		case tokIdent:
			d, err := p.parseDirective(t)
			if err != nil {
				return nil, err
			}
			directives = append(directives, d)
		case tokError:
			return nil, p.errorf(t.offset, ErrSyntax, "unexpected %q", t.text)
		default:
			return nil, p.errorf(t.offset, ErrSyntax, "expected directive name, found %s", t.typ)
		}
	}
}

func (p *parser) parseDirective(name token) (Directive, error) {
	sig, ok := LookupSignature(name.text)
	if !ok {
		msg := fmt.Sprintf("unknown directive %q", name.text)
		if s := Suggest(name.text, DirectiveNames()); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		return Directive{}, p.errorf(name.offset, ErrUnknownDirective, "%s", msg)
	}

	d := Directive{Name: name.text, Line: p.line(name.offset)}
	var err error
	switch sig.Arity {
	case ArityVoid:
	case ArityFloats:
		var values []float64
		for i := 0; i < sig.Count; i++ {
			t := p.next()
			if t.typ != tokNumber {
				return Directive{}, p.errorf(name.offset, ErrArity, "%s expects %d numbers, found %s after %d", name.text, sig.Count, t.typ, i)
			}
			v, err := p.number(t)
			if err != nil {
				return Directive{}, err
			}
			values = append(values, v)
		}
		d.Args = NewParamSet(Param{Type: "float", Name: argsName, Kind: KindFloat, Floats: values})
	case ArityFloatArray:
		values, err := p.floatArray(name)
		if err != nil {
			return Directive{}, err
		}
		if len(values) != sig.Count {
			return Directive{}, p.errorf(name.offset, ErrArity, "%s expects %d values, found %d", name.text, sig.Count, len(values))
		}
		d.Args = NewParamSet(Param{Type: "float", Name: argsName, Kind: KindFloat, Floats: values})
	case ArityString:
		d.Args, err = p.quoted(name, 1, 1)
	case ArityStringPair:
		d.Args, err = p.quoted(name, 1, 2)
	case ArityKeyword:
		t := p.next()
		if t.typ != tokIdent || !activeTransformKeywords[t.text] {
			return Directive{}, p.errorf(name.offset, ErrArity, "%s expects All, StartTime or EndTime", name.text)
		}
		d.Args = NewParamSet(Param{Type: "string", Name: argsName, Kind: KindString, Strings: []string{t.text}})
	case ArityStringParams:
		if d.Args, err = p.quoted(name, 1, 1); err == nil {
			d.Params, err = p.params()
		}
	case ArityTextureParams:
		if d.Args, err = p.quoted(name, 3, 3); err == nil {
			d.Params, err = p.params()
		}
	}
	if err != nil {
		return Directive{}, err
	}
	return d, nil
}

// quoted reads between min and max quoted strings
func (p *parser) quoted(name token, min, max int) (*ParamSet, error) {
	var values []string
	for len(values) < max {
		t := p.peek()
		if t.typ == tokError {
			return nil, p.errorf(t.offset, ErrSyntax, "%s", t.text)
		}
		if t.typ != tokString {
			break
		}
		p.next()
		values = append(values, t.text)
	}
	if len(values) < min {
		return nil, p.errorf(name.offset, ErrArity, "%s expects %d quoted string(s), found %d", name.text, min, len(values))
	}
	return NewParamSet(Param{Type: "string", Name: argsName, Kind: KindString, Strings: values}), nil
}

func (p *parser) floatArray(name token) ([]float64, error) {
	if t := p.next(); t.typ != tokLBracket {
		return nil, p.errorf(name.offset, ErrArity, "%s expects a bracketed list of numbers", name.text)
	}
	var values []float64
	for {
		t := p.next()
		switch t.typ {
		case tokRBracket:
			return values, nil
		case tokNumber:
			v, err := p.number(t)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		default:
			return nil, p.errorf(t.offset, ErrSyntax, "expected number or ']', found %s", t.typ)
		}
	}
}

func (p *parser) number(t token) (float64, error) {
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return 0, p.errorf(t.offset, ErrSyntax, "invalid number %q", t.text)
	}
	return v, nil
}

// params reads zero or more "type name" value entries
func (p *parser) params() (*ParamSet, error) {
	ps := &ParamSet{}
	for p.peek().typ == tokString {
		decl := p.next()
		fields := strings.Fields(decl.text)
		if len(fields) != 2 {
			return nil, p.errorf(decl.offset, ErrSyntax, "malformed parameter declaration %q", decl.text)
		}
		typ, name := fields[0], fields[1]
		kind, ok := KindForType(typ)
		if !ok {
			return nil, p.errorf(decl.offset, ErrSyntax, "unknown parameter type %q", typ)
		}

		values, err := p.values(decl)
		if err != nil {
			return nil, err
		}
		if typ == "spectrum" && len(values) > 0 && values[0].typ == tokString {
			kind = KindString
		}
		param, err := p.convert(decl, typ, name, kind, values)
		if err != nil {
			return nil, err
		}
		ps.Add(param)
	}
	return ps, nil
}

// values reads a bracketed list or a single bare value
func (p *parser) values(decl token) ([]token, error) {
	t := p.next()
	switch t.typ {
	case tokString, tokNumber, tokIdent:
		return []token{t}, nil
	case tokLBracket:
	default:
		return nil, p.errorf(decl.offset, ErrSyntax, "parameter %q has no value", decl.text)
	}

	var values []token
	for {
		t := p.next()
		switch t.typ {
		case tokRBracket:
			return values, nil
		case tokString, tokNumber, tokIdent:
			values = append(values, t)
		default:
			return nil, p.errorf(decl.offset, ErrSyntax, "unterminated value list for %q", decl.text)
		}
	}
}

func (p *parser) convert(decl token, typ, name string, kind Kind, values []token) (Param, error) {
	param := Param{Type: typ, Name: name, Kind: kind}
	for _, t := range values {
		switch kind {
		case KindString:
			if t.typ != tokString {
				return Param{}, p.errorf(t.offset, ErrSyntax, "%q expects quoted strings", decl.text)
			}
			param.Strings = append(param.Strings, t.text)
		case KindBool:
			if t.text != "true" && t.text != "false" || t.typ == tokNumber {
				return Param{}, p.errorf(t.offset, ErrSyntax, "%q expects true or false", decl.text)
			}
			param.Bools = append(param.Bools, t.text == "true")
		case KindInt:
			if t.typ != tokNumber {
				return Param{}, p.errorf(t.offset, ErrSyntax, "%q expects numbers", decl.text)
			}
			v, err := p.number(t)
			if err != nil {
				return Param{}, err
			}
			if v != math.Trunc(v) {
				return Param{}, p.errorf(t.offset, ErrSyntax, "%q expects integers, found %s", decl.text, t.text)
			}
			param.Ints = append(param.Ints, int(v))
		default:
			if t.typ != tokNumber {
				return Param{}, p.errorf(t.offset, ErrSyntax, "%q expects numbers", decl.text)
			}
			v, err := p.number(t)
			if err != nil {
				return Param{}, err
			}
			param.Floats = append(param.Floats, v)
		}
	}
	return param, nil
}

// Suggest returns the candidate most similar to name, if any is close
func Suggest(name string, candidates []string) string {
	best, bestScore := "", 0.0
	lev := metrics.NewLevenshtein()
	for _, c := range candidates {
		if score := strutil.Similarity(name, c, lev); score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < 0.6 {
		return ""
	}
	return best
}
