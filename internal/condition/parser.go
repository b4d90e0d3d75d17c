// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/event"
	"github.com/logreduce/reduced/internal/value"
)

// Parse compiles a textual condition expression into an Expr.
//
// Grammar (lowest to highest precedence):
//
//	or-expr    := and-expr ("||" and-expr)*
//	and-expr   := term ("&&" term)*
//	term       := "(" or-expr ")" | "has(" field ")" | field ("==" | "!=") literal | field
//	literal    := string | number | "true" | "false" | "null"
//
// A bare field name is true iff the field is present (any value,
// including null); has(field) is the same test spelled explicitly.
func Parse(src string) (Expr, error) {
	p := &parser{toks: tokenize(src), src: src}
	expr, err := p.parseOr()
	if err != nil {
		return nil, errors.Wrapf(err, "condition: parsing %q", src)
	}
	if p.pos != len(p.toks) {
		return nil, errors.Errorf("condition: parsing %q: unexpected trailing input at %q", src, p.toks[p.pos])
	}
	return expr, nil
}

// --- tokenizer ---

func tokenize(src string) []string {
	var toks []string
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(' || c == ')':
			toks = append(toks, string(c))
			i++
		case strings.HasPrefix(src[i:], "&&"):
			toks = append(toks, "&&")
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			toks = append(toks, "||")
			i += 2
		case strings.HasPrefix(src[i:], "=="):
			toks = append(toks, "==")
			i += 2
		case strings.HasPrefix(src[i:], "!="):
			toks = append(toks, "!=")
			i += 2
		case c == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' {
				j++
			}
			toks = append(toks, src[i:min(j+1, len(src))])
			i = j + 1
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t\n()", rune(src[j])) &&
				!strings.HasPrefix(src[j:], "&&") && !strings.HasPrefix(src[j:], "||") &&
				!strings.HasPrefix(src[j:], "==") && !strings.HasPrefix(src[j:], "!=") {
				j++
			}
			if j == i {
				j++
			}
			toks = append(toks, src[i:j])
			i = j
		}
	}
	return toks
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// --- recursive-descent parser ---

type parser struct {
	toks []string
	pos  int
	src  string
}

func (p *parser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orExpr{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek() == "&&" {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &andExpr{left, right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	tok := p.peek()
	if tok == "" {
		return nil, errors.New("unexpected end of expression")
	}
	if tok == "(" {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, errors.Errorf("expected ')', got %q", p.peek())
		}
		p.next()
		return inner, nil
	}
	// "(" is tokenized separately, so has(field) arrives as the four
	// tokens has ( field ).
	if tok == "has" && p.pos+1 < len(p.toks) && p.toks[p.pos+1] == "(" {
		p.next() // has
		p.next() // (
		field := p.next()
		if p.peek() != ")" {
			return nil, errors.Errorf("expected ')' after has(%s", field)
		}
		p.next()
		return &presenceExpr{field: field}, nil
	}

	field := p.next()
	op := p.peek()
	if op == "==" || op == "!=" {
		p.next()
		litTok := p.next()
		lit, err := parseLiteral(litTok)
		if err != nil {
			return nil, err
		}
		return &compareExpr{field: field, negate: op == "!=", literal: lit}, nil
	}
	return &presenceExpr{field: field}, nil
}

func parseLiteral(tok string) (value.Value, error) {
	if len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"' {
		return value.String(tok[1 : len(tok)-1]), nil
	}
	switch tok {
	case "true":
		return value.Bool(true), nil
	case "false":
		return value.Bool(false), nil
	case "null":
		return value.Null(), nil
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return value.Int(i), nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return value.Float(f), nil
	}
	return value.Value{}, errors.Errorf("condition: invalid literal %q", tok)
}

// --- expression tree ---

type presenceExpr struct{ field string }

func (e *presenceExpr) eval(ev event.Event) (bool, error) {
	_, ok := value.Lookup(ev.Value, e.field)
	return ok, nil
}

func (e *presenceExpr) String() string { return e.field }

type compareExpr struct {
	field   string
	negate  bool
	literal value.Value
}

func (e *compareExpr) eval(ev event.Event) (bool, error) {
	v, ok := value.Lookup(ev.Value, e.field)
	if !ok {
		return e.negate, nil // missing field is never == anything, but is != everything
	}
	eq := value.Equal(v, e.literal)
	if e.negate {
		return !eq, nil
	}
	return eq, nil
}

func (e *compareExpr) String() string {
	op := "=="
	if e.negate {
		op = "!="
	}
	return fmt.Sprintf("%s %s %s", e.field, op, literalString(e.literal))
}

// literalString renders a comparison literal for String(); value.Value
// has no fmt.Stringer of its own since its String() accessor reports
// ok alongside the string.
func literalString(v value.Value) string {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.String()
		return strconv.Quote(s)
	case value.KindInt:
		i, _ := v.Int()
		return strconv.FormatInt(i, 10)
	case value.KindFloat:
		f, _ := v.Float()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case value.KindBool:
		b, _ := v.Bool()
		return strconv.FormatBool(b)
	case value.KindNull:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}

type andExpr struct{ left, right Expr }

func (e *andExpr) eval(ev event.Event) (bool, error) {
	l, err := e.left.eval(ev)
	if err != nil || !l {
		return false, err
	}
	return e.right.eval(ev)
}

func (e *andExpr) String() string { return e.left.String() + " && " + e.right.String() }

type orExpr struct{ left, right Expr }

func (e *orExpr) eval(ev event.Event) (bool, error) {
	l, err := e.left.eval(ev)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return e.right.eval(ev)
}

func (e *orExpr) String() string { return e.left.String() + " || " + e.right.String() }
