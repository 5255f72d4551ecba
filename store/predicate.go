// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package store

// Parsing and evaluation of --filter-style predicate expressions over a
// contigs row. Syntax follows sambamba's filter-expression style, reusing
// the Go parser to avoid writing a bespoke tokenizer/grammar:
//  https://github.com/biod/sambamba/wiki/%5Bsambamba-view%5D-Filter-expression-syntax.

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// PredicateHelp documents the predicate expression syntax accepted by
// ParsePredicate.
const PredicateHelp = `Predicate expression defines a boolean condition on a single contig row.

EXAMPLES:
   length >= 1000 && bid == 3
   bid != 0 || length > 5000
   re(cid, "^contig_[0-9]+$")

SYNTAX:

  Expressions are parsed using the Go parser; operator precedence follows
  Go's.

  expr = intliteral | stringliteral |
       re(expr, regexp) |  // partial regex match
       binary_op | equality_op | logical_op |
       (expr) | symbol

  binary_op    = expr > expr | expr >= expr | expr < expr | expr <= expr
  equality_op  = expr == expr | expr != expr
  logical_op   = expr && expr | expr || expr | !expr

  symbol = cid |     // contig name, string
       bid |          // bin ID, int
       length          // contig length in bases, int
`

type nodeType int

const (
	nodeInvalid nodeType = iota
	nodeIntConst
	nodeStrConst
	nodeNOT
	nodeLAND
	nodeLOR
	nodeEQL
	nodeNEQ
	nodeGEQ
	nodeLEQ
	nodeLSS
	nodeGTR
	nodeRegex

	nodeCid
	nodeBid
	nodeLength
)

type valueType int

const (
	valueTypeInt valueType = iota
	valueTypeStr
	valueTypeBool
)

type exprValue struct {
	vtype     valueType
	intValue  int64
	strValue  string
	boolValue bool
}

func boolValue(v bool) exprValue { return exprValue{vtype: valueTypeBool, boolValue: v} }
func intValue(v int64) exprValue { return exprValue{vtype: valueTypeInt, intValue: v} }
func strValue(v string) exprValue { return exprValue{vtype: valueTypeStr, strValue: v} }

// Predicate is a parsed, evaluatable filter expression over a contigs row.
type Predicate struct {
	ntype    nodeType
	vtype    valueType
	x, y     *Predicate
	intConst int64
	strConst string
	regexp   *regexp.Regexp
}

// All matches every contig row.
var All = mustParsePredicate("length >= 0")

func mustParsePredicate(s string) *Predicate {
	p, err := ParsePredicate(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether row satisfies p.
func (p *Predicate) Match(row ContigRow) bool {
	return p.evaluate(row).boolValue
}

func (p *Predicate) evaluate(row ContigRow) exprValue {
	switch p.ntype {
	case nodeIntConst:
		return intValue(p.intConst)
	case nodeStrConst:
		return strValue(p.strConst)
	case nodeRegex:
		x := p.x.evaluate(row)
		return boolValue(p.regexp.MatchString(x.strValue))
	case nodeCid:
		return strValue(row.Cid)
	case nodeBid:
		return intValue(int64(row.Bid))
	case nodeLength:
		return intValue(int64(row.Length))
	case nodeNOT:
		return boolValue(!p.x.evaluate(row).boolValue)
	case nodeLAND:
		return boolValue(p.x.evaluate(row).boolValue && p.y.evaluate(row).boolValue)
	case nodeLOR:
		return boolValue(p.x.evaluate(row).boolValue || p.y.evaluate(row).boolValue)
	case nodeGEQ, nodeLEQ, nodeLSS, nodeGTR, nodeEQL, nodeNEQ:
		x, y := p.x.evaluate(row), p.y.evaluate(row)
		switch x.vtype {
		case valueTypeInt:
			switch p.ntype {
			case nodeGEQ:
				return boolValue(x.intValue >= y.intValue)
			case nodeLEQ:
				return boolValue(x.intValue <= y.intValue)
			case nodeLSS:
				return boolValue(x.intValue < y.intValue)
			case nodeGTR:
				return boolValue(x.intValue > y.intValue)
			case nodeEQL:
				return boolValue(x.intValue == y.intValue)
			case nodeNEQ:
				return boolValue(x.intValue != y.intValue)
			}
		case valueTypeStr:
			switch p.ntype {
			case nodeGEQ:
				return boolValue(x.strValue >= y.strValue)
			case nodeLEQ:
				return boolValue(x.strValue <= y.strValue)
			case nodeLSS:
				return boolValue(x.strValue < y.strValue)
			case nodeGTR:
				return boolValue(x.strValue > y.strValue)
			case nodeEQL:
				return boolValue(x.strValue == y.strValue)
			case nodeNEQ:
				return boolValue(x.strValue != y.strValue)
			}
		}
	}
	panic(fmt.Sprintf("store: unevaluable predicate node %v", p.ntype))
}

type predicateParser struct {
	err error
}

func (pp *predicateParser) setError(err error) {
	if err != nil && pp.err == nil {
		pp.err = err
	}
}

func (pp *predicateParser) check(cond bool, message string, node interface{}) {
	if !cond {
		pp.setError(errors.Errorf("%s: %s", message, astString(node)))
	}
}

func (pp *predicateParser) parse(node interface{}) *Predicate {
	switch e := node.(type) {
	case *ast.ParenExpr:
		return pp.parse(e.X)
	case *ast.CallExpr:
		fun, ok := e.Fun.(*ast.Ident)
		if !ok || fun.Name != "re" {
			pp.setError(errors.Errorf("expected re(...), got %s", astString(e.Fun)))
			return nil
		}
		if len(e.Args) != 2 {
			pp.setError(errors.Errorf("re() takes two args: %s", astString(node)))
			return nil
		}
		x := pp.parse(e.Args[0])
		y := pp.parse(e.Args[1])
		if pp.err != nil {
			return nil
		}
		pp.check(x.vtype == valueTypeStr && y.vtype == valueTypeStr, "operands of re() must be string", node)
		re, err := regexp.Compile(y.strConst)
		pp.setError(err)
		return &Predicate{ntype: nodeRegex, vtype: valueTypeBool, x: x, regexp: re}
	case *ast.UnaryExpr:
		if e.Op != token.NOT {
			pp.setError(errors.Errorf("unsupported unary operator: %s", astString(node)))
			return nil
		}
		x := pp.parse(e.X)
		pp.check(x != nil && x.vtype == valueTypeBool, "operand of ! must be boolean", node)
		return &Predicate{ntype: nodeNOT, vtype: valueTypeBool, x: x}
	case *ast.BinaryExpr:
		x, y := pp.parse(e.X), pp.parse(e.Y)
		if pp.err != nil {
			return nil
		}
		var ntype nodeType
		switch e.Op {
		case token.LAND, token.AND:
			pp.check(x.vtype == valueTypeBool && y.vtype == valueTypeBool, "operands of && must be boolean", node)
			ntype = nodeLAND
		case token.LOR, token.OR:
			pp.check(x.vtype == valueTypeBool && y.vtype == valueTypeBool, "operands of || must be boolean", node)
			ntype = nodeLOR
		case token.EQL, token.NEQ:
			pp.check(x.vtype == y.vtype, "operands must be the same type", node)
			ntype = nodeEQL
			if e.Op == token.NEQ {
				ntype = nodeNEQ
			}
		case token.GEQ, token.LEQ, token.LSS, token.GTR:
			pp.check(x.vtype == y.vtype && x.vtype != valueTypeBool, "operands must be int or string of the same type", node)
			switch e.Op {
			case token.GEQ:
				ntype = nodeGEQ
			case token.LEQ:
				ntype = nodeLEQ
			case token.LSS:
				ntype = nodeLSS
			case token.GTR:
				ntype = nodeGTR
			}
		default:
			pp.setError(errors.Errorf("unsupported operator: %s", astString(node)))
			return nil
		}
		return &Predicate{ntype: ntype, vtype: valueTypeBool, x: x, y: y}
	case *ast.BasicLit:
		switch e.Kind {
		case token.STRING:
			v, err := strconv.Unquote(e.Value)
			pp.setError(err)
			return &Predicate{ntype: nodeStrConst, vtype: valueTypeStr, strConst: v}
		case token.INT:
			v, err := strconv.ParseInt(e.Value, 0, 64)
			pp.setError(err)
			return &Predicate{ntype: nodeIntConst, vtype: valueTypeInt, intConst: v}
		}
	case *ast.Ident:
		switch e.Name {
		case "cid":
			return &Predicate{ntype: nodeCid, vtype: valueTypeStr}
		case "bid":
			return &Predicate{ntype: nodeBid, vtype: valueTypeInt}
		case "length":
			return &Predicate{ntype: nodeLength, vtype: valueTypeInt}
		}
	}
	pp.setError(errors.Errorf("unrecognized expression: %s", astString(node)))
	return nil
}

func astString(node interface{}) string {
	return fmt.Sprintf("%T", node)
}

// ParsePredicate parses a filter expression (see PredicateHelp for syntax)
// into an evaluatable Predicate.
func ParsePredicate(src string) (*Predicate, error) {
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return nil, errors.Wrap(err, "store: parsing predicate")
	}
	pp := predicateParser{}
	node := pp.parse(expr)
	if pp.err != nil {
		return nil, pp.err
	}
	if node.vtype != valueTypeBool {
		return nil, errors.Errorf("store: not a boolean expression: %s", src)
	}
	return node, nil
}
