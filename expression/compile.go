/*
 * MIT License
 *
 * Copyright (c) 2024 corelink authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package expression

import (
	"strings"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
)

// Program is a compiled expression: a fixed set of datasource.Request values
// (one per distinct free variable, already submitted to the Manager) and a
// postfix token stream that Eval repeatedly reduces as fresh values arrive.
type Program struct {
	Source   string
	Requests []*datasource.Request

	postfix []*Token
	state   *State
}

// Eval reduces the program's postfix stream once, using values as the
// current value of every free variable keyed by the variable's source URI
// (datasource.Request.URI). It is safe to call repeatedly as new records
// arrive; running-aggregate functions keep state across calls via the
// Program's State.
func (p *Program) Eval(values map[string]float64) (float64, errs.Error) {
	return p.state.Eval(p.postfix, values)
}

// Compile parses src per section 4.M: semicolon-separated setup statements
// (StartAtTime, StartRelativeToNewest, ReportOffset, ...) configure a shared
// RequestConfig, and the final statement is the value expression. One
// datasource.Request is created and submitted to manager per distinct free
// variable in the value expression, configured per the accumulated
// RequestConfig, and bound to sink.
func Compile(src string, manager *datasource.Manager, sink datasource.Sink, moreToFollow bool) (*Program, errs.Error) {
	statements := splitTopLevelSemicolons(src)
	if len(statements) == 0 {
		return nil, errs.New(errs.ClassParse, 0, "expression: empty expression", nil)
	}

	cfg := &RequestConfig{}
	for _, stmt := range statements[:len(statements)-1] {
		postfix, err := compileStatement(stmt)
		if err != nil {
			return nil, err
		}
		if err := applyConfigStatement(cfg, postfix); err != nil {
			return nil, err
		}
	}

	valuePostfix, err := compileStatement(statements[len(statements)-1])
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*datasource.Request)
	var reqs []*datasource.Request
	for _, tok := range valuePostfix {
		if tok.Kind != TokVariable {
			continue
		}
		if existing, ok := seen[tok.Name]; ok {
			tok.Request = existing
			continue
		}
		req := datasource.NewRequest(sink, tok.Name)
		cfg.apply(req)
		seen[tok.Name] = req
		tok.Request = req
		reqs = append(reqs, req)
	}

	for _, req := range reqs {
		manager.AddRequest(req, moreToFollow)
	}

	return &Program{
		Source:   src,
		Requests: reqs,
		postfix:  valuePostfix,
		state:    NewState(),
	}, nil
}

// Validate runs src through the full tokenize/resolve/shunting-yard
// pipeline without submitting any requests, for a syntax-checking front
// end (expression/editor) to call ahead of Compile. It reports the same
// parse errors Compile would, discarding the compiled postfix streams.
func Validate(src string) errs.Error {
	statements := splitTopLevelSemicolons(src)
	if len(statements) == 0 {
		return errs.New(errs.ClassParse, 0, "expression: empty expression", nil)
	}
	cfg := &RequestConfig{}
	for i, stmt := range statements {
		postfix, err := compileStatement(stmt)
		if err != nil {
			return err
		}
		if i < len(statements)-1 {
			if err := applyConfigStatement(cfg, postfix); err != nil {
				return err
			}
		}
	}
	return nil
}

// compileStatement runs one semicolon-delimited statement through the
// tokenizer, identifier/function resolver, and shunting-yard compiler.
func compileStatement(stmt string) ([]*Token, errs.Error) {
	lexemes, err := Tokenize(stmt)
	if err != nil {
		return nil, err
	}
	toks, err := resolveTokens(lexemes)
	if err != nil {
		return nil, err
	}
	return shuntingYard(toks)
}

// applyConfigStatement evaluates a setup statement's postfix stream for its
// side effect alone: aborting (setup-function) tokens call Configure against
// cfg instead of producing a stack value, per section 9's effect system.
// Everything before the final aborting token is ordinary arithmetic used to
// build that function's arguments.
func applyConfigStatement(cfg *RequestConfig, postfix []*Token) errs.Error {
	var stack []float64
	pop := func(n int) ([]float64, errs.Error) {
		if len(stack) < n {
			return nil, errs.Newf(errs.ClassParse, 0, nil, "expression: setup statement stack underflow popping %d operands", n)
		}
		args := make([]float64, n)
		copy(args, stack[len(stack)-n:])
		stack = stack[:len(stack)-n]
		return args, nil
	}

	for _, tok := range postfix {
		switch tok.Kind {
		case TokConstant:
			stack = append(stack, tok.ConstValue)
		case TokVariable:
			return errs.Newf(errs.ClassParse, 0, nil, "expression: setup statements may not reference data source variables (%q)", tok.Name)
		case TokOperator:
			args, err := pop(tok.Op.Arity)
			if err != nil {
				return err
			}
			if tok.Op.Aborting {
				if tok.Op.Configure != nil {
					tok.Op.Configure(cfg, args)
				}
				// Aborting tokens discard the remainder of the statement
				// and contribute no value; section 9.
				return nil
			}
			if tok.Op.Eval == nil {
				return errs.Newf(errs.ClassParse, 0, nil, "expression: %q is not valid inside a setup statement", tok.Op.Name)
			}
			stack = append(stack, tok.Op.Eval(nil, args))
		}
	}
	return nil
}

// splitTopLevelSemicolons splits src on ';' characters that occur outside
// parentheses and quoted variables.
func splitTopLevelSemicolons(src string) []string {
	var out []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
			// skip
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ';' && depth == 0:
			out = append(out, src[start:i])
			start = i + 1
		}
	}
	out = append(out, src[start:])

	var trimmed []string
	for _, s := range out {
		s = strings.TrimSpace(s)
		if s != "" {
			trimmed = append(trimmed, s)
		}
	}
	return trimmed
}

// resolveTokens turns raw lexemes into Tokens, classifying identifiers as
// named functions (must be followed by '('), named constants, or free
// variables, and detecting unary minus by the preceding token's kind.
func resolveTokens(lexemes []Lexeme) ([]*Token, errs.Error) {
	toks := make([]*Token, 0, len(lexemes))
	var prevKind *TokenKind

	for i := 0; i < len(lexemes); i++ {
		lex := lexemes[i]
		switch lex.Kind {
		case lexNumber:
			v, err := parseNumberLiteral(lex.Text)
			if err != nil {
				return nil, err
			}
			toks = append(toks, &Token{Kind: TokConstant, ConstValue: v, Offset: lex.Offset})

		case lexQuotedVariable:
			toks = append(toks, &Token{Kind: TokVariable, Name: lex.Text, Offset: lex.Offset})

		case lexIdent:
			if def, ok := builtinConstants[lex.Text]; ok {
				toks = append(toks, &Token{Kind: TokConstant, ConstValue: def, Offset: lex.Offset})
				break
			}
			if def, ok := builtinFunctions[lex.Text]; ok {
				if i+1 >= len(lexemes) || lexemes[i+1].Kind != lexLeftParen {
					return nil, errs.Newf(errs.ClassParse, 0, nil, "expression: %q must be called with parentheses at offset %d", lex.Text, lex.Offset)
				}
				d := def
				toks = append(toks, &Token{Kind: TokOperator, Op: d, Offset: lex.Offset})
				break
			}
			toks = append(toks, &Token{Kind: TokVariable, Name: lex.Text, Offset: lex.Offset})

		case lexLeftParen:
			toks = append(toks, &Token{Kind: TokLeftParen, Offset: lex.Offset})
		case lexRightParen:
			toks = append(toks, &Token{Kind: TokRightParen, Offset: lex.Offset})
		case lexComma:
			toks = append(toks, &Token{Kind: TokComma, Offset: lex.Offset})
		case lexSemicolon:
			toks = append(toks, &Token{Kind: TokSemicolon, Offset: lex.Offset})

		case lexOperatorRun:
			if lex.Text == "-" && isUnaryContext(prevKind) {
				toks = append(toks, &Token{Kind: TokOperator, Op: unaryMinusOp, Offset: lex.Offset})
				break
			}
			def, ok := builtinOperators[lex.Text]
			if !ok {
				return nil, errs.Newf(errs.ClassParse, 0, nil, "expression: unknown operator %q at offset %d", lex.Text, lex.Offset)
			}
			toks = append(toks, &Token{Kind: TokOperator, Op: def, Offset: lex.Offset})
		}

		k := toks[len(toks)-1].Kind
		prevKind = &k
	}
	return toks, nil
}

func isUnaryContext(prevKind *TokenKind) bool {
	if prevKind == nil {
		return true
	}
	switch *prevKind {
	case TokOperator, TokLeftParen, TokComma:
		return true
	default:
		return false
	}
}

// shuntingYard compiles an infix token stream to postfix, per section 4.M:
// operators of higher Priority bind tighter; equal-priority operators at or
// above precMaxOperator associate right-to-left, otherwise left-to-right.
// A function token (Op.CallSyntax) is pushed on the operator stack and
// moved to the output only when its matching ')' is reached.
func shuntingYard(toks []*Token) ([]*Token, errs.Error) {
	var output []*Token
	var ops []*Token

	popToOutput := func() {
		output = append(output, ops[len(ops)-1])
		ops = ops[:len(ops)-1]
	}

	for _, tok := range toks {
		switch tok.Kind {
		case TokConstant, TokVariable:
			output = append(output, tok)

		case TokOperator:
			if tok.Op.CallSyntax {
				ops = append(ops, tok)
				break
			}
			for len(ops) > 0 && ops[len(ops)-1].Kind == TokOperator && !ops[len(ops)-1].Op.CallSyntax {
				top := ops[len(ops)-1].Op
				if top.Priority > tok.Op.Priority ||
					(top.Priority == tok.Op.Priority && tok.Op.Priority < precMaxOperator) {
					popToOutput()
					continue
				}
				break
			}
			ops = append(ops, tok)

		case TokLeftParen:
			ops = append(ops, tok)

		case TokComma:
			for len(ops) > 0 && ops[len(ops)-1].Kind != TokLeftParen {
				popToOutput()
			}
			if len(ops) == 0 {
				return nil, errs.Newf(errs.ClassParse, 0, nil, "expression: misplaced ',' at offset %d", tok.Offset)
			}

		case TokRightParen:
			for len(ops) > 0 && ops[len(ops)-1].Kind != TokLeftParen {
				popToOutput()
			}
			if len(ops) == 0 {
				return nil, errs.Newf(errs.ClassParse, 0, nil, "expression: unbalanced ')' at offset %d", tok.Offset)
			}
			ops = ops[:len(ops)-1] // discard the '('
			if len(ops) > 0 && ops[len(ops)-1].Kind == TokOperator && ops[len(ops)-1].Op.CallSyntax {
				popToOutput()
			}
		}
	}

	for len(ops) > 0 {
		if ops[len(ops)-1].Kind == TokLeftParen {
			return nil, errs.New(errs.ClassParse, 0, "expression: unbalanced '('", nil)
		}
		popToOutput()
	}
	return output, nil
}
