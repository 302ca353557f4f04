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

import "github.com/lnetcore/corelink/datasource"

// TokenKind is the sum type tag for one expression token, per section 3's
// "Expression token" data model.
type TokenKind uint8

const (
	TokConstant TokenKind = iota
	TokVariable
	TokOperator
	TokLeftParen
	TokRightParen
	TokComma
	TokSemicolon
)

// Token is one lexeme or compiled node in an expression. Only the fields
// relevant to its Kind are meaningful.
type Token struct {
	Kind TokenKind

	// TokConstant
	ConstValue float64

	// TokVariable
	Name      string
	SourceTag string // not set by resolveTokens; Name holds the whole URI, "source:" prefix included
	Request   *datasource.Request
	isSourceTimeOnly bool

	// TokOperator
	Op *OperatorDef

	// bookkeeping used by the shunting-yard compiler only.
	argCount int

	// source offset, for error reporting.
	Offset int
}

// OperatorDef describes one operator or named function: its priority
// (shunting-yard precedence), arity, whether it is right-associative at
// prec_max_operator and above, whether it is a setup/"aborting" function,
// and its evaluation.
type OperatorDef struct {
	Name     string
	Priority int
	Arity    int
	Aborting bool

	// CallSyntax marks a named function invoked as Name(arg, arg, ...)
	// rather than an infix/prefix operator; the shunting-yard compiler
	// pushes it on the operator stack at its identifier and moves it to
	// the output only at the matching ')'.
	CallSyntax bool

	// Eval pops Arity operands (in left-to-right order) from the
	// evaluator stack and returns the single result value. Ignored for
	// Aborting operators, whose effect is applied by Configure
	// during the configuration pass instead.
	Eval func(st *State, args []float64) float64

	// Configure is invoked for an aborting token during the
	// configuration-draining pass (section 9's "aborting tokens are a
	// small effect system"), given the literal/constant arguments that
	// preceded it in the postfix stream.
	Configure func(cfg *RequestConfig, args []float64)

	// NewInstance, for stateful functions (running aggregates), returns a
	// fresh per-occurrence instance so each textual occurrence of e.g.
	// AvgRun carries independent window state across evaluations, per
	// section 4.M.
	NewInstance func() StatefulInstance
}

// StatefulInstance holds per-occurrence state for running-aggregate
// functions (AvgRun, StdDevOverTime, MaxRunOverTimeWithReset, ...).
type StatefulInstance interface {
	Eval(st *State, args []float64) float64
}

// prec_max_operator is the priority threshold at and above which operators
// of equal priority associate right-to-left instead of left-to-right, per
// section 4.M.
const precMaxOperator = 100

// isAborting reports whether tok is a setup-function token.
func (t *Token) isAborting() bool {
	return t.Kind == TokOperator && t.Op != nil && t.Op.Aborting
}
