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

// Package editor is the syntax-checking front end of section 4.O
// ("Csi.Expression.Editor.cpp's role as a syntax-checking front end rather
// than a GUI widget"). It never drives a GUI; it tokenizes and validates a
// candidate expression string so a caller can report a parse error before
// handing the string to expression.Compile.
package editor

import (
	"strings"

	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/expression"
)

// Tokenize exposes expression.Tokenize's raw lexeme boundaries as plain
// strings, useful for a host that wants to highlight or re-flow an
// expression without re-implementing the lexer's character classes.
func Tokenize(src string) ([]string, errs.Error) {
	lexemes, err := expression.Tokenize(src)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(lexemes))
	for i, lex := range lexemes {
		out[i] = lex.Text
	}
	return out, nil
}

// Validate reports whether src parses as a well-formed expression (every
// setup statement and the final value expression compile to a postfix
// stream without a parse error), without submitting any requests.
func Validate(src string) errs.Error {
	return expression.Validate(src)
}

// Pretty re-renders src with normalized statement spacing: one space
// after each ';' separating setup statements from the value expression,
// and no leading/trailing whitespace around the whole string. It does not
// reformat operator spacing within a statement, since expression.Tokenize
// discards whitespace and Pretty has no call to reinvent it.
func Pretty(src string) string {
	parts := splitTopLevelSemicolons(src)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "; ")
}

// splitTopLevelSemicolons mirrors expression's own statement splitter
// (unexported there) closely enough for Pretty's purposes: split on ';'
// outside parentheses and quoted variables.
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
		if strings.TrimSpace(s) != "" {
			trimmed = append(trimmed, s)
		}
	}
	return trimmed
}
