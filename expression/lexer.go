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
	"strconv"
	"strings"

	"github.com/lnetcore/corelink/errs"
)

// Lexeme is one raw scan result before factory resolution into a Token.
type Lexeme struct {
	Text   string
	Offset int
	Kind   lexKind
}

type lexKind uint8

const (
	lexNumber lexKind = iota
	lexIdent
	lexQuotedVariable
	lexOperatorRun
	lexLeftParen
	lexRightParen
	lexComma
	lexSemicolon
)

// Tokenize splits src into raw lexemes per section 4.M's character-class
// state machine: numbers (integer, decimal, exponent, &h hex, &b binary),
// identifiers, quoted variables, and operator runs, recognising
// "<>", "<=", ">=" as two-character operators.
func Tokenize(src string) ([]Lexeme, errs.Error) {
	var out []Lexeme
	i := 0
	n := len(src)

	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
		case c == '(':
			out = append(out, Lexeme{Text: "(", Offset: i, Kind: lexLeftParen})
			i++
		case c == ')':
			out = append(out, Lexeme{Text: ")", Offset: i, Kind: lexRightParen})
			i++
		case c == ',':
			out = append(out, Lexeme{Text: ",", Offset: i, Kind: lexComma})
			i++
		case c == ';':
			out = append(out, Lexeme{Text: ";", Offset: i, Kind: lexSemicolon})
			i++
		case c == '"' || c == '$':
			lex, next, err := scanQuoted(src, i)
			if err != nil {
				return nil, err
			}
			out = append(out, lex)
			i = next
		case isDigit(c) || (c == '&' && i+1 < n && strings.IndexByte("hHbB", src[i+1]) >= 0):
			lex, next := scanNumber(src, i)
			out = append(out, lex)
			i = next
		case isIdentStart(c):
			lex, next := scanIdent(src, i)
			out = append(out, lex)
			i = next
		case isOperatorChar(c):
			lex, next := scanOperator(src, i)
			out = append(out, lex)
			i = next
		default:
			return nil, errs.Newf(errs.ClassParse, 0, nil, "expression: unexpected character %q at offset %d", c, i)
		}
	}
	return out, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.' || c == ':'
}

func isOperatorChar(c byte) bool {
	switch c {
	case '+', '-', '*', '/', '^', '=', '<', '>':
		return true
	}
	return false
}

func scanQuoted(src string, start int) (Lexeme, int, errs.Error) {
	i := start
	if src[i] == '$' {
		i++
		if i >= len(src) || src[i] != '"' {
			return Lexeme{}, 0, errs.Newf(errs.ClassParse, 0, nil, "expression: expected '\"' after '$' at offset %d", start)
		}
	}
	if i >= len(src) || src[i] != '"' {
		return Lexeme{}, 0, errs.Newf(errs.ClassParse, 0, nil, "expression: malformed quoted variable at offset %d", start)
	}
	i++
	contentStart := i
	for i < len(src) && src[i] != '"' {
		i++
	}
	if i >= len(src) {
		return Lexeme{}, 0, errs.Newf(errs.ClassParse, 0, nil, "expression: unterminated quote starting at offset %d", start)
	}
	text := src[contentStart:i]
	i++ // closing quote
	return Lexeme{Text: text, Offset: start, Kind: lexQuotedVariable}, i, nil
}

func scanNumber(src string, start int) (Lexeme, int) {
	i := start
	if src[i] == '0' && i+1 < len(src) && (src[i+1] == 'x' || src[i+1] == 'X') {
		i += 2
		for i < len(src) && isHexDigit(src[i]) {
			i++
		}
		return Lexeme{Text: src[start:i], Offset: start, Kind: lexNumber}, i
	}
	if src[i] == '&' && i+1 < len(src) && (src[i+1] == 'h' || src[i+1] == 'H') {
		i += 2
		for i < len(src) && isHexDigit(src[i]) {
			i++
		}
		return Lexeme{Text: src[start:i], Offset: start, Kind: lexNumber}, i
	}
	if src[i] == '&' && i+1 < len(src) && (src[i+1] == 'b' || src[i+1] == 'B') {
		i += 2
		for i < len(src) && (src[i] == '0' || src[i] == '1') {
			i++
		}
		return Lexeme{Text: src[start:i], Offset: start, Kind: lexNumber}, i
	}

	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			i = j
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
	}
	return Lexeme{Text: src[start:i], Offset: start, Kind: lexNumber}, i
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func scanIdent(src string, start int) (Lexeme, int) {
	i := start
	for i < len(src) && isIdentCont(src[i]) {
		i++
	}
	return Lexeme{Text: src[start:i], Offset: start, Kind: lexIdent}, i
}

func scanOperator(src string, start int) (Lexeme, int) {
	if start+1 < len(src) {
		two := src[start : start+2]
		switch two {
		case "<>", "<=", ">=":
			return Lexeme{Text: two, Offset: start, Kind: lexOperatorRun}, start + 2
		}
	}
	return Lexeme{Text: src[start : start+1], Offset: start, Kind: lexOperatorRun}, start + 1
}

// parseNumberLiteral converts a scanned number lexeme's text to a float64,
// honouring the &h/&b/0x numeric-literal prefixes of section 4.M.
func parseNumberLiteral(text string) (float64, errs.Error) {
	switch {
	case strings.HasPrefix(text, "&h") || strings.HasPrefix(text, "&H"):
		v, err := strconv.ParseInt(text[2:], 16, 64)
		if err != nil {
			return 0, errs.Newf(errs.ClassParse, 0, err, "expression: malformed hex literal %q", text)
		}
		return float64(v), nil
	case strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X"):
		v, err := strconv.ParseInt(text[2:], 16, 64)
		if err != nil {
			return 0, errs.Newf(errs.ClassParse, 0, err, "expression: malformed hex literal %q", text)
		}
		return float64(v), nil
	case strings.HasPrefix(text, "&b") || strings.HasPrefix(text, "&B"):
		v, err := strconv.ParseInt(text[2:], 2, 64)
		if err != nil {
			return 0, errs.Newf(errs.ClassParse, 0, err, "expression: malformed binary literal %q", text)
		}
		return float64(v), nil
	default:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, errs.Newf(errs.ClassParse, 0, err, "expression: malformed numeric literal %q", text)
		}
		return v, nil
	}
}
