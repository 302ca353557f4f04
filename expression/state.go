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
	"time"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
)

// RequestConfig accumulates the effect of setup/"aborting" tokens during the
// configuration-draining pass (section 9's small effect system for tokens
// like StartAtTime, StartRelativeToNewest, ReportOffset, OrderCollected).
// A zero RequestConfig asks for the source's default start behaviour.
type RequestConfig struct {
	Start            datasource.StartOption
	StartTime        time.Time
	StartRecNo       int64
	StartOffset      int64 // nanoseconds, relative-to-newest / relative-to-last
	Order            datasource.OrderOption
	ReportTimeOffset bool
}

// apply copies the accumulated configuration onto req before it is frozen
// and handed to the Manager.
func (c *RequestConfig) apply(req *datasource.Request) {
	req.SetStart(c.Start)
	req.SetStartTime(c.StartTime)
	req.SetStartRecNo(c.StartRecNo)
	req.SetOffset(time.Duration(c.StartOffset))
	req.SetOrder(c.Order)
	if c.ReportTimeOffset {
		req.SetReportTimeOffset(time.Second)
	}
}

// State is the stateful postfix evaluator of section 4.M: a value stack plus
// one StatefulInstance per stateful operator occurrence (so two textual uses
// of AvgRun in the same expression keep independent running windows).
type State struct {
	stack     []float64
	instances map[*Token]StatefulInstance
}

// NewState builds an evaluator for one compiled Program. Stateful operator
// instances are created lazily on first evaluation of each occurrence.
func NewState() *State {
	return &State{instances: make(map[*Token]StatefulInstance)}
}

func (s *State) push(v float64) { s.stack = append(s.stack, v) }

func (s *State) popN(n int) ([]float64, errs.Error) {
	if len(s.stack) < n {
		return nil, errs.Newf(errs.ClassParse, 0, nil, "expression: stack underflow popping %d operands", n)
	}
	args := make([]float64, n)
	copy(args, s.stack[len(s.stack)-n:])
	s.stack = s.stack[:len(s.stack)-n]
	return args, nil
}

func (s *State) instanceFor(tok *Token) StatefulInstance {
	if inst, ok := s.instances[tok]; ok {
		return inst
	}
	inst := tok.Op.NewInstance()
	s.instances[tok] = inst
	return inst
}

// Eval walks postfix (a cleaned token stream with every aborting/setup token
// already removed by the configuration-draining pass) once, pushing operand
// values and reducing operators in place, and returns the single remaining
// result.
func (s *State) Eval(postfix []*Token, values map[string]float64) (float64, errs.Error) {
	s.stack = s.stack[:0]
	for _, tok := range postfix {
		switch tok.Kind {
		case TokConstant:
			s.push(tok.ConstValue)
		case TokVariable:
			v, ok := values[tok.Name]
			if !ok {
				return 0, errs.Newf(errs.ClassParse, 0, nil, "expression: no current value for variable %q", tok.Name)
			}
			s.push(v)
		case TokOperator:
			args, err := s.popN(tok.Op.Arity)
			if err != nil {
				return 0, err
			}
			var result float64
			if tok.Op.NewInstance != nil {
				result = s.instanceFor(tok).Eval(s, args)
			} else {
				result = tok.Op.Eval(s, args)
			}
			s.push(result)
		default:
			return 0, errs.Newf(errs.ClassParse, 0, nil, "expression: unexpected token kind %d in evaluation stream", tok.Kind)
		}
	}
	if len(s.stack) != 1 {
		return 0, errs.Newf(errs.ClassParse, 0, nil, "expression: expression left %d values on the stack, want 1", len(s.stack))
	}
	return s.stack[0], nil
}
