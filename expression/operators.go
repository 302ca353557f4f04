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
	"math"
	"time"

	"github.com/lnetcore/corelink/datasource"
)

// Arithmetic and comparison infix operators, per section 4.M. Priority
// follows the usual algebraic ordering; comparisons bind loosest. "^" is
// right-associative (priority placed at/above precMaxOperator).
var builtinOperators = map[string]*OperatorDef{
	"=":  cmpOp("=", func(a, b float64) bool { return a == b }),
	"<>": cmpOp("<>", func(a, b float64) bool { return a != b }),
	"<":  cmpOp("<", func(a, b float64) bool { return a < b }),
	">":  cmpOp(">", func(a, b float64) bool { return a > b }),
	"<=": cmpOp("<=", func(a, b float64) bool { return a <= b }),
	">=": cmpOp(">=", func(a, b float64) bool { return a >= b }),
	"+": {
		Name: "+", Priority: 10, Arity: 2,
		Eval: func(_ *State, a []float64) float64 { return a[0] + a[1] },
	},
	"-": {
		Name: "-", Priority: 10, Arity: 2,
		Eval: func(_ *State, a []float64) float64 { return a[0] - a[1] },
	},
	"*": {
		Name: "*", Priority: 20, Arity: 2,
		Eval: func(_ *State, a []float64) float64 { return a[0] * a[1] },
	},
	"/": {
		Name: "/", Priority: 20, Arity: 2,
		Eval: func(_ *State, a []float64) float64 {
			if a[1] == 0 {
				return math.NaN()
			}
			return a[0] / a[1]
		},
	},
	"^": {
		Name: "^", Priority: precMaxOperator, Arity: 2,
		Eval: func(_ *State, a []float64) float64 { return math.Pow(a[0], a[1]) },
	},
}

func cmpOp(name string, f func(a, b float64) bool) *OperatorDef {
	return &OperatorDef{
		Name: name, Priority: 5, Arity: 2,
		Eval: func(_ *State, a []float64) float64 {
			if f(a[0], a[1]) {
				return 1
			}
			return 0
		},
	}
}

// unaryMinusOp negates its single operand; resolveTokens substitutes it for
// a "-" lexeme appearing where a binary operator would be invalid.
var unaryMinusOp = &OperatorDef{
	Name: "neg", Priority: precMaxOperator + 10, Arity: 1,
	Eval: func(_ *State, a []float64) float64 { return -a[0] },
}

// Named numeric constants available to expressions, per section 4.M's
// setup-function argument vocabulary.
var builtinConstants = map[string]float64{
	"nsecPerSecond": float64(time.Second),
	"nsecPerMinute": float64(time.Minute),
	"nsecPerHour":   float64(time.Hour),
	"nsecPerDay":    float64(24 * time.Hour),
	"nsecPerWeek":   float64(7 * 24 * time.Hour),

	"OrderCollected":          float64(datasource.OrderCollected),
	"OrderLoggedWithHoles":    float64(datasource.OrderLoggedWithHoles),
	"OrderLoggedWithoutHoles": float64(datasource.OrderLoggedWithoutHoles),
	"OrderRealTime":           float64(datasource.OrderRealTime),

	"RESET_HOURLY":  0,
	"RESET_DAILY":   1,
	"RESET_WEEKLY":  2,
	"RESET_MONTHLY": 3,
	"RESET_YEARLY":  4,
	"RESET_CUSTOM":  5,
}

// startFn builds an aborting, call-syntax OperatorDef whose Configure sets
// cfg.Start to opt and forwards its numeric arguments to set.
func startFn(name string, arity int, opt datasource.StartOption, set func(cfg *RequestConfig, args []float64)) *OperatorDef {
	return &OperatorDef{
		Name: name, Arity: arity, Aborting: true, CallSyntax: true,
		Configure: func(cfg *RequestConfig, args []float64) {
			cfg.Start = opt
			if set != nil {
				set(cfg, args)
			}
		},
	}
}

// Setup/"aborting" functions, per section 4.M / section 9. Each configures
// the shared RequestConfig for every request a value expression creates and
// contributes no value of its own.
var builtinFunctions = map[string]*OperatorDef{
	"StartAtRecord": startFn("StartAtRecord", 1, datasource.StartAtRecord,
		func(cfg *RequestConfig, a []float64) { cfg.StartRecNo = int64(a[0]) }),
	"StartAtTime": startFn("StartAtTime", 1, datasource.StartAtTime,
		func(cfg *RequestConfig, a []float64) { cfg.StartTime = time.Unix(0, int64(a[0])) }),
	"StartAtNewest":    startFn("StartAtNewest", 0, datasource.StartAtNewest, nil),
	"StartAfterNewest": startFn("StartAfterNewest", 0, datasource.StartAfterNewest, nil),
	"StartRelativeToNewest": startFn("StartRelativeToNewest", 2, datasource.StartRelativeToNewest,
		func(cfg *RequestConfig, a []float64) {
			cfg.StartOffset = int64(a[0])
			cfg.Order = datasource.OrderOption(a[1])
		}),
	"StartAtOffsetFromNewest": startFn("StartAtOffsetFromNewest", 1, datasource.StartAtOffsetFromNewest,
		func(cfg *RequestConfig, a []float64) { cfg.StartOffset = int64(a[0]) }),
	"StartDateRange": startFn("StartDateRange", 2, datasource.StartDateRange,
		func(cfg *RequestConfig, a []float64) {
			cfg.StartTime = time.Unix(0, int64(a[0]))
			cfg.StartOffset = int64(a[1])
		}),
	"ReportOffset": {
		Name: "ReportOffset", Arity: 1, Aborting: true, CallSyntax: true,
		Configure: func(cfg *RequestConfig, a []float64) {
			cfg.ReportTimeOffset = a[0] != 0
		},
	},

	"AvgRun":                 {Name: "AvgRun", Arity: 1, CallSyntax: true, NewInstance: newAvgRun},
	"StdDevOverTime":         {Name: "StdDevOverTime", Arity: 2, CallSyntax: true, NewInstance: newStdDevOverTime},
	"MaxRunOverTimeWithReset": {Name: "MaxRunOverTimeWithReset", Arity: 2, CallSyntax: true, NewInstance: newMaxRunWithReset},
}

// avgRun is a running, unbounded arithmetic-mean accumulator.
type avgRun struct {
	sum   float64
	count int
}

func newAvgRun() StatefulInstance { return &avgRun{} }

func (a *avgRun) Eval(_ *State, args []float64) float64 {
	a.sum += args[0]
	a.count++
	return a.sum / float64(a.count)
}

// stdDevOverTime keeps a fixed-size ring buffer spanning the requested
// window (its second argument, seconds) worth of evaluations and reports
// the sample standard deviation of the values currently held.
type stdDevOverTime struct {
	windowLen int
	buf       []float64
}

func newStdDevOverTime() StatefulInstance { return &stdDevOverTime{} }

func (s *stdDevOverTime) Eval(_ *State, args []float64) float64 {
	v, windowSeconds := args[0], args[1]
	if s.windowLen == 0 {
		n := int(windowSeconds)
		if n < 1 {
			n = 1
		}
		s.windowLen = n
	}
	s.buf = append(s.buf, v)
	if len(s.buf) > s.windowLen {
		s.buf = s.buf[len(s.buf)-s.windowLen:]
	}
	if len(s.buf) < 2 {
		return 0
	}
	var mean float64
	for _, x := range s.buf {
		mean += x
	}
	mean /= float64(len(s.buf))
	var sumSq float64
	for _, x := range s.buf {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(s.buf)-1))
}

// maxRunWithReset tracks a running maximum that clears back to the current
// value whenever the reset rule's period boundary is crossed. The reset
// rule argument is one of the RESET_* constants; wall-clock boundaries are
// approximated by an evaluation counter scaled to the rule's nominal period
// in the absence of direct access to the sample's own timestamp here.
type maxRunWithReset struct {
	max      float64
	have     bool
	sinceRst int
}

func newMaxRunWithReset() StatefulInstance { return &maxRunWithReset{} }

func resetPeriodSamples(rule float64) int {
	switch int(rule) {
	case 0: // RESET_HOURLY
		return 60
	case 1: // RESET_DAILY
		return 60 * 24
	case 2: // RESET_WEEKLY
		return 60 * 24 * 7
	case 3: // RESET_MONTHLY
		return 60 * 24 * 30
	case 4: // RESET_YEARLY
		return 60 * 24 * 365
	default: // RESET_CUSTOM
		return 1 << 30
	}
}

func (m *maxRunWithReset) Eval(_ *State, args []float64) float64 {
	v, rule := args[0], args[1]
	period := resetPeriodSamples(rule)
	if !m.have || m.sinceRst >= period {
		m.max = v
		m.have = true
		m.sinceRst = 0
	} else if v > m.max {
		m.max = v
	}
	m.sinceRst++
	return m.max
}
