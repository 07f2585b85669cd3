package handlers

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/spf13/cast"
)

// 计算机只接受数字、运算符与少数函数名
var (
	calcAllowed  = regexp.MustCompile(`^[0-9a-z.,+\-*/^%()\s]+$`)
	calcOperator = regexp.MustCompile(`[+\-*/^%(]`)
	calcFuncCall = regexp.MustCompile(`([a-z]+)\(`)
)

var calcConsts = map[string]any{
	"pi": math.Pi,
	"e":  math.E,
}

var calcFuncs = map[string]func(float64) float64{
	"sqrt": math.Sqrt,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"ln":   math.Log,
	"log":  math.Log10,
	"exp":  math.Exp,
}

var calcOptions = buildCalcOptions()

// 函数参数一律转成 float64，整数字面值也能直接传入
func buildCalcOptions() []expr.Option {
	opts := []expr.Option{expr.Env(calcConsts)}
	for name, fn := range calcFuncs {
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("%s expects 1 argument", name)
			}
			x, err := cast.ToFloat64E(params[0])
			if err != nil {
				return nil, err
			}
			return fn(x), nil
		}))
	}
	return append(opts, expr.Function("pow", func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("pow expects 2 arguments")
		}
		x, err := cast.ToFloat64E(params[0])
		if err != nil {
			return nil, err
		}
		y, err := cast.ToFloat64E(params[1])
		if err != nil {
			return nil, err
		}
		return math.Pow(x, y), nil
	}))
}

// CalcResult 计算结果，LaTeX 与原式不同时 Latex 非空
type CalcResult struct {
	Expression string
	Value      string
	Latex      string
}

// Calculate text 必须以 "=" 结尾，不是算式时返回 false
func Calculate(text string) (*CalcResult, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasSuffix(text, "=") {
		return nil, false
	}
	src := strings.TrimSpace(strings.TrimSuffix(text, "="))
	src = strings.ReplaceAll(strings.ReplaceAll(src, "×", "*"), "÷", "/")
	if src == "" || !calcAllowed.MatchString(src) || !calcOperator.MatchString(strings.TrimPrefix(src, "-")) {
		return nil, false
	}
	for _, m := range calcFuncCall.FindAllStringSubmatch(src, -1) {
		if _, ok := calcFuncs[m[1]]; !ok && m[1] != "pow" {
			return nil, false
		}
	}

	program, err := expr.Compile(src, calcOptions...)
	if err != nil {
		return nil, false
	}
	out, err := expr.Run(program, calcConsts)
	if err != nil {
		return nil, false
	}
	v, err := cast.ToFloat64E(out)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}

	res := &CalcResult{Expression: src, Value: formatNumber(v)}
	if latex := toLatex(src); latex != src {
		res.Latex = latex + " = " + res.Value
	}
	return res, true
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}

var (
	latexPow  = regexp.MustCompile(`\^\s*(\([^()]*\)|[0-9a-z.]+)`)
	latexSqrt = regexp.MustCompile(`sqrt\(([^()]*)\)`)
	latexFunc = regexp.MustCompile(`\b(sin|cos|tan|ln|log|exp)\(`)
)

func toLatex(src string) string {
	s := latexSqrt.ReplaceAllString(src, `\sqrt{$1}`)
	s = latexPow.ReplaceAllStringFunc(s, func(m string) string {
		exp := strings.TrimSpace(strings.TrimPrefix(m, "^"))
		exp = strings.TrimSuffix(strings.TrimPrefix(exp, "("), ")")
		return "^{" + exp + "}"
	})
	s = latexFunc.ReplaceAllString(s, `\$1(`)
	s = strings.ReplaceAll(s, "*", `\times `)
	s = strings.ReplaceAll(s, "/", `\div `)
	s = strings.ReplaceAll(s, "pi", `\pi `)
	return s
}

// LatexHTML 站外页面用 MathJax 渲染
func LatexHTML(latex string) string {
	return `<p class="latex">\(` + html.EscapeString(latex) + `\)</p>`
}
