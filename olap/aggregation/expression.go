package aggregation

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/benhoyt/goawk/interp"
	"github.com/benhoyt/goawk/parser"
	"gopkg.in/src-d/go-pivot.v0/olap"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Expression evaluates an awk arithmetic expression where each underlying
// measure is available as a variable named after it. If any value is nil,
// the result is nil. Integral results computed from integers only are
// returned as int64, other results as float64.
type Expression struct {
	expression string
	names      []string

	mu     sync.Mutex
	interp *interp.Interpreter
}

// NewExpression compiles the expression found in the options.
func NewExpression(options Options) (*Expression, error) {
	expr, ok := options.String(ExpressionOption)
	if !ok || strings.TrimSpace(expr) == "" {
		return nil, olap.ErrInvalidConfiguration.New("expression combination requires an expression option")
	}

	names := options.UnderlyingNames()
	for _, n := range names {
		if !identifierRegex.MatchString(n) {
			return nil, olap.ErrInvalidConfiguration.New(
				fmt.Sprintf("%q can not be used as a variable in expression %q", n, expr),
			)
		}
	}

	src := fmt.Sprintf("BEGIN { printf \"%%.17g\", (%s) }", expr)
	prog, err := parser.ParseProgram([]byte(src), nil)
	if err != nil {
		return nil, olap.ErrInvalidConfiguration.New(
			fmt.Sprintf("invalid expression %q: %s", expr, err),
		)
	}

	in, err := interp.New(prog)
	if err != nil {
		return nil, olap.ErrInvalidConfiguration.New(
			fmt.Sprintf("invalid expression %q: %s", expr, err),
		)
	}

	return &Expression{expression: expr, names: names, interp: in}, nil
}

// Key implements the Combination interface.
func (e *Expression) Key() string { return ExpressionKey }

// Combine implements the Combination interface.
func (e *Expression) Combine(_ olap.Slice, values []interface{}) (interface{}, error) {
	if len(values) != len(e.names) {
		return nil, olap.ErrUnderlyingMismatch.New(e.expression, len(values), len(e.names))
	}

	integral := true
	vars := make([]string, 0, 2*len(values))
	for i, v := range values {
		if v == nil {
			return nil, nil
		}

		f, err := olap.ToFloat64(v)
		if err != nil {
			return nil, err
		}
		if !olap.IsIntegral(v) {
			integral = false
		}
		vars = append(vars, e.names[i], strconv.FormatFloat(f, 'g', -1, 64))
	}

	var out bytes.Buffer
	e.mu.Lock()
	_, err := e.interp.Execute(&interp.Config{
		Stdin:        strings.NewReader(""),
		Output:       &out,
		Vars:         vars,
		NoExec:       true,
		NoFileWrites: true,
		NoFileReads:  true,
	})
	e.mu.Unlock()
	if err != nil {
		if strings.Contains(err.Error(), "division by zero") {
			return nil, nil
		}
		return nil, err
	}

	result, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return nil, olap.ErrUnsupportedValue.New(ExpressionKey, out.String(), out.String())
	}

	if integral && result == math.Trunc(result) &&
		result >= math.MinInt64 && result < math.MaxInt64 {
		return int64(result), nil
	}
	return result, nil
}

func (e *Expression) String() string {
	return fmt.Sprintf("expression(%s)", e.expression)
}
