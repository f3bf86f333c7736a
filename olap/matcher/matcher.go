package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/shellyln/go-sql-like-expr/likeexpr"
	"gopkg.in/src-d/go-pivot.v0/olap"
)

// Matcher is a predicate over a single column value.
type Matcher interface {
	fmt.Stringer
	// Match returns whether the candidate is accepted. A nil candidate
	// stands for both an explicit null and an absent column.
	Match(candidate interface{}) bool
	matcher()
}

// Equals matches values equal to its operand. It never matches nil.
type Equals struct {
	Operand interface{}
}

// NewEquals creates a matcher accepting values equal to the operand.
func NewEquals(operand interface{}) *Equals {
	return &Equals{Operand: olap.Normalize(operand)}
}

// Match implements the Matcher interface.
func (m *Equals) Match(candidate interface{}) bool {
	if candidate == nil {
		return false
	}
	return olap.Equal(m.Operand, candidate)
}

func (m *Equals) String() string { return fmt.Sprintf("= %v", m.Operand) }

func (*Equals) matcher() {}

// In matches values equal to any of its operands. It matches nil only if
// nil is one of the operands.
type In struct {
	Operands *olap.ValueSet
}

// NewIn creates a matcher accepting any of the given values.
func NewIn(values ...interface{}) *In {
	return &In{Operands: olap.NewValueSet(values...)}
}

// Match implements the Matcher interface.
func (m *In) Match(candidate interface{}) bool {
	return m.Operands.Contains(candidate)
}

func (m *In) String() string { return "IN " + m.Operands.String() }

func (*In) matcher() {}

// Null matches nil values.
type Null struct{}

// Match implements the Matcher interface.
func (Null) Match(candidate interface{}) bool {
	return candidate == nil
}

func (Null) String() string { return "IS NULL" }

func (Null) matcher() {}

// Like matches values against a SQL LIKE pattern: % stands for any
// sequence of characters, _ for any single character and \ escapes the
// next character. The pattern must match the whole value. Values which are
// not strings are matched against their default format.
type Like struct {
	Pattern string
}

// NewLike creates a matcher for the given LIKE pattern.
func NewLike(pattern string) *Like {
	return &Like{Pattern: pattern}
}

var likeCache sync.Map

func compileLike(pattern string) (*regexp.Regexp, error) {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile("(?s)^(?:" + likeexpr.ToRegexp(pattern, '\\', false) + ")$")
	if err != nil {
		return nil, err
	}

	actual, _ := likeCache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// Match implements the Matcher interface.
func (m *Like) Match(candidate interface{}) bool {
	if candidate == nil {
		return false
	}

	re, err := compileLike(m.Pattern)
	if err != nil {
		return false
	}

	s, ok := candidate.(string)
	if !ok {
		s = fmt.Sprintf("%v", candidate)
	}
	return re.MatchString(s)
}

func (m *Like) String() string { return fmt.Sprintf("LIKE %q", m.Pattern) }

func (*Like) matcher() {}

// Comparing matches values lower or greater than its operand. GreaterThan
// selects the direction, MatchIfEqual makes the bound inclusive and
// MatchIfNull decides the result for a nil candidate. Values of a kind
// different from the operand never match.
type Comparing struct {
	Operand      interface{}
	GreaterThan  bool
	MatchIfEqual bool
	MatchIfNull  bool
}

// NewComparing creates a comparison matcher.
func NewComparing(operand interface{}, greaterThan, matchIfEqual bool) *Comparing {
	return &Comparing{
		Operand:      olap.Normalize(operand),
		GreaterThan:  greaterThan,
		MatchIfEqual: matchIfEqual,
	}
}

// GreaterThan creates a matcher accepting values greater than the operand,
// or equal to it if orEqual is set.
func GreaterThan(operand interface{}, orEqual bool) *Comparing {
	return NewComparing(operand, true, orEqual)
}

// LessThan creates a matcher accepting values lower than the operand, or
// equal to it if orEqual is set.
func LessThan(operand interface{}, orEqual bool) *Comparing {
	return NewComparing(operand, false, orEqual)
}

// WithMatchIfNull returns a copy of the matcher with the given null
// handling.
func (m *Comparing) WithMatchIfNull(matchIfNull bool) *Comparing {
	nm := *m
	nm.MatchIfNull = matchIfNull
	return &nm
}

// Match implements the Matcher interface.
func (m *Comparing) Match(candidate interface{}) bool {
	if candidate == nil {
		return m.MatchIfNull
	}

	if !olap.Comparable(candidate, m.Operand) {
		return false
	}

	cmp := olap.Compare(candidate, m.Operand)
	switch {
	case cmp == 0:
		return m.MatchIfEqual
	case m.GreaterThan:
		return cmp > 0
	default:
		return cmp < 0
	}
}

func (m *Comparing) String() string {
	var sb strings.Builder
	if m.GreaterThan {
		sb.WriteString(">")
	} else {
		sb.WriteString("<")
	}
	if m.MatchIfEqual {
		sb.WriteString("=")
	}
	fmt.Fprintf(&sb, " %v", m.Operand)
	if m.MatchIfNull {
		sb.WriteString(" OR NULL")
	}
	return sb.String()
}

func (*Comparing) matcher() {}

// Equal returns whether both matchers accept the same values.
func Equal(a, b Matcher) bool {
	switch a := a.(type) {
	case *Equals:
		b, ok := b.(*Equals)
		return ok && olap.ValueKey(a.Operand) == olap.ValueKey(b.Operand)
	case *In:
		b, ok := b.(*In)
		if !ok || a.Operands.Len() != b.Operands.Len() {
			return false
		}
		for _, v := range a.Operands.Values() {
			if !b.Operands.Contains(v) {
				return false
			}
		}
		return true
	case Null, *Null:
		switch b.(type) {
		case Null, *Null:
			return true
		default:
			return false
		}
	case *Like:
		b, ok := b.(*Like)
		return ok && a.Pattern == b.Pattern
	case *Comparing:
		b, ok := b.(*Comparing)
		return ok &&
			olap.ValueKey(a.Operand) == olap.ValueKey(b.Operand) &&
			a.GreaterThan == b.GreaterThan &&
			a.MatchIfEqual == b.MatchIfEqual &&
			a.MatchIfNull == b.MatchIfNull
	default:
		return false
	}
}
