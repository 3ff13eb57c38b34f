package queryir

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/callchain/internal/ir"
)

// identPattern matches names that are safe to emit as bare SQL identifiers.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// String joins the problems into one line.
func (r ValidationResult) String() string {
	if r.Valid {
		return "valid"
	}
	return strings.Join(r.Problems, "; ")
}

// Err returns nil for a valid query, otherwise an error listing the problems.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", r.String())
}

// Validate checks a query before it is handed to a backend.
//
// Table, column and field names must be lowercase identifiers. Values must
// be string, int or bool: arrays and objects have no column form, and a
// comparison against null never matches under SQL semantics.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addProblem("unsupported query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.checkIdent("table", sel.From)
	for _, col := range sel.Columns {
		v.checkIdent("column", col)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case In:
		v.validateIn(pred)
	case *In:
		v.validateIn(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addProblem("unsupported predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	v.checkIdent("field", eq.Field)
	v.checkValue(eq.Field, eq.Value)
}

func (v *validator) validateIn(in In) {
	v.checkIdent("field", in.Field)
	for _, val := range in.Values {
		v.checkValue(in.Field, val)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}

func (v *validator) checkIdent(kind, name string) {
	if !identPattern.MatchString(name) {
		v.addProblem("%s name %q is not a plain identifier", kind, name)
	}
}

func (v *validator) checkValue(field string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	case nil, ir.IRNull:
		v.addProblem("field %q compared against null", field)
	default:
		v.addProblem("field %q compared against %T", field, val)
	}
}
