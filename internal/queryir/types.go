package queryir

import "github.com/roach88/callchain/internal/ir"

// Query is an abstract read over a stored table.
type Query interface {
	queryNode()
}

// Predicate is a row filter.
type Predicate interface {
	predicateNode()
}

// Select reads rows from a table.
//
//	Select{
//	  From:    "runs",
//	  Columns: []string{"id", "name"},
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "name", Value: ir.IRString("shout")},
//	    In{Field: "status", Values: []ir.IRValue{ir.IRString("ok"), ir.IRString("error")}},
//	  }},
//	}
//
// An empty Columns list selects every column. A nil Filter matches every row.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate
}

func (Select) queryNode() {}

// Equals matches rows whose field equals a literal value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In matches rows whose field equals any of the listed values.
// An empty list matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// And matches rows satisfying every predicate. An empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Fields returns the field names a predicate refers to, in traversal order.
func Fields(p Predicate) []string {
	var out []string
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch pred := p.(type) {
		case Equals:
			out = append(out, pred.Field)
		case *Equals:
			out = append(out, pred.Field)
		case In:
			out = append(out, pred.Field)
		case *In:
			out = append(out, pred.Field)
		case And:
			for _, sub := range pred.Predicates {
				walk(sub)
			}
		case *And:
			for _, sub := range pred.Predicates {
				walk(sub)
			}
		}
	}
	walk(p)
	return out
}
