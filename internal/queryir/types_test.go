package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/callchain/internal/ir"
)

func TestSealedInterfaces(t *testing.T) {
	var q Query = Select{From: "runs"}
	_, ok := q.(Select)
	assert.True(t, ok)

	preds := []Predicate{
		Equals{Field: "name", Value: ir.IRString("shout")},
		In{Field: "status"},
		And{},
	}
	for _, p := range preds {
		switch p.(type) {
		case Equals, In, And:
		default:
			t.Fatalf("unexpected predicate %T", p)
		}
	}
}

func TestFields(t *testing.T) {
	pred := And{Predicates: []Predicate{
		Equals{Field: "name", Value: ir.IRString("shout")},
		&And{Predicates: []Predicate{
			In{Field: "status", Values: []ir.IRValue{ir.IRString("ok")}},
			&Equals{Field: "error", Value: ir.IRString("")},
		}},
		&In{Field: "seq"},
	}}

	assert.Equal(t, []string{"name", "status", "error", "seq"}, Fields(pred))
	assert.Nil(t, Fields(nil))
	assert.Nil(t, Fields(And{}))
}
