// Package queryir is a small query representation for reading stored runs
// and trace events.
//
// Callers describe what they want as a Select over one of the store's
// tables with an optional Predicate tree. Backends (see querysql) compile
// the tree into their own query language. Keeping the representation
// separate from SQL text means filters built from user input never reach
// the database as interpolated strings.
//
// Query and Predicate are sealed: only types in this package implement
// them, so backends can switch over them exhaustively.
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case And:
//	}
//
// Literal values are ir.IRValue scalars. Validate rejects field names that
// are not plain identifiers, composite values and comparisons against null.
package queryir
