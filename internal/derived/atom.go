// Package derived implements the Append/Join/Filter pipeline that
// materializes a derived table's rows from its DerivedConfig: seed from
// the base table, append and hash-join source rows over typed key atoms,
// then filter, carrying a per-row match diagnostic throughout.
package derived

import (
	"strconv"
	"strings"

	"github.com/docforge/formulacore/internal/domain"
)

// AtomKind tags a KeyAtom's carried value.
type AtomKind int

const (
	AtomString AtomKind = iota
	AtomNumber
	AtomBool
)

// KeyAtom is a typed join-key fragment, comparable directly so it can be
// used as (part of) a Go map key without a string encoding step.
type KeyAtom struct {
	Kind AtomKind
	Num  float64
	Str  string
	Bool bool
}

// compositeKey is the 1-3 atom join key built from a row's KeyMappings.
// Unused atom slots stay zero; Count records how many are meaningful so
// two keys built from different mapping counts never collide.
type compositeKey struct {
	Count int
	Atoms [3]KeyAtom
}

func buildCompositeKey(atoms []KeyAtom) compositeKey {
	var ck compositeKey
	ck.Count = len(atoms)
	copy(ck.Atoms[:], atoms)
	return ck
}

// atomKindForColumnKind classifies a column kind into the join-compatible
// atom class: Number/Formula are the numeric class, Checkbox is the bool
// class, everything else is the string class.
func atomKindForColumnKind(kind domain.ColumnKind) AtomKind {
	switch kind {
	case domain.ColumnKindNumber, domain.ColumnKindFormula:
		return AtomNumber
	case domain.ColumnKindCheckbox:
		return AtomBool
	default:
		return AtomString
	}
}

// cellAtom extracts the runtime key atom for a cell, given the static kind
// of its column. A Formula column whose stored string does not parse as a
// number falls back to a string atom; this can only produce a lookup miss
// (NoMatch), never a TypeMismatch, since compatibility was already settled
// at the column-kind level before any row is visited.
func cellAtom(kind domain.ColumnKind, cell domain.CellValue) KeyAtom {
	switch kind {
	case domain.ColumnKindNumber:
		return KeyAtom{Kind: AtomNumber, Num: cell.Number}
	case domain.ColumnKindFormula:
		if f, err := strconv.ParseFloat(strings.TrimSpace(cell.StringValue), 64); err == nil {
			return KeyAtom{Kind: AtomNumber, Num: f}
		}
		return KeyAtom{Kind: AtomString, Str: cell.StringValue}
	case domain.ColumnKindCheckbox:
		return KeyAtom{Kind: AtomBool, Bool: cell.Bool}
	default:
		return KeyAtom{Kind: AtomString, Str: cell.StringValue}
	}
}
