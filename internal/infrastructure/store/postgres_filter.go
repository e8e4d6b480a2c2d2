package store

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/domain/product"
)

type columnKind int

const (
	textColumn columnKind = iota
	numericColumn
	boolColumn
	arrayColumn
)

type column struct {
	name string
	kind columnKind
}

var productColumns = map[product.Field]column{
	product.FieldID:            {"id", textColumn},
	product.FieldTitle:         {"title", textColumn},
	product.FieldDescription:   {"description", textColumn},
	product.FieldPrice:         {"price", numericColumn},
	product.FieldDiscountPrice: {"discount_price", numericColumn},
	product.FieldCategories:    {"categories", arrayColumn},
	product.FieldSizes:         {"sizes", arrayColumn},
	product.FieldColors:        {"colors", arrayColumn},
	product.FieldTags:          {"tags", arrayColumn},
	product.FieldIsActive:      {"is_active", boolColumn},
}

// sqlWhere accumulates positional arguments while a filter is compiled.
type sqlWhere struct {
	args []any
}

func (w *sqlWhere) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string { return "%" + likeEscaper.Replace(s) + "%" }

// compileFilter renders f as a WHERE clause. Clauses are ANDed, the
// predicates inside a clause ORed. An empty filter yields "".
func compileFilter(f product.Filter) (string, []any, error) {
	w := &sqlWhere{}
	clauses := make([]string, 0, len(f))
	for _, c := range f {
		if len(c) == 0 {
			continue
		}
		alts := make([]string, 0, len(c))
		for _, pr := range c {
			expr, err := w.predicate(pr)
			if err != nil {
				return "", nil, err
			}
			alts = append(alts, expr)
		}
		if len(alts) == 1 {
			clauses = append(clauses, alts[0])
			continue
		}
		clauses = append(clauses, "("+strings.Join(alts, " OR ")+")")
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), w.args, nil
}

func (w *sqlWhere) predicate(pr product.Predicate) (string, error) {
	col, ok := productColumns[pr.Field]
	if !ok {
		return "", errors.Errorf("filter: unknown field %q", pr.Field)
	}
	bad := func() (string, error) {
		return "", errors.Errorf("filter: %s %s %T not supported", pr.Field, pr.Op, pr.Value)
	}

	switch pr.Op {
	case product.OpNotNull:
		switch col.kind {
		case textColumn:
			return col.name + " <> ''", nil
		case arrayColumn:
			return "cardinality(" + col.name + ") > 0", nil
		default:
			return col.name + " IS NOT NULL", nil
		}
	case product.OpEq:
		switch v := pr.Value.(type) {
		case string:
			if col.kind != textColumn {
				return bad()
			}
			return col.name + " = " + w.arg(v), nil
		case bool:
			if col.kind != boolColumn {
				return bad()
			}
			return col.name + " = " + w.arg(v), nil
		case decimal.Decimal:
			if col.kind != numericColumn {
				return bad()
			}
			return col.name + " = " + w.arg(v), nil
		}
	case product.OpIn:
		if v, ok := pr.Value.([]string); ok && col.kind == textColumn {
			return col.name + " = ANY(" + w.arg(pq.Array(v)) + ")", nil
		}
	case product.OpGte, product.OpLte:
		if v, ok := pr.Value.(decimal.Decimal); ok && col.kind == numericColumn {
			op := " >= "
			if pr.Op == product.OpLte {
				op = " <= "
			}
			return col.name + op + w.arg(v), nil
		}
	case product.OpOverlaps:
		if v, ok := pr.Value.([]string); ok && col.kind == arrayColumn {
			return col.name + " && " + w.arg(pq.Array(v)), nil
		}
	case product.OpIContains:
		v, ok := pr.Value.(string)
		if !ok {
			return bad()
		}
		switch col.kind {
		case textColumn:
			return col.name + " ILIKE " + w.arg(likePattern(v)), nil
		case arrayColumn:
			return "EXISTS (SELECT 1 FROM unnest(" + col.name + ") AS v WHERE v ILIKE " + w.arg(likePattern(v)) + ")", nil
		}
	}
	return bad()
}

// orderBy mirrors product.Sort.Less.
func orderBy(s product.Sort) string {
	switch s {
	case product.SortPriceAsc:
		return "ORDER BY price ASC, created_at DESC, id ASC"
	case product.SortPriceDesc:
		return "ORDER BY price DESC, created_at DESC, id ASC"
	case product.SortPopularity:
		return "ORDER BY rating_count DESC, created_at DESC, id ASC"
	case product.SortRating:
		return "ORDER BY rating_average DESC, created_at DESC, id ASC"
	case product.SortOldest:
		return "ORDER BY created_at ASC, id ASC"
	}
	return "ORDER BY created_at DESC, id ASC"
}
