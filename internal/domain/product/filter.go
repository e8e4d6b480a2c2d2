package product

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Field names a filterable product attribute.
type Field string

const (
	FieldID            Field = "id"
	FieldTitle         Field = "title"
	FieldDescription   Field = "description"
	FieldPrice         Field = "price"
	FieldDiscountPrice Field = "discountPrice"
	FieldCategories    Field = "categories"
	FieldSizes         Field = "sizes"
	FieldColors        Field = "colors"
	FieldTags          Field = "tags"
	FieldIsActive      Field = "isActive"
)

// Op is a comparison applied to a Field.
type Op string

const (
	OpEq        Op = "eq"        // Value: bool or string
	OpIn        Op = "in"        // Value: []string, scalar field
	OpGte       Op = "gte"       // Value: decimal.Decimal
	OpLte       Op = "lte"       // Value: decimal.Decimal
	OpOverlaps  Op = "overlaps"  // Value: []string, array field
	OpIContains Op = "icontains" // Value: string; on array fields any element
	OpNotNull   Op = "notnull"
)

// Predicate is a single (field, operator, value) condition.
type Predicate struct {
	Field Field
	Op    Op
	Value any
}

// Clause is satisfied when any of its predicates holds.
type Clause []Predicate

// Filter is satisfied when every clause holds. The zero Filter matches all
// products. Stores compile it to their query language; Match evaluates it in
// memory.
type Filter []Clause

// And returns f extended with a clause of alternatives.
func (f Filter) And(alternatives ...Predicate) Filter {
	if len(alternatives) == 0 {
		return f
	}
	out := make(Filter, len(f), len(f)+1)
	copy(out, f)
	return append(out, Clause(alternatives))
}

// Where is a single-predicate And.
func (f Filter) Where(field Field, op Op, value any) Filter {
	return f.And(Predicate{Field: field, Op: op, Value: value})
}

func (f Filter) Match(p *Product) bool {
	for _, c := range f {
		if !c.match(p) {
			return false
		}
	}
	return true
}

func (c Clause) match(p *Product) bool {
	for _, pr := range c {
		if pr.Match(p) {
			return true
		}
	}
	return false
}

func (pr Predicate) Match(p *Product) bool {
	switch pr.Field {
	case FieldID:
		return matchString(pr, p.ID)
	case FieldTitle:
		return matchString(pr, p.Title)
	case FieldDescription:
		return matchString(pr, p.Description)
	case FieldPrice:
		return matchDecimal(pr, decimal.NullDecimal{Decimal: p.Price, Valid: true})
	case FieldDiscountPrice:
		return matchDecimal(pr, p.DiscountPrice)
	case FieldCategories:
		return matchList(pr, p.Categories)
	case FieldSizes:
		return matchList(pr, p.Sizes)
	case FieldColors:
		return matchList(pr, p.Colors)
	case FieldTags:
		return matchList(pr, p.Tags)
	case FieldIsActive:
		want, ok := pr.Value.(bool)
		return pr.Op == OpEq && ok && p.IsActive == want
	}
	return false
}

func matchString(pr Predicate, v string) bool {
	switch pr.Op {
	case OpEq:
		s, ok := pr.Value.(string)
		return ok && v == s
	case OpIn:
		list, ok := pr.Value.([]string)
		return ok && slices.Contains(list, v)
	case OpIContains:
		s, ok := pr.Value.(string)
		return ok && containsFold(v, s)
	case OpNotNull:
		return v != ""
	}
	return false
}

func matchDecimal(pr Predicate, v decimal.NullDecimal) bool {
	if pr.Op == OpNotNull {
		return v.Valid
	}
	bound, ok := pr.Value.(decimal.Decimal)
	if !ok || !v.Valid {
		return false
	}
	switch pr.Op {
	case OpEq:
		return v.Decimal.Equal(bound)
	case OpGte:
		return v.Decimal.GreaterThanOrEqual(bound)
	case OpLte:
		return v.Decimal.LessThanOrEqual(bound)
	}
	return false
}

func matchList(pr Predicate, values []string) bool {
	switch pr.Op {
	case OpOverlaps:
		want, ok := pr.Value.([]string)
		if !ok {
			return false
		}
		for _, v := range values {
			if slices.Contains(want, v) {
				return true
			}
		}
	case OpIContains:
		s, ok := pr.Value.(string)
		if !ok {
			return false
		}
		for _, v := range values {
			if containsFold(v, s) {
				return true
			}
		}
	case OpNotNull:
		return len(values) > 0
	}
	return false
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Sort orders catalog results.
type Sort string

const (
	SortNewest     Sort = "createdAt:desc"
	SortOldest     Sort = "createdAt:asc"
	SortPriceAsc   Sort = "priceAsc"
	SortPriceDesc  Sort = "priceDesc"
	SortPopularity Sort = "popularity"
	SortRating     Sort = "rating"
)

// ParseSort maps a query value to a Sort; unknown values sort newest first.
func ParseSort(s string) Sort {
	switch v := Sort(s); v {
	case SortOldest, SortPriceAsc, SortPriceDesc, SortPopularity, SortRating:
		return v
	}
	return SortNewest
}

// Less reports whether a sorts before b. Ties fall back to newest first,
// then id, so pagination is stable.
func (s Sort) Less(a, b *Product) bool {
	switch s {
	case SortPriceAsc:
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c < 0
		}
	case SortPriceDesc:
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c > 0
		}
	case SortPopularity:
		if a.Rating.Count != b.Rating.Count {
			return a.Rating.Count > b.Rating.Count
		}
	case SortRating:
		if a.Rating.Average != b.Rating.Average {
			return a.Rating.Average > b.Rating.Average
		}
	case SortOldest:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Query is a page request against the catalog.
type Query struct {
	Filter Filter
	Sort   Sort
	Offset int
	Limit  int
}
