package sheets

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

type filterMode int

const (
	modeAll filterMode = iota
	modeBetween
	modeSince
	modeUntil
	modeMatching
)

// Filter selects ledger rows. Build one with AllRows, Between, Since, Until or
// Matching; the zero value selects every row.
type Filter struct {
	mode    filterMode
	start   civil.Date
	end     civil.Date
	clauses []Clause
}

// AllRows selects every non-blank row.
func AllRows() Filter { return Filter{} }

// Between selects rows dated from start to end inclusive.
func Between(start, end civil.Date) Filter {
	if end.Before(start) {
		start, end = end, start
	}
	return Filter{mode: modeBetween, start: start, end: end}
}

// Since selects rows dated on or after start.
func Since(start civil.Date) Filter { return Filter{mode: modeSince, start: start} }

// Until selects rows dated on or before end.
func Until(end civil.Date) Filter { return Filter{mode: modeUntil, end: end} }

// Matching selects rows satisfying every clause.
func Matching(clauses ...Clause) Filter {
	if len(clauses) == 0 {
		return AllRows()
	}
	return Filter{mode: modeMatching, clauses: append([]Clause(nil), clauses...)}
}

// DateRange builds a filter from optional bounds.
func DateRange(start, end *civil.Date) Filter {
	switch {
	case start != nil && end != nil:
		return Between(*start, *end)
	case start != nil:
		return Since(*start)
	case end != nil:
		return Until(*end)
	}
	return AllRows()
}

func (f Filter) String() string {
	switch f.mode {
	case modeBetween:
		return fmt.Sprintf("between %s and %s", f.start, f.end)
	case modeSince:
		return "since " + f.start.String()
	case modeUntil:
		return "until " + f.end.String()
	case modeMatching:
		parts := make([]string, len(f.clauses))
		for i, c := range f.clauses {
			parts[i] = fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
		}
		return "matching " + strings.Join(parts, ", ")
	}
	return "all rows"
}

// predicates renders the filter against the column layout of sheet.
func (f Filter) predicates(sheet domain.Sheet) ([]string, error) {
	date := mustColumn(sheet, FieldDate)

	switch f.mode {
	case modeBetween:
		return []string{
			dateLiteral(f.start) + " <= " + date,
			date + " <= " + dateLiteral(f.end),
		}, nil
	case modeSince:
		return []string{dateLiteral(f.start) + " <= " + date}, nil
	case modeUntil:
		return []string{date + " <= " + dateLiteral(f.end)}, nil
	case modeMatching:
		out := make([]string, 0, len(f.clauses))
		for _, c := range f.clauses {
			p, err := c.render(sheet)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}
	return nil, nil
}

// Op is a comparison operator of the query language.
type Op string

const (
	OpEq         Op = "="
	OpNe         Op = "!="
	OpLt         Op = "<"
	OpLe         Op = "<="
	OpGt         Op = ">"
	OpGe         Op = ">="
	OpContains   Op = "contains"
	OpStartsWith Op = "starts with"
	OpEndsWith   Op = "ends with"
	OpIsNull     Op = "is null"
	OpIsNotNull  Op = "is not null"
)

var validOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
	OpContains: true, OpStartsWith: true, OpEndsWith: true,
	OpIsNull: true, OpIsNotNull: true,
}

// ParseOp accepts an operator in any case, with "==" and "<>" as aliases.
func ParseOp(s string) (Op, error) {
	op := Op(strings.Join(strings.Fields(strings.ToLower(s)), " "))
	switch op {
	case "==":
		op = OpEq
	case "<>":
		op = OpNe
	}
	if !validOps[op] {
		return "", fmt.Errorf("%w: operator %q", ErrInvalidClause, s)
	}
	return op, nil
}

// Clause compares one field with a literal. Value may be a string, a number,
// a decimal.Decimal or a civil.Date; it is ignored for the null checks.
type Clause struct {
	Field Field
	Op    Op
	Value any
}

func (c Clause) render(sheet domain.Sheet) (string, error) {
	col, ok := Column(sheet, c.Field)
	if !ok {
		return "", fmt.Errorf("%w: %q on sheet %s", ErrUnknownField, c.Field, sheet)
	}
	if !validOps[c.Op] {
		return "", fmt.Errorf("%w: operator %q", ErrInvalidClause, c.Op)
	}
	if c.Op == OpIsNull || c.Op == OpIsNotNull {
		return col + " " + strings.ToUpper(string(c.Op)), nil
	}

	lit, err := literal(c.Field.kind(), c.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidClause, c.Field, err)
	}
	return col + " " + string(c.Op) + " " + lit, nil
}

func literal(kind fieldKind, v any) (string, error) {
	switch val := v.(type) {
	case civil.Date:
		return dateLiteral(val), nil
	case decimal.Decimal:
		return val.String(), nil
	case json.Number:
		return numberLiteral(val.String())
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case string:
		switch kind {
		case kindDate:
			d, err := civil.ParseDate(strings.TrimSpace(val))
			if err != nil {
				return "", fmt.Errorf("not a date: %q", val)
			}
			return dateLiteral(d), nil
		case kindNumber:
			return numberLiteral(val)
		}
		return stringLiteral(val)
	}
	return "", fmt.Errorf("unsupported literal type %T", v)
}

func numberLiteral(s string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("not a number: %q", s)
	}
	return d.String(), nil
}

// stringLiteral quotes s. The query language has no escape sequences, so a
// value containing both quote characters cannot be expressed.
func stringLiteral(s string) (string, error) {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'", nil
	case !strings.Contains(s, `"`):
		return `"` + s + `"`, nil
	}
	return "", fmt.Errorf("value contains both quote characters: %q", s)
}

func dateLiteral(d civil.Date) string {
	return "date '" + d.String() + "'"
}
