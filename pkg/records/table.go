package records

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Kind controls how an incoming JSON value is coerced before it is bound
// to a statement parameter.
type Kind int

const (
	// KindText trims surrounding whitespace.
	KindText Kind = iota
	// KindNullableText trims and stores an empty string as NULL.
	KindNullableText
	// KindInteger falls back to 0 for anything that is not a number.
	KindInteger
	// KindNumber falls back to 0 for anything that is not a number.
	KindNumber
	// KindBool uses truthiness: nil, false, 0 and "" are false.
	KindBool
	// KindReference passes identifiers through; integral JSON numbers
	// become int64.
	KindReference
	// KindEmail trims and lower-cases; empty is NULL.
	KindEmail
	// KindHandle trims and strips leading "@" signs, so "@cafe" and "cafe"
	// store the same social handle; empty is NULL.
	KindHandle
)

// Column is a writable column.
type Column struct {
	Name     string
	Kind     Kind
	Required bool
}

// Record is one row keyed by column name.
type Record map[string]any

// Table describes how one admin table may be read and written. Only the
// columns listed here are ever written; other keys in a payload are
// ignored.
type Table struct {
	Name    string
	Columns []Column

	// OrderBy and Descending fix the List ordering.
	OrderBy    string
	Descending bool

	// Filters are the columns List accepts as equality filters.
	Filters []string

	// ToggleColumn is the boolean column flipped by Toggle.
	ToggleColumn string

	// KeyColumn is a unique natural key UpdateByKey may address rows by.
	// It is never written by UpdateByKey. Empty disables UpdateByKey.
	KeyColumn string

	// Copy derives the values inserted by Duplicate from an existing row.
	// When nil the writable columns are copied unchanged.
	Copy func(src Record, now time.Time) Record
}

// copySuffix is appended to the name of a duplicated row.
const copySuffix = " (cópia)"

// DefaultTables returns the admin tables: clientes, categorias and produtos.
func DefaultTables() []*Table {
	return []*Table{
		{
			Name: "clientes",
			Columns: []Column{
				{Name: "nome", Kind: KindText, Required: true},
				{Name: "slug", Kind: KindText, Required: true},
				{Name: "whatsapp", Kind: KindNullableText},
				{Name: "cidade", Kind: KindNullableText},
				{Name: "tipo_negocio", Kind: KindNullableText},
				{Name: "endereco", Kind: KindNullableText},
				{Name: "instagram", Kind: KindHandle},
				{Name: "logo_url", Kind: KindNullableText},
				{Name: "email", Kind: KindEmail},
				{Name: "ativo", Kind: KindBool},
			},
			OrderBy:      "id",
			Descending:   true,
			ToggleColumn: "ativo",
			KeyColumn:    "slug",
			Copy: func(src Record, now time.Time) Record {
				// email identifies the client's login and is not copied.
				dst := copyNamed(src, "nome", "whatsapp", "cidade", "tipo_negocio",
					"endereco", "instagram", "logo_url", "ativo")
				// slug is unique, so the copy gets a time-based suffix.
				dst["slug"] = fmt.Sprintf("%s-copia-%d", stringValue(src["slug"]), now.UnixMilli())
				return dst
			},
		},
		{
			Name: "categorias",
			Columns: []Column{
				{Name: "cliente_slug", Kind: KindText, Required: true},
				{Name: "nome", Kind: KindText, Required: true},
				{Name: "ordem", Kind: KindInteger},
				{Name: "ativo", Kind: KindBool},
			},
			OrderBy:      "ordem",
			Filters:      []string{"cliente_slug"},
			ToggleColumn: "ativo",
			Copy: func(src Record, _ time.Time) Record {
				return copyNamed(src, "cliente_slug", "nome", "ordem", "ativo")
			},
		},
		{
			Name: "produtos",
			Columns: []Column{
				{Name: "cliente_slug", Kind: KindText, Required: true},
				{Name: "categoria_id", Kind: KindReference, Required: true},
				{Name: "nome", Kind: KindText, Required: true},
				{Name: "descricao", Kind: KindText},
				{Name: "preco", Kind: KindNumber},
				{Name: "imagem_url", Kind: KindText},
				{Name: "ativo", Kind: KindBool},
			},
			OrderBy:      "created_at",
			Descending:   true,
			Filters:      []string{"cliente_slug", "categoria_id"},
			ToggleColumn: "ativo",
		},
	}
}

// copyNamed copies the given columns and suffixes "nome".
func copyNamed(src Record, cols ...string) Record {
	dst := make(Record, len(cols))
	for _, c := range cols {
		if v, ok := src[c]; ok {
			dst[c] = v
		}
	}
	if _, ok := dst["nome"]; ok {
		dst["nome"] = stringValue(dst["nome"]) + copySuffix
	}
	return dst
}

func (t *Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t *Table) allowsFilter(name string) bool {
	return slices.Contains(t.Filters, name)
}

// duplicate returns the values to insert for a copy of src.
func (t *Table) duplicate(src Record, now time.Time) Record {
	if t.Copy != nil {
		return t.Copy(src, now)
	}
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return copyNamed(src, names...)
}

// writable returns the coerced values for the table's columns present in
// values, in column order.
func (t *Table) writable(values Record) ([]string, []any) {
	var (
		cols []string
		args []any
	)
	for _, c := range t.Columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, c.Name)
		args = append(args, coerce(c.Kind, v))
	}
	return cols, args
}

// missingRequired returns the required columns absent or blank in values.
func (t *Table) missingRequired(values Record) []string {
	var missing []string
	for _, c := range t.Columns {
		if !c.Required {
			continue
		}
		v, ok := values[c.Name]
		if !ok || v == nil || strings.TrimSpace(stringValue(v)) == "" {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

func coerce(kind Kind, v any) any {
	switch kind {
	case KindText:
		return strings.TrimSpace(stringValue(v))
	case KindNullableText:
		if s := strings.TrimSpace(stringValue(v)); s != "" {
			return s
		}
		return nil
	case KindInteger:
		return int64(numberValue(v))
	case KindNumber:
		return numberValue(v)
	case KindBool:
		return truthy(v)
	case KindEmail:
		if s := strings.ToLower(strings.TrimSpace(stringValue(v))); s != "" {
			return s
		}
		return nil
	case KindHandle:
		if s := strings.TrimLeft(strings.TrimSpace(stringValue(v)), "@"); s != "" {
			return s
		}
		return nil
	case KindReference:
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			return int64(f)
		}
		return v
	default:
		return v
	}
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func numberValue(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return 0
		}
		return f.Float64
	default:
		return 0
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}

// Tables is an immutable name-indexed registry.
type Tables map[string]*Table

// NewTables indexes tables by name. Later entries replace earlier ones.
func NewTables(tables ...*Table) Tables {
	reg := make(Tables, len(tables))
	for _, t := range tables {
		reg[t.Name] = t
	}
	return reg
}

// Names returns the registered table names, sorted.
func (r Tables) Names() []string {
	return slices.Sorted(maps.Keys(r))
}
