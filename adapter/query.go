package adapter

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func column(field string) (string, bool, error) {
	if field == "id" {
		return "id", true, nil
	}
	if !fieldPattern.MatchString(field) {
		return "", false, fmt.Errorf("%w: field %q", ErrInvalidWhere, field)
	}
	return "json_extract(data, '$." + field + "')", false, nil
}

func bindValue(v any, isID bool) any {
	if isID {
		return IDString(v)
	}
	return v
}

func buildWhere(where []Where) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(" WHERE ")

	for i, w := range where {
		if i > 0 {
			switch w.Connector {
			case "", And:
				sb.WriteString(" AND ")
			case Or:
				sb.WriteString(" OR ")
			default:
				return "", nil, fmt.Errorf("%w: connector %q", ErrInvalidWhere, w.Connector)
			}
		}

		col, isID, err := column(w.Field)
		if err != nil {
			return "", nil, err
		}

		switch w.Operator {
		case "", OpEq:
			if w.Value == nil {
				sb.WriteString(col + " IS NULL")
				continue
			}
			sb.WriteString(col + " = ?")
			args = append(args, bindValue(w.Value, isID))
		case OpNe:
			if w.Value == nil {
				sb.WriteString(col + " IS NOT NULL")
				continue
			}
			sb.WriteString(col + " != ?")
			args = append(args, bindValue(w.Value, isID))
		case OpLt, OpLte, OpGt, OpGte:
			sb.WriteString(col + " " + comparison[w.Operator] + " ?")
			args = append(args, bindValue(w.Value, isID))
		case OpIn:
			values, err := expand(w.Value)
			if err != nil {
				return "", nil, err
			}
			if len(values) == 0 {
				sb.WriteString("0")
				continue
			}
			sb.WriteString(col + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(values)), ",") + ")")
			for _, v := range values {
				args = append(args, bindValue(v, isID))
			}
		case OpContains, OpStartsWith, OpEndsWith:
			s, ok := w.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: %s needs a string value", ErrInvalidWhere, w.Operator)
			}
			pattern := likeEscaper.Replace(s)
			switch w.Operator {
			case OpContains:
				pattern = "%" + pattern + "%"
			case OpStartsWith:
				pattern += "%"
			default:
				pattern = "%" + pattern
			}
			sb.WriteString(col + ` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		default:
			return "", nil, fmt.Errorf("%w: operator %q", ErrInvalidWhere, w.Operator)
		}
	}

	return sb.String(), args, nil
}

var comparison = map[Operator]string{
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

func expand(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: in needs a slice value", ErrInvalidWhere)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func buildOrder(sort *SortBy) (string, error) {
	if sort == nil || sort.Field == "" {
		return " ORDER BY seq ASC", nil
	}
	col, _, err := column(sort.Field)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(sort.Direction) {
	case "", "asc":
		return " ORDER BY " + col + " ASC, seq ASC", nil
	case "desc":
		return " ORDER BY " + col + " DESC, seq DESC", nil
	default:
		return "", fmt.Errorf("%w: sort direction %q", ErrInvalidWhere, sort.Direction)
	}
}
