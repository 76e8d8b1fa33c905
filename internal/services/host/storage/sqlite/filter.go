package sqlite

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// ErrInvalidFilter reports a filter expression the ledger cannot evaluate.
var ErrInvalidFilter = errors.New("invalid module load filter")

// condition is a SQL WHERE fragment with its positional parameters.
type condition struct {
	clause string
	params []any
}

// filterColumns maps filter identifiers to module_loads columns.
var filterColumns = map[string]string{
	"module":      "module",
	"outcome":     "outcome",
	"components":  "components",
	"duration_ms": "duration_ms",
	"loaded_at":   "loaded_at",
}

var comparisonOperators = map[string]string{
	"_==_": "=", "=": "=",
	"_!=_": "!=", "!=": "!=",
	"_<_": "<", "<": "<",
	"_<=_": "<=", "<=": "<=",
	"_>_": ">", ">": ">",
	"_>=_": ">=", ">=": ">=",
}

func moduleLoadDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("module", filtering.TypeString),
		filtering.DeclareIdent("outcome", filtering.TypeString),
		filtering.DeclareIdent("components", filtering.TypeInt),
		filtering.DeclareIdent("duration_ms", filtering.TypeInt),
		filtering.DeclareIdent("loaded_at", filtering.TypeTimestamp),
	)
}

// parseFilter turns an AIP-160 expression into a SQL condition. An empty
// filter matches every row.
func parseFilter(raw string) (condition, error) {
	if strings.TrimSpace(raw) == "" {
		return condition{clause: "1 = 1"}, nil
	}
	decls, err := moduleLoadDeclarations()
	if err != nil {
		return condition{}, fmt.Errorf("create declarations: %w", err)
	}
	filter, err := filtering.ParseFilterString(raw, decls)
	if err != nil {
		return condition{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	cond, err := translate(filter.CheckedExpr.GetExpr())
	if err != nil {
		return condition{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return cond, nil
}

func translate(e *expr.Expr) (condition, error) {
	call, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok {
		return condition{}, fmt.Errorf("unsupported expression %T", e.GetExprKind())
	}
	fn := call.CallExpr.GetFunction()
	args := call.CallExpr.GetArgs()
	switch fn {
	case "_&&_", "AND", "_||_", "OR":
		if len(args) != 2 {
			return condition{}, fmt.Errorf("%s requires 2 arguments", fn)
		}
		left, err := translate(args[0])
		if err != nil {
			return condition{}, err
		}
		right, err := translate(args[1])
		if err != nil {
			return condition{}, err
		}
		joiner := "AND"
		if fn == "_||_" || fn == "OR" {
			joiner = "OR"
		}
		return condition{
			clause: fmt.Sprintf("(%s %s %s)", left.clause, joiner, right.clause),
			params: append(left.params, right.params...),
		}, nil
	}

	op, ok := comparisonOperators[fn]
	if !ok {
		return condition{}, fmt.Errorf("unsupported function %s", fn)
	}
	if len(args) != 2 {
		return condition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return condition{}, fmt.Errorf("expected identifier, got %T", args[0].GetExprKind())
	}
	column, ok := filterColumns[ident.IdentExpr.GetName()]
	if !ok {
		return condition{}, fmt.Errorf("unknown field %s", ident.IdentExpr.GetName())
	}
	value, err := literal(args[1])
	if err != nil {
		return condition{}, err
	}
	return condition{clause: fmt.Sprintf("%s %s ?", column, op), params: []any{value}}, nil
}

func literal(e *expr.Expr) (any, error) {
	switch kind := e.GetExprKind().(type) {
	case *expr.Expr_ConstExpr:
		switch c := kind.ConstExpr.GetConstantKind().(type) {
		case *expr.Constant_StringValue:
			return c.StringValue, nil
		case *expr.Constant_Int64Value:
			return c.Int64Value, nil
		case *expr.Constant_Uint64Value:
			return c.Uint64Value, nil
		default:
			return nil, fmt.Errorf("unsupported constant %T", c)
		}
	case *expr.Expr_CallExpr:
		if kind.CallExpr.GetFunction() != "timestamp" || len(kind.CallExpr.GetArgs()) != 1 {
			return nil, fmt.Errorf("unsupported function %s in value position", kind.CallExpr.GetFunction())
		}
		arg, ok := kind.CallExpr.GetArgs()[0].GetConstExpr().GetConstantKind().(*expr.Constant_StringValue)
		if !ok {
			return nil, fmt.Errorf("timestamp argument must be a string")
		}
		ts, err := time.Parse(time.RFC3339Nano, arg.StringValue)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q", arg.StringValue)
		}
		return toMillis(ts), nil
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}
