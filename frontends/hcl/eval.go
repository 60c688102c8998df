package hcl

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/peick/docker-build/layers"
)

// envFunc returns the value of an environment variable, or "" if unset.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

func functions() map[string]function.Function {
	return map[string]function.Function{
		"env":    envFunc,
		"upper":  stdlib.UpperFunc,
		"lower":  stdlib.LowerFunc,
		"format": stdlib.FormatFunc,
		"join":   stdlib.JoinFunc,
		"concat": stdlib.ConcatFunc,
	}
}

// newEvalContext is the scope of one description file. dir is the file's
// directory.
func newEvalContext(dir string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"cwd":      cty.StringVal(dir),
			"username": cty.StringVal(layers.CurrentUsername()),
		},
		Functions: functions(),
	}
}

// isNull reports whether expr is absent or a literal null.
func isNull(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	if len(expr.Variables()) > 0 {
		return false
	}
	v, diags := expr.Value(nil)
	return !diags.HasErrors() && v.IsNull()
}

// evalString evaluates expr to a string.
func evalString(expr hcl.Expression, ctx *hcl.EvalContext) (string, hcl.Diagnostics) {
	v, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return "", diags
	}
	var s string
	if err := gocty.FromCtyValue(v, &s); err != nil {
		return "", hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Incorrect attribute value type",
			Detail:   fmt.Sprintf("A string is required: %s.", err),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return s, nil
}

// referenceName returns the name of a `<kind>.<name>` traversal. ok is false
// when expr is not such a traversal.
func referenceName(expr hcl.Expression, kind string) (string, bool) {
	traversal, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() || len(traversal) != 2 || traversal.RootName() != kind {
		return "", false
	}
	attr, ok := traversal[1].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return attr.Name, true
}

// tempRepoTagTemplate renders a temp_repotag expression with the name
// tokens of a temporary layer.
func tempRepoTagTemplate(expr hcl.Expression, parent *hcl.EvalContext, files fileSet) func(layers.NameTokens) (string, error) {
	return func(t layers.NameTokens) (string, error) {
		ctx := parent.NewChild()
		ctx.Variables = map[string]cty.Value{
			"username":  cty.StringVal(t.Username),
			"uniq_id":   cty.StringVal(t.UniqID),
			"uniq_id16": cty.StringVal(t.UniqID16),
			"uniq_id30": cty.StringVal(t.UniqID30),
		}
		s, diags := evalString(expr, ctx)
		if diags.HasErrors() {
			return "", fmt.Errorf("%s", files.format(diags))
		}
		return s, nil
	}
}
