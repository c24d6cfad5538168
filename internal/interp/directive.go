package interp

import (
	"context"
	"fmt"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/effect"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/guard"
)

// evalDirective dispatches a parsed `/kind ...` statement. Directive.Values
// keys are this package's own convention (the ast package leaves them
// free-form per directive kind, spec §3.4): "target" names the bound
// variable, "value"/"expr" is the right-hand expression, "then"/"else" are
// *ast.Document-wrapped blocks (see evalBlock), "for" carries the parsed
// ForExpression, "names" an ArrayLiteral of string names, "source" the
// import ref, "def" the ExecDefinition, and output's "to" target plus its
// Subtype ("to" | "append" | "stdout" | "stderr").
func (ip *Interpreter) evalDirective(ctx context.Context, d *ast.Directive, e *env.Environment) error {
	switch d.Kind {
	case ast.DirectiveVar, ast.DirectiveLet, ast.DirectivePath:
		return ip.evalBinding(ctx, d, e)
	case ast.DirectiveExe:
		return ip.evalExeDef(d, e)
	case ast.DirectiveShow:
		return ip.evalShow(ctx, d, e)
	case ast.DirectiveRun:
		return ip.evalRun(ctx, d, e)
	case ast.DirectiveOutput:
		return ip.evalOutput(ctx, d, e)
	case ast.DirectiveImport:
		return ip.evalImport(ctx, d, e)
	case ast.DirectiveExport:
		return ip.evalExport(d, e)
	case ast.DirectiveIf:
		return ip.evalIf(ctx, d, e)
	case ast.DirectiveFor:
		return ip.evalForDirective(ctx, d, e)
	default:
		return fmt.Errorf("interp: unsupported directive kind %q", d.Kind)
	}
}

func targetRef(d *ast.Directive) (*ast.VariableReference, bool) {
	ref, ok := d.Value("target").(*ast.VariableReference)
	return ref, ok
}

func (ip *Interpreter) evalBinding(ctx context.Context, d *ast.Directive, e *env.Environment) error {
	ref, ok := targetRef(d)
	if !ok {
		return fmt.Errorf("interp: %s directive missing target", d.Kind)
	}
	if diagnostic.ReservedNames[ref.Identifier] {
		return &diagnostic.ReservedName{Name: ref.Identifier, Loc: d.Pos}
	}
	if d.Kind == ast.DirectiveVar && !e.IsModuleScope() {
		return &diagnostic.VarInBlockScope{Name: ref.Identifier, Loc: d.Pos}
	}

	valExpr := d.Expr("value")
	if valExpr == nil {
		return fmt.Errorf("interp: %s @%s missing value expression", d.Kind, ref.Identifier)
	}
	v, err := ip.evalExpr(ctx, valExpr, e)
	if err != nil {
		return err
	}

	var labels []string
	if arr, ok := d.Value("labels").(*ast.ArrayLiteral); ok {
		for _, el := range arr.Elements {
			if s, ok := el.(*ast.StringLiteral); ok {
				labels = append(labels, s.Value)
			}
		}
	}

	source := value.SourceLet
	scope := value.ScopeBlock
	switch d.Kind {
	case ast.DirectiveVar:
		source, scope = value.SourceVar, value.ScopeModule
	case ast.DirectivePath:
		source, scope = value.SourcePath, value.ScopeBlock
	}

	return e.Set(value.NewVariable(ref.Identifier, v, source, scope, labels...))
}

func (ip *Interpreter) evalExeDef(d *ast.Directive, e *env.Environment) error {
	def, ok := d.Value("def").(*ast.ExecDefinition)
	if !ok {
		return fmt.Errorf("interp: exe directive missing definition")
	}
	if diagnostic.ReservedNames[def.Name] {
		return &diagnostic.ReservedName{Name: def.Name, Loc: d.Pos}
	}
	callable := value.Callable{
		Name:     def.Name,
		Params:   def.Params,
		BodyKind: string(def.Kind),
		Def:      def,
	}
	v := value.Variable{
		Name:       def.Name,
		Value:      value.Text("", value.NewDescriptor(value.TaintTrusted)),
		SourceKind: value.SourceExe,
		ScopeKind:  value.ScopeModule,
		Metadata:   map[string]interface{}{"callable": callable},
	}
	return e.Set(v)
}

func (ip *Interpreter) evalShow(ctx context.Context, d *ast.Directive, e *env.Environment) error {
	exprNode := d.Expr("expr")
	if exprNode == nil {
		return fmt.Errorf("interp: show directive missing expression")
	}
	target := guard.Target{Op: "show"}
	if err := ip.checkBefore(target, e); err != nil {
		return err
	}
	v, err := ip.evalExpr(ctx, exprNode, e)
	if err != nil {
		return err
	}
	e.EmitEffect(effect.Effect{Type: effect.Doc, Content: v.Text, Security: v.Metadata.Security})
	return nil
}

func (ip *Interpreter) evalRun(ctx context.Context, d *ast.Directive, e *env.Environment) error {
	exprNode := d.Expr("expr")
	if exprNode == nil {
		return fmt.Errorf("interp: run directive missing expression")
	}
	if err := ip.checkBefore(guard.Target{Op: "run"}, e); err != nil {
		return err
	}
	v, err := ip.evalExpr(ctx, exprNode, e)
	if err != nil {
		return err
	}
	// /run discards the document portion; its stdout/stderr already
	// reached the runtime's stdio via the executor's own streaming when
	// `with {stream:true}` is set, and are otherwise surfaced here as a
	// stdout effect (spec §4.2: "discard the document portion; stdout/
	// stderr are streamed or buffered by the executor (§4.7)").
	e.EmitEffect(effect.Effect{Type: effect.Stdout, Content: v.Text, Security: v.Metadata.Security})
	return nil
}

func (ip *Interpreter) evalOutput(ctx context.Context, d *ast.Directive, e *env.Environment) error {
	exprNode := d.Expr("expr")
	if exprNode == nil {
		return fmt.Errorf("interp: output directive missing expression")
	}
	v, err := ip.evalExpr(ctx, exprNode, e)
	if err != nil {
		return err
	}

	switch d.Subtype {
	case "stdout":
		e.EmitEffect(effect.Effect{Type: effect.Stdout, Content: v.Text, Security: v.Metadata.Security})
		return nil
	case "stderr":
		e.EmitEffect(effect.Effect{Type: effect.Stderr, Content: v.Text, Security: v.Metadata.Security})
		return nil
	}

	targetExpr := d.Expr("to")
	if targetExpr == nil {
		return fmt.Errorf("interp: output directive missing target path")
	}
	pathVal, err := ip.evalExpr(ctx, targetExpr, e)
	if err != nil {
		return err
	}
	fs := e.Shared().FS
	if fs == nil {
		return fmt.Errorf("interp: no filesystem configured for output to %q", pathVal.Text)
	}
	content := v.Text
	if d.Subtype == "append" && fs.Exists(pathVal.Text) {
		prior, err := fs.ReadFile(pathVal.Text)
		if err != nil {
			return err
		}
		content = string(prior) + content
	}
	if err := fs.WriteFile(pathVal.Text, []byte(content)); err != nil {
		return err
	}
	e.EmitEffect(effect.Effect{Type: effect.FileWrite, Content: content, Capability: pathVal.Text, Security: v.Metadata.Security})
	return nil
}

func (ip *Interpreter) evalImport(ctx context.Context, d *ast.Directive, e *env.Environment) error {
	sourceExpr := d.Expr("source")
	if sourceExpr == nil {
		return fmt.Errorf("interp: import directive missing source")
	}
	sourceVal, err := ip.evalExpr(ctx, sourceExpr, e)
	if err != nil {
		return err
	}
	resolver := e.Shared().Resolver
	if resolver == nil {
		return fmt.Errorf("interp: no module resolver configured")
	}

	ref, err := resolver.Canonicalize(sourceVal.Text)
	if err != nil {
		return &diagnostic.ResolverError{Ref: sourceVal.Text, Err: err}
	}
	sourceText, bindings, err := resolver.Load(ctx, ref)
	if err != nil {
		return &diagnostic.ResolverError{Ref: ref, Err: err}
	}

	var exported map[string]value.Variable
	if bindings != nil {
		exported = make(map[string]value.Variable, len(bindings))
		for name, raw := range bindings {
			exported[name] = value.NewVariable(name, value.JSONValue(raw, value.NewDescriptor(value.TaintTrusted)), value.SourceImport, value.ScopeModule)
		}
	} else {
		if ip.Parser == nil {
			return fmt.Errorf("interp: import %q returned raw source but no parser is configured", ref)
		}
		childDoc, perr := ip.Parser(sourceText, ref)
		if perr != nil {
			return perr
		}
		child := env.NewRoot(e.Shared(), ref)
		child.SetImporting(true)
		if err := ip.EvaluateDocument(ctx, childDoc, child); err != nil {
			return err
		}
		exported = child.Exports()
	}

	names, all := importNames(d)
	for name, v := range exported {
		if !all && !names[name] {
			continue
		}
		vv := v
		vv.SourceKind = value.SourceImport
		if err := e.Set(vv); err != nil {
			return err
		}
	}
	return nil
}

func importNames(d *ast.Directive) (map[string]bool, bool) {
	arr, ok := d.Value("names").(*ast.ArrayLiteral)
	if !ok {
		return nil, true // no explicit name list => import everything exported
	}
	names := make(map[string]bool, len(arr.Elements))
	for _, el := range arr.Elements {
		if s, ok := el.(*ast.StringLiteral); ok {
			names[s.Value] = true
		}
	}
	return names, false
}

func (ip *Interpreter) evalExport(d *ast.Directive, e *env.Environment) error {
	arr, ok := d.Value("names").(*ast.ArrayLiteral)
	if !ok {
		return fmt.Errorf("interp: export directive missing name list")
	}
	for _, el := range arr.Elements {
		if s, ok := el.(*ast.StringLiteral); ok {
			e.Export(s.Value)
		}
	}
	return nil
}

func (ip *Interpreter) evalIf(ctx context.Context, d *ast.Directive, e *env.Environment) error {
	cond := d.Expr("cond")
	if cond == nil {
		return fmt.Errorf("interp: if directive missing condition")
	}
	v, err := ip.evalExpr(ctx, cond, e)
	if err != nil {
		return err
	}
	branchKey := "else"
	if v.IsTruthy() {
		branchKey = "then"
	}
	block, ok := d.Value(branchKey).(*ast.Document)
	if !ok {
		return nil // absent else-branch is not an error
	}
	child := e.CreateChild(env.ChildBlock)
	return ip.evalBlock(ctx, block.Body, child)
}

func (ip *Interpreter) evalForDirective(ctx context.Context, d *ast.Directive, e *env.Environment) error {
	forExpr, ok := d.Value("for").(*ast.ForExpression)
	if !ok {
		return fmt.Errorf("interp: for directive missing loop expression")
	}
	_, err := ip.runFor(ctx, forExpr, e)
	return err
}
