package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"impressionism/internal/logging"
	"impressionism/internal/policy/ruleapi"
)

// Entry point names every ruleset must define.
const (
	EntryActivation   = "EvaluateActivation"
	EntryDeactivation = "EvaluateDeactivation"
)

// VM evaluates ruleset scripts in a sandboxed yaegi interpreter. Each
// evaluation runs in a fresh interpreter state: no state leaks between
// calls.
type VM struct {
	rulesDir string
}

// NewVM creates a VM rooted at the configured rules directory.
func NewVM(rulesDir string) *VM {
	return &VM{rulesDir: rulesDir}
}

// Evaluate loads the ruleset, verifies both entry points, and calls the
// named one with the context and host API. Any failure surfaces as
// *PolicyError (or *SandboxError for sandbox violations) and an empty
// decision set.
func (vm *VM) Evaluate(ctx context.Context, ruleset, entry string, ectx ruleapi.Context, api *ruleapi.API) ([]ruleapi.Decision, error) {
	log := logging.Get(logging.CategoryPolicy)

	source, err := vm.readRuleset(ruleset)
	if err != nil {
		return nil, &PolicyError{Ruleset: ruleset, Diagnostic: err.Error()}
	}

	i, err := vm.newInterpreter(ruleset, source)
	if err != nil {
		return nil, err
	}

	activation, err := vm.lookupEntry(i, ruleset, EntryActivation)
	if err != nil {
		return nil, err
	}
	deactivation, err := vm.lookupEntry(i, ruleset, EntryDeactivation)
	if err != nil {
		return nil, err
	}

	fn := activation
	if entry == EntryDeactivation {
		fn = deactivation
	}

	decisions, err := callEntry(ctx, fn, ectx, api)
	if err != nil {
		return nil, &PolicyError{Ruleset: ruleset, Diagnostic: fmt.Sprintf("%s: %v", entry, err)}
	}
	log.Debugf("ruleset %s %s returned %d decisions", ruleset, entry, len(decisions))
	return decisions, nil
}

// readRuleset resolves "builtin/default" to <rulesDir>/builtin/default.go
// after refusing traversal outside the rules directory.
func (vm *VM) readRuleset(ruleset string) (string, error) {
	norm, err := normalizeModulePath(ruleset)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(norm, "builtin/") && !strings.HasPrefix(norm, "custom/") {
		return "", fmt.Errorf("ruleset %q must live under builtin/ or custom/", ruleset)
	}
	data, err := os.ReadFile(filepath.Join(vm.rulesDir, filepath.FromSlash(norm)+".go"))
	if err != nil {
		return "", fmt.Errorf("read ruleset: %v", err)
	}
	return string(data), nil
}

// newInterpreter builds a fresh sandboxed interpreter with the script
// and any required ruleset modules evaluated.
func (vm *VM) newInterpreter(ruleset, source string) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(sandboxedSymbols()); err != nil {
		return nil, &PolicyError{Ruleset: ruleset, Diagnostic: fmt.Sprintf("install symbols: %v", err)}
	}
	if err := i.Use(ruleAPIExports()); err != nil {
		return nil, &PolicyError{Ruleset: ruleset, Diagnostic: fmt.Sprintf("install ruleapi: %v", err)}
	}

	if err := vm.evalWithModules(i, ruleset, source, map[string]bool{ruleset: true}); err != nil {
		return nil, err
	}
	return i, nil
}

// evalWithModules validates imports, evaluates required builtin/custom
// modules first (shared namespace), then evaluates the script itself.
func (vm *VM) evalWithModules(i *interp.Interpreter, name, source string, visited map[string]bool) error {
	imports, err := validateImports(name, wrapScript(source))
	if err != nil {
		return &SandboxError{Ruleset: name, Detail: err.Error()}
	}

	for _, module := range imports.Modules {
		if visited[module] {
			continue
		}
		visited[module] = true
		data, err := os.ReadFile(filepath.Join(vm.rulesDir, filepath.FromSlash(module)+".go"))
		if err != nil {
			return &PolicyError{Ruleset: name, Diagnostic: fmt.Sprintf("module %s: %v", module, err)}
		}
		if err := vm.evalWithModules(i, module, string(data), visited); err != nil {
			return err
		}
	}

	if _, err := i.Eval(stripModuleImports(wrapScript(source))); err != nil {
		return &PolicyError{Ruleset: name, Diagnostic: fmt.Sprintf("evaluate: %v", err)}
	}
	return nil
}

func (vm *VM) lookupEntry(i *interp.Interpreter, ruleset, entry string) (reflect.Value, error) {
	v, err := i.Eval("main." + entry)
	if err != nil {
		return reflect.Value{}, &PolicyError{
			Ruleset:    ruleset,
			Diagnostic: fmt.Sprintf("missing required entry point %s", entry),
		}
	}
	switch v.Interface().(type) {
	case func(ruleapi.Context, *ruleapi.API) []ruleapi.Decision,
		func(ruleapi.Context, *ruleapi.API) []string:
		return v, nil
	default:
		return reflect.Value{}, &PolicyError{
			Ruleset:    ruleset,
			Diagnostic: fmt.Sprintf("%s has wrong signature %T", entry, v.Interface()),
		}
	}
}

// callEntry invokes an entry point on its own goroutine so a wall-clock
// budget can abandon it, recovering panics into errors.
func callEntry(ctx context.Context, fn reflect.Value, ectx ruleapi.Context, api *ruleapi.API) ([]ruleapi.Decision, error) {
	type outcome struct {
		decisions []ruleapi.Decision
		err       error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("script panic: %v", r)}
			}
		}()
		switch f := fn.Interface().(type) {
		case func(ruleapi.Context, *ruleapi.API) []ruleapi.Decision:
			done <- outcome{decisions: f(ectx, api)}
		case func(ruleapi.Context, *ruleapi.API) []string:
			ids := f(ectx, api)
			decisions := make([]ruleapi.Decision, len(ids))
			for i, id := range ids {
				decisions[i] = ruleapi.Decision{SkillID: id}
			}
			done <- outcome{decisions: decisions}
		default:
			done <- outcome{err: fmt.Errorf("unsupported entry signature %T", fn.Interface())}
		}
	}()

	select {
	case out := <-done:
		return out.decisions, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("evaluation cancelled: %v", ctx.Err())
	}
}

// wrapScript adds the package clause when a script omits it.
func wrapScript(source string) string {
	if strings.Contains(source, "package main") {
		return source
	}
	return "package main\n\n" + source
}

// sandboxedSymbols filters the yaegi stdlib symbol table down to the
// import whitelist. Import validation runs before Eval as well; the
// filtered table means a bypassed check still finds nothing dangerous.
func sandboxedSymbols() interp.Exports {
	filtered := make(interp.Exports, len(allowedStdlib))
	for key, symbols := range stdlib.Symbols {
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			continue
		}
		if allowedStdlib[key[:idx]] {
			filtered[key] = symbols
		}
	}
	return filtered
}

// ruleAPIExports exposes the ruleapi package to interpreted scripts.
func ruleAPIExports() interp.Exports {
	return interp.Exports{
		"impressionism/ruleapi/ruleapi": {
			"Context":     reflect.ValueOf((*ruleapi.Context)(nil)),
			"Decision":    reflect.ValueOf((*ruleapi.Decision)(nil)),
			"Message":     reflect.ValueOf((*ruleapi.Message)(nil)),
			"ToolEvent":   reflect.ValueOf((*ruleapi.ToolEvent)(nil)),
			"SkillRecord": reflect.ValueOf((*ruleapi.SkillRecord)(nil)),
			"SearchHit":   reflect.ValueOf((*ruleapi.SearchHit)(nil)),
			"SessionInfo": reflect.ValueOf((*ruleapi.SessionInfo)(nil)),
			"API":         reflect.ValueOf((*ruleapi.API)(nil)),

			"EventSessionStart": reflect.ValueOf(ruleapi.EventSessionStart),
			"EventUserPrompt":   reflect.ValueOf(ruleapi.EventUserPrompt),
			"EventPostToolUse":  reflect.ValueOf(ruleapi.EventPostToolUse),
			"EventStop":         reflect.ValueOf(ruleapi.EventStop),
		},
	}
}
