package policy

import (
	"fmt"
	"go/parser"
	"go/token"
	"path"
	"strconv"
	"strings"
)

// allowedStdlib is the whitelist of importable standard library packages.
// Pure computation only: no filesystem, process, network, or
// introspection surfaces.
var allowedStdlib = map[string]bool{
	"fmt":             true,
	"strings":         true,
	"strconv":         true,
	"math":            true,
	"sort":            true,
	"regexp":          true,
	"unicode":         true,
	"unicode/utf8":    true,
	"errors":          true,
	"time":            true,
	"encoding/json":   true,
	"encoding/base64": true,

	// Explicitly absent: os, os/exec, io, io/fs, net, net/http,
	// syscall, unsafe, reflect, runtime, plugin, path/filepath.
}

// ruleAPIImport is the host API package scripts program against.
const ruleAPIImport = "impressionism/ruleapi"

// scriptImports describes a validated script's imports split by kind.
type scriptImports struct {
	// Modules are builtin/… or custom/… shared ruleset modules, in
	// declaration order.
	Modules []string
}

// validateImports parses the script's import set and enforces the
// sandbox whitelist. Returns the ruleset modules the script requires.
func validateImports(name, source string) (scriptImports, error) {
	var out scriptImports

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, source, parser.ImportsOnly)
	if err != nil {
		return out, fmt.Errorf("parse imports: %v", err)
	}

	for _, imp := range file.Imports {
		spec, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return out, fmt.Errorf("malformed import %s", imp.Path.Value)
		}
		switch {
		case spec == ruleAPIImport:
		case allowedStdlib[spec]:
		case strings.HasPrefix(spec, "builtin/") || strings.HasPrefix(spec, "custom/"):
			norm, err := normalizeModulePath(spec)
			if err != nil {
				return out, err
			}
			out.Modules = append(out.Modules, norm)
		default:
			return out, fmt.Errorf("import %q is not allowed in the sandbox", spec)
		}
	}
	return out, nil
}

// normalizeModulePath cleans a builtin/custom module path and refuses
// traversal and absolute components.
func normalizeModulePath(spec string) (string, error) {
	if strings.HasPrefix(spec, "/") {
		return "", fmt.Errorf("module path %q must be relative", spec)
	}
	for _, part := range strings.Split(spec, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("module path %q contains a refused component", spec)
		}
	}
	clean := path.Clean(spec)
	if clean != spec {
		return "", fmt.Errorf("module path %q is not normalized", spec)
	}
	return clean, nil
}

// stripModuleImports removes builtin/custom import lines from a script
// before evaluation. Module sources are evaluated into the shared
// interpreter namespace first, so their identifiers resolve without the
// import.
func stripModuleImports(source string) string {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, `"builtin/`) || strings.HasPrefix(trimmed, `"custom/`) {
			continue
		}
		if strings.HasPrefix(trimmed, `import "`) &&
			(strings.Contains(trimmed, `"builtin/`) || strings.Contains(trimmed, `"custom/`)) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
