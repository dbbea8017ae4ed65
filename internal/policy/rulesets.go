package policy

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"impressionism/internal/logging"
)

// Builtin rulesets shipped with the binary and installed by `init`.
// The underscore directory keeps the script sources out of the host
// build; they are only ever interpreted.
//
//go:embed all:_rulesets
var builtinRulesets embed.FS

// InstallBuiltins writes the bundled rulesets under rulesDir/builtin and
// creates rulesDir/custom. With overwrite false, existing files are kept
// so user edits survive.
func InstallBuiltins(rulesDir string, overwrite bool) error {
	log := logging.Get(logging.CategoryPolicy)

	for _, sub := range []string{"builtin", "custom"} {
		if err := os.MkdirAll(filepath.Join(rulesDir, sub), 0o755); err != nil {
			return fmt.Errorf("create rules dir: %w", err)
		}
	}

	entries, err := builtinRulesets.ReadDir("_rulesets")
	if err != nil {
		return fmt.Errorf("read bundled rulesets: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dst := filepath.Join(rulesDir, "builtin", entry.Name())
		if !overwrite {
			if _, err := os.Stat(dst); err == nil {
				continue
			}
		}
		data, err := builtinRulesets.ReadFile("_rulesets/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read bundled ruleset %s: %w", entry.Name(), err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("install ruleset %s: %w", entry.Name(), err)
		}
		log.Debugf("installed builtin ruleset %s", dst)
	}
	return nil
}
