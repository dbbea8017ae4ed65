package config

// Param resolves a ruleset parameter. Lookup order: the active ruleset's
// override block, then the global parameter block, then the caller's
// default.
func (c *Config) Param(ruleset, name string, def interface{}) interface{} {
	if overrides, ok := c.Rulesets[ruleset]; ok {
		if v, ok := overrides[name]; ok {
			return v
		}
	}
	if v, ok := c.Parameters[name]; ok {
		return v
	}
	return def
}

// ParamFloat resolves a parameter and coerces it to float64. YAML decodes
// whole numbers as int, so both arrive here.
func (c *Config) ParamFloat(ruleset, name string, def float64) float64 {
	switch v := c.Param(ruleset, name, def).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// ParamInt resolves a parameter and coerces it to int.
func (c *Config) ParamInt(ruleset, name string, def int) int {
	switch v := c.Param(ruleset, name, def).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
