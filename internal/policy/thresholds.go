package policy

// GetThreshold returns the configured float64 parameter value for a check, or
// defaultValue when no override is present. It is safe to call with cfg == nil.
//
// Lookup order:
//  1. cfg == nil → defaultValue
//  2. cfg.Checks[checkID] absent → defaultValue
//  3. cfg.Checks[checkID].Params[key] absent → defaultValue
//  4. Otherwise → configured value
func GetThreshold(checkID, key string, defaultValue float64, cfg *PolicyConfig) float64 {
	if cfg == nil {
		return defaultValue
	}
	cc, ok := cfg.Checks[checkID]
	if !ok {
		return defaultValue
	}
	v, ok := cc.Params[key]
	if !ok {
		return defaultValue
	}
	return v
}
