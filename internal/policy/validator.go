package policy

import (
	"fmt"
	"strings"
)

// validFailOn is the set of allowed fail_on values (upper-case canonical form).
var validFailOn = map[string]struct{}{
	"FAIL":  {},
	"ERROR": {},
}

// Validate checks cfg for semantic correctness and returns all validation errors
// found. An empty slice means the config is valid.
//
// Checks performed:
//   - version must be 1
//   - service names must appear in knownServices
//   - check IDs must appear in knownChecks
//   - check params must not be negative
//   - enforcement keys must be a known service or "all"
//   - enforcement fail_on must be FAIL or ERROR
//
// All errors are collected before returning; Validate never stops at the first error.
func Validate(cfg *PolicyConfig, knownServices, knownChecks []string) []error {
	if cfg == nil {
		return []error{fmt.Errorf("policy config is nil")}
	}

	services := toSet(knownServices)
	checks := toSet(knownChecks)

	var errs []error

	// Version check.
	if cfg.Version != 1 {
		errs = append(errs, fmt.Errorf("version: unsupported value %d; must be 1", cfg.Version))
	}

	// Service checks.
	for name := range cfg.Services {
		if _, ok := services[name]; !ok {
			errs = append(errs, fmt.Errorf("services.%s: unknown service; valid values: %s", name, strings.Join(knownServices, ", ")))
		}
	}

	// Check checks.
	for checkID, cc := range cfg.Checks {
		if _, ok := checks[checkID]; !ok {
			errs = append(errs, fmt.Errorf("checks.%s: unknown check ID", checkID))
		}
		for key, v := range cc.Params {
			if v < 0 {
				errs = append(errs, fmt.Errorf("checks.%s.params.%s: must not be negative, got %g", checkID, key, v))
			}
		}
	}

	// Enforcement checks.
	for key, enfCfg := range cfg.Enforcement {
		if _, ok := services[key]; !ok && key != AllServices {
			errs = append(errs, fmt.Errorf("enforcement.%s: unknown service; valid values: %s, %s", key, strings.Join(knownServices, ", "), AllServices))
		}
		if enfCfg.FailOn != "" {
			if _, ok := validFailOn[strings.ToUpper(enfCfg.FailOn)]; !ok {
				errs = append(errs, fmt.Errorf("enforcement.%s.fail_on: invalid value %q; valid values: FAIL, ERROR", key, enfCfg.FailOn))
			}
		}
	}

	return errs
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
