package policy

// PolicyConfig is the parsed form of a policy file.
type PolicyConfig struct {
	Version     int                          `yaml:"version"`
	Services    map[string]ServiceConfig     `yaml:"services"`
	Checks      map[string]CheckConfig       `yaml:"checks"`
	Enforcement map[string]EnforcementConfig `yaml:"enforcement"`
}

// ServiceConfig toggles a whole service. A service absent from the map is
// enabled.
type ServiceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CheckConfig toggles one check ID and carries its numeric parameters.
type CheckConfig struct {
	Enabled *bool              `yaml:"enabled,omitempty"`
	Params  map[string]float64 `yaml:"params,omitempty"`
}

// EnforcementConfig sets the finding status that makes a run fail. The map
// key is a service ID or AllServices.
type EnforcementConfig struct {
	FailOn string `yaml:"fail_on"`
}

// AllServices is the enforcement key that applies to every service.
const AllServices = "all"
