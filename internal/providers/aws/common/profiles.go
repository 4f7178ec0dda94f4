package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// DiscoverProfiles returns the deduplicated profile names defined in the
// shared credentials and config files. AWS_SHARED_CREDENTIALS_FILE and
// AWS_CONFIG_FILE override the default ~/.aws locations.
func DiscoverProfiles() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	credPath := os.Getenv("AWS_SHARED_CREDENTIALS_FILE")
	if credPath == "" {
		credPath = filepath.Join(home, ".aws", "credentials")
	}
	cfgPath := os.Getenv("AWS_CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = filepath.Join(home, ".aws", "config")
	}
	return ProfilesFromFiles(credPath, cfgPath)
}

// ProfilesFromFiles reads the credentials file (bare section names) and the
// config file ("profile <name>" sections) and merges their profile names,
// preserving first-seen order. Missing files are not an error.
func ProfilesFromFiles(credentialsPath, configPath string) ([]string, error) {
	credProfiles, err := sectionNames(credentialsPath, false)
	if err != nil {
		return nil, err
	}
	cfgProfiles, err := sectionNames(configPath, true)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var all []string
	for _, name := range append(credProfiles, cfgProfiles...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		all = append(all, name)
	}
	return all, nil
}

// sectionNames returns the profile names declared in the INI file at path.
// When configStyle is true the "profile " prefix is stripped and non-profile
// sections such as [sso-session x] are skipped.
func sectionNames(path string, configStyle bool) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, SkipUnrecognizableLines: true}, path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var names []string
	for _, section := range f.SectionStrings() {
		if section == ini.DefaultSection {
			continue
		}
		name := strings.TrimSpace(section)
		if configStyle && name != "default" {
			if !strings.HasPrefix(name, "profile ") {
				continue
			}
			name = strings.TrimSpace(strings.TrimPrefix(name, "profile "))
		}
		names = append(names, name)
	}
	return names, nil
}
