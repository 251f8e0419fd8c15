// ABOUTME: Named server profiles loaded from a TOML file
// ABOUTME: Lets one ember install talk to several gateways without editing the main config

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ErrProfileNotFound indicates the requested profile name does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is one named gateway target.
type Profile struct {
	URL          string `toml:"url"`
	TokenFile    string `toml:"token_file"`
	DefaultAgent string `toml:"default_agent"`
}

// Profiles is the parsed contents of profiles.toml.
type Profiles struct {
	// Default names the profile used when none is given on the command line.
	Default string             `toml:"default"`
	Profile map[string]Profile `toml:"profile"`
}

// LoadProfiles reads a profiles.toml file. A missing file yields an empty
// set, not an error.
func LoadProfiles(path string) (*Profiles, error) {
	var p Profiles
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Profiles{Profile: map[string]Profile{}}, nil
		}
		return nil, fmt.Errorf("parsing profiles file: %w", err)
	}
	if p.Profile == nil {
		p.Profile = map[string]Profile{}
	}
	return &p, nil
}

// Resolve returns the named profile, falling back to the configured default
// when name is empty. An empty name with no default returns a zero Profile
// and no error.
func (p *Profiles) Resolve(name string) (Profile, error) {
	if name == "" {
		name = p.Default
	}
	if name == "" {
		return Profile{}, nil
	}
	prof, ok := p.Profile[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return prof, nil
}
