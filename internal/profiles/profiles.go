// Package profiles holds the built-in monitoring profile catalog. A Profile
// selects which ports to watch and which of those are required, and carries
// CPU/RAM alert threshold values; the alert engine takes its CPU/RAM
// thresholds from the daemon configuration, not from the active profile.
// The three built-ins are embedded as a
// TOML document and parsed once at package init, mirroring the teacher's
// embedded-default-config-file pattern but using a real TOML parser instead
// of hand-rolled line parsing.
package profiles

import (
	"context"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/opus-domini/devstatd/internal/settings"
)

// Profile is a named monitoring configuration.
type Profile struct {
	Name            string `toml:"name"`
	WatchPorts      []int  `toml:"watch_ports"`
	RequiredPorts   []int  `toml:"required_ports"`
	AlertCPUPercent int    `toml:"alert_cpu_percent"`
	AlertRAMPercent int    `toml:"alert_ram_percent"`
}

// DefaultProfileName is used when no active profile has been selected yet,
// or the selected name no longer resolves to a known profile.
const DefaultProfileName = "default"

type catalogDoc struct {
	Profile []Profile `toml:"profile"`
}

const embeddedCatalog = `
[[profile]]
name = "default"
watch_ports = [3000, 5173, 8000, 1433, 5672, 15672]
required_ports = [3000, 1433, 5672]
alert_cpu_percent = 85
alert_ram_percent = 90

[[profile]]
name = "frontend-dev"
watch_ports = [3000, 5173, 8000]
required_ports = [5173]
alert_cpu_percent = 90
alert_ram_percent = 92

[[profile]]
name = "microservices"
watch_ports = [8000, 8001, 8002, 1433, 5432, 5672, 6379, 15672]
required_ports = [8000, 1433, 5672]
alert_cpu_percent = 85
alert_ram_percent = 90
`

var builtins map[string]Profile

func init() {
	var doc catalogDoc
	if _, err := toml.Decode(embeddedCatalog, &doc); err != nil {
		panic(fmt.Sprintf("profiles: decode embedded catalog: %v", err))
	}
	builtins = make(map[string]Profile, len(doc.Profile))
	for _, p := range doc.Profile {
		builtins[p.Name] = p
	}
}

// List returns all built-in profiles sorted by name.
func List() []Profile {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Profile, 0, len(names))
	for _, name := range names {
		out = append(out, builtins[name])
	}
	return out
}

// Get looks up a built-in profile by name.
func Get(name string) (Profile, bool) {
	p, ok := builtins[name]
	return p, ok
}

// Default returns the default built-in profile.
func Default() Profile {
	return builtins[DefaultProfileName]
}

// Catalog wires the profile list to persisted active-profile selection.
type Catalog struct {
	settings *settings.Store
}

func NewCatalog(st *settings.Store) *Catalog {
	return &Catalog{settings: st}
}

// Active returns the currently selected profile, falling back to the
// default when no selection has been persisted or the stored name no
// longer resolves.
func (c *Catalog) Active(ctx context.Context) (Profile, error) {
	name, ok, err := c.settings.Get(ctx, settings.KeyActiveProfileName)
	if err != nil {
		return Profile{}, err
	}
	if !ok {
		return Default(), nil
	}
	p, ok := Get(name)
	if !ok {
		return Default(), nil
	}
	return p, nil
}

// ErrUnknownProfile is returned by Select for an unrecognized profile name.
var ErrUnknownProfile = fmt.Errorf("unknown profile")

// Select persists name as the active profile. It rejects unknown names
// without mutating state (spec.md §7: "Unknown profile selected").
func (c *Catalog) Select(ctx context.Context, name string) (Profile, error) {
	p, ok := Get(name)
	if !ok {
		return Profile{}, ErrUnknownProfile
	}
	if err := c.settings.Set(ctx, settings.KeyActiveProfileName, name); err != nil {
		return Profile{}, err
	}
	return p, nil
}
