// Package profiles loads named capture profiles from YAML files. A profile
// fixes the region and scroll direction of a recurring capture, such as a
// browser viewport, and may override session tunables.
package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"jordanella.com/scroll-stitch/internal/cv"
	"jordanella.com/scroll-stitch/internal/scroll"
)

// Profile is a resolved capture profile
type Profile struct {
	Name      string
	Region    cv.Region
	Direction cv.Direction

	// Overrides; nil keeps the configured value
	SampleRate        *float64
	Threshold         *int
	MaxScrollAttempts *int
	MaxIdleCycles     *int
}

// Apply returns opts with the profile overrides applied
func (p Profile) Apply(opts scroll.Options) scroll.Options {
	if p.SampleRate != nil {
		opts.SampleRate = *p.SampleRate
	}
	if p.Threshold != nil {
		opts.MatchThreshold = uint8(*p.Threshold)
		opts.Match.Threshold = float64(*p.Threshold)
	}
	if p.MaxScrollAttempts != nil {
		opts.MaxScrollAttempts = *p.MaxScrollAttempts
	}
	if p.MaxIdleCycles != nil {
		opts.MaxIdleCycles = *p.MaxIdleCycles
	}
	return opts
}

// ProfileDefinition represents a profile in the YAML file
type ProfileDefinition struct {
	Name              string    `yaml:"name"`
	Region            RegionDef `yaml:"region"`
	Direction         string    `yaml:"direction,omitempty"`
	SampleRate        *float64  `yaml:"sample_rate,omitempty"`
	Threshold         *int      `yaml:"threshold,omitempty"`
	MaxScrollAttempts *int      `yaml:"max_scroll_attempts,omitempty"`
	MaxIdleCycles     *int      `yaml:"max_idle_cycles,omitempty"`
}

// RegionDef represents a region in the YAML file
type RegionDef struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ProfileFile represents the structure of a profile YAML file
type ProfileFile struct {
	Profiles []ProfileDefinition `yaml:"profiles"`
}

// Registry holds capture profiles by name
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]Profile),
	}
}

// LoadFromFile loads profiles from a YAML file. A file with an invalid
// profile loads nothing.
func (r *Registry) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read profile file %s: %w", filePath, err)
	}

	var file ProfileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal profile YAML: %w", err)
	}

	loaded := make([]Profile, 0, len(file.Profiles))
	for i, def := range file.Profiles {
		p, err := def.resolve()
		if err != nil {
			return fmt.Errorf("profile %d: %w", i+1, err)
		}
		loaded = append(loaded, p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range loaded {
		r.profiles[p.Name] = p
	}

	return nil
}

// LoadFromDirectory loads all YAML files from a directory
func (r *Registry) LoadFromDirectory(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read profile directory %s: %w", dirPath, err)
	}

	var loadErrors []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		if err := r.LoadFromFile(filepath.Join(dirPath, entry.Name())); err != nil {
			loadErrors = append(loadErrors, fmt.Errorf("file %s: %w", entry.Name(), err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load %d profile files (first error): %w", len(loadErrors), loadErrors[0])
	}

	return nil
}

func (def ProfileDefinition) resolve() (Profile, error) {
	if def.Name == "" {
		return Profile{}, fmt.Errorf("name cannot be empty")
	}

	region := cv.NewRegion(def.Region.X, def.Region.Y, def.Region.Width, def.Region.Height)
	if err := region.Validate(); err != nil {
		return Profile{}, fmt.Errorf("%s: %w", def.Name, err)
	}

	direction, err := cv.ParseDirection(def.Direction)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", def.Name, err)
	}

	if def.Threshold != nil && (*def.Threshold < 1 || *def.Threshold > 100) {
		return Profile{}, fmt.Errorf("%s: threshold must be in 1-100, got %d", def.Name, *def.Threshold)
	}

	return Profile{
		Name:              def.Name,
		Region:            region,
		Direction:         direction,
		SampleRate:        def.SampleRate,
		Threshold:         def.Threshold,
		MaxScrollAttempts: def.MaxScrollAttempts,
		MaxIdleCycles:     def.MaxIdleCycles,
	}, nil
}

// Get retrieves a profile by name
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[name]
	return p, ok
}

// Names returns all profile names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of profiles in the registry
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.profiles)
}
