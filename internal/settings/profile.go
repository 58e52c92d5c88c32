package settings

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// profileFile is the on-disk TOML layout of an exported profile.
type profileFile struct {
	Name     string       `toml:"name,omitempty"`
	Settings UserSettings `toml:"settings"`
}

// LoadProfile reads a TOML profile. Keys missing from the file keep their
// default values; unknown keys are rejected.
func LoadProfile(path string) (UserSettings, string, error) {
	pf := profileFile{Settings: Default()}

	md, err := toml.DecodeFile(path, &pf)
	if err != nil {
		return Default(), "", fmt.Errorf("decode profile %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Default(), "", fmt.Errorf("decode profile %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	// Normalise the preset the same way stored values are.
	pf.Settings.Preset = ParsePreset(string(pf.Settings.Preset))

	if err := pf.Settings.Validate(); err != nil {
		return Default(), "", fmt.Errorf("profile %s: %w", path, err)
	}
	return pf.Settings, pf.Name, nil
}

// SaveProfile writes s as a TOML profile, creating parent directories.
func SaveProfile(path, name string, s UserSettings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	if err := WriteProfile(f, name, s); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteProfile encodes s as a TOML profile to w.
func WriteProfile(w io.Writer, name string, s UserSettings) error {
	if err := toml.NewEncoder(w).Encode(profileFile{Name: name, Settings: s}); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return nil
}
