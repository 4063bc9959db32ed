package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Profile is the identity one daemon syncs as.
type Profile struct {
	Name   string `toml:"-"`
	APIURL string `toml:"api_url" validate:"required,url"`
	UserID string `toml:"user_id" validate:"required"`
	Role   string `toml:"role" validate:"required,oneof=student landlord"`
	Token  string `toml:"token,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that p can be used to start a daemon.
func (p *Profile) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("profile %s: invalid %s", p.Name, strings.Join(fields, ", "))
		}
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return nil
}

// Load reads and validates the named profile.
func Load(name string) (*Profile, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	var p Profile
	if _, err := toml.DecodeFile(FilePath(name), &p); err != nil {
		return nil, fmt.Errorf("load profile %s: %w", name, err)
	}
	p.Name = name
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save validates p and writes it, creating the profile directory.
func Save(p *Profile) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := EnsureDir(p.Name); err != nil {
		return err
	}
	path := FilePath(p.Name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(p)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// List returns the names of all profiles that have a settings file.
func List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(BaseDir(), "profiles", "*", "profile.toml"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(filepath.Dir(m)))
	}
	return names, nil
}
