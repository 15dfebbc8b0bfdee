package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// Persisted is the identity kept across restarts. The first three fields are
// required for a session to be resumable.
type Persisted struct {
	AccessToken    string `yaml:"access_token"`
	CharacterID    string `yaml:"character_id"`
	CharacterName  string `yaml:"character_name"`
	CharacterClass string `yaml:"character_class,omitempty"`
	CharacterLevel int    `yaml:"character_level,omitempty"`
}

// Resumable reports whether the saved identity can be used to re-enter the
// game at now. A token whose exp claim has passed is not resumable; tokens
// that are not JWTs are left for the server to judge.
func (p Persisted) Resumable(now time.Time) bool {
	if p.AccessToken == "" || p.CharacterID == "" || p.CharacterName == "" {
		return false
	}
	return !tokenExpired(p.AccessToken, now)
}

// Character returns the saved character identity.
func (p Persisted) Character() Character {
	return Character{
		ID:        ID(p.CharacterID),
		Name:      p.CharacterName,
		ClassName: p.CharacterClass,
		Level:     p.CharacterLevel,
	}
}

func tokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

// Persister saves and clears the resumable identity.
type Persister interface {
	Save(Persisted) error
	Clear() error
}

// FilePersister keeps the identity in a YAML file.
type FilePersister struct {
	Path string
}

// NewFilePersister creates a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// DefaultStatePath returns the state file location under the user config dir.
func DefaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "mudlink", "session.yaml")
}

// Load reads the saved identity. A missing file yields a zero value and no
// error.
func (f *FilePersister) Load() (Persisted, error) {
	var p Persisted
	content, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read state file %s: %w", f.Path, err)
	}
	if err := yaml.Unmarshal(content, &p); err != nil {
		return Persisted{}, fmt.Errorf("failed to parse state file %s: %w", f.Path, err)
	}
	return p, nil
}

// Save writes the identity, creating the directory if needed.
func (f *FilePersister) Save(p Persisted) error {
	content, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	return os.WriteFile(f.Path, content, 0o600)
}

// Clear removes the state file.
func (f *FilePersister) Clear() error {
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
