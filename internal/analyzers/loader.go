package analyzers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"gopkg.in/yaml.v3"
)

// Profildateien werden als <searchPath>/<profile>.json oder .yaml gesucht,
// z.B. "janitza/umg96"
var profileExtensions = []string{".json", ".yaml", ".yml"}

type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

func (l *ProfileLoader) Load(profilePath string) (*types.AnalyzerProfileDefinition, error) {
	// Cache-Check
	if cached, ok := l.cache.Load(profilePath); ok {
		return cached.(*types.AnalyzerProfileDefinition), nil
	}

	var data []byte
	var foundPath string

	for _, searchPath := range l.searchPaths {
		for _, ext := range profileExtensions {
			fullPath := filepath.Join(searchPath, profilePath+ext)
			if fileData, err := os.ReadFile(fullPath); err == nil {
				data = fileData
				foundPath = fullPath
				break
			}
		}
		if data != nil {
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("profile not found: %s (searched in: %v)", profilePath, l.searchPaths)
	}

	profile, err := l.parse(data, filepath.Ext(foundPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", foundPath, err)
	}

	l.cache.Store(profilePath, profile)

	return profile, nil
}

func (l *ProfileLoader) parse(data []byte, ext string) (*types.AnalyzerProfileDefinition, error) {
	var profile types.AnalyzerProfileDefinition

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		// YAML wird für die Schema-Validierung nach JSON normalisiert
		if err := l.validator.ValidateProfileDefinition(&profile); err != nil {
			return nil, err
		}
	default:
		if err := l.validator.ValidateProfile(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
	}

	return &profile, nil
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
