package types

import (
	"github.com/google/uuid"
)

// AnalyzerProfileDefinition beschreibt ein Gerätemodell (Energiezähler,
// Netzanalysator) mit seiner Register-Map. Kommt aus JSON/YAML Profildateien.
type AnalyzerProfileDefinition struct {
	Profile    AnalyzerProfileInfo `json:"analyzer_profile" yaml:"analyzer_profile"`
	Connection ConnectionConfig    `json:"connection" yaml:"connection"`
	Registers  []NamedRegister     `json:"registers" yaml:"registers"`
}

type AnalyzerProfileInfo struct {
	ID          string `json:"id" yaml:"id"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Model       string `json:"model" yaml:"model"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
}

type ConnectionConfig struct {
	Protocol       string `json:"protocol" yaml:"protocol"`
	Port           int    `json:"port" yaml:"port"`
	UnitID         int    `json:"unit_id" yaml:"unit_id"`
	PollIntervalMs int    `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms"`
	TimeoutMs      int    `json:"timeout_ms,omitempty" yaml:"timeout_ms"`
}

// NamedRegister ist ein Descriptor mit Profil-lokalem Namen
type NamedRegister struct {
	Name               string `json:"name" yaml:"name"`
	Label              string `json:"label" yaml:"label"`
	RegisterDescriptor `yaml:",inline"`
}

// Analyzer ist eine konkrete Geräteinstanz im Feld
type Analyzer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Profile   string    `json:"profile"` // Profilpfad, z.B. "janitza/umg96"
	IPAddress string    `json:"ip_address"`
	Port      int       `json:"port"`
	UnitID    int       `json:"unit_id"`
	Enabled   bool      `json:"enabled"`
}
