package types

import "github.com/google/uuid"

type UnitType string

const (
	UnitBuilding UnitType = "building"
	UnitFloor    UnitType = "floor"
	UnitRoom     UnitType = "room"
)

// RegisterRef verweist auf ein benanntes Register eines Analyzers
type RegisterRef struct {
	AnalyzerID uuid.UUID `json:"analyzer_id"`
	RegisterID string    `json:"register_id"`
}

// UnitNode ist ein Knoten im Gebäudebaum. Register können auf jeder Ebene
// hängen, nicht nur an Blättern.
type UnitNode struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Type      UnitType      `json:"type"`
	Registers []RegisterRef `json:"registers,omitempty"`
	Children  []UnitNode    `json:"children,omitempty"`
}
