package units

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
)

// FlatRegister ist ein Registerbezug mit seinem Pfad im Gebäudebaum,
// z.B. "Hauptgebäude / EG / Serverraum"
type FlatRegister struct {
	UnitID     uuid.UUID       `json:"unit_id"`
	UnitPath   string          `json:"unit_path"`
	UnitType   types.UnitType  `json:"unit_type"`
	AnalyzerID uuid.UUID       `json:"analyzer_id"`
	RegisterID string          `json:"register_id"`
}

// Flatten läuft den Gebäudebaum ab und sammelt alle Registerbezüge mit
// ihrem vollständigen Pfad ein. Die Reihenfolge ist deterministisch:
// Tiefensuche, Register vor Kindern.
func Flatten(tree types.UnitNode) []FlatRegister {
	out := make([]FlatRegister, 0)
	walk(tree, nil, &out)
	return out
}

func walk(node types.UnitNode, path []string, out *[]FlatRegister) {
	path = append(path, node.Name)
	unitPath := strings.Join(path, " / ")

	for _, ref := range node.Registers {
		*out = append(*out, FlatRegister{
			UnitID:     node.ID,
			UnitPath:   unitPath,
			UnitType:   node.Type,
			AnalyzerID: ref.AnalyzerID,
			RegisterID: ref.RegisterID,
		})
	}

	for _, child := range node.Children {
		walk(child, path, out)
	}
}

// FindUnit sucht einen Knoten per ID im Baum
func FindUnit(tree types.UnitNode, id uuid.UUID) (*types.UnitNode, bool) {
	if tree.ID == id {
		return &tree, true
	}
	for i := range tree.Children {
		if node, ok := FindUnit(tree.Children[i], id); ok {
			return node, true
		}
	}
	return nil, false
}

// RegistersByUnit liefert alle Register unterhalb eines Knotens,
// einschließlich der Register des Knotens selbst
func RegistersByUnit(tree types.UnitNode, unitID uuid.UUID) ([]FlatRegister, error) {
	node, ok := FindUnit(tree, unitID)
	if !ok {
		return nil, fmt.Errorf("unit not found: %s", unitID)
	}
	return Flatten(*node), nil
}

// Validate prüft strukturelle Invarianten des Baums: eindeutige IDs und
// plausible Typ-Schachtelung (kein Gebäude unter einem Raum)
func Validate(tree types.UnitNode) error {
	seen := make(map[uuid.UUID]struct{})
	return validateNode(tree, "", seen)
}

var nestingRank = map[types.UnitType]int{
	types.UnitBuilding: 0,
	types.UnitFloor:    1,
	types.UnitRoom:     2,
}

func validateNode(node types.UnitNode, parentPath string, seen map[uuid.UUID]struct{}) error {
	if node.Name == "" {
		return fmt.Errorf("unit below %q has no name", parentPath)
	}
	if _, dup := seen[node.ID]; dup {
		return fmt.Errorf("duplicate unit id: %s", node.ID)
	}
	seen[node.ID] = struct{}{}

	rank, ok := nestingRank[node.Type]
	if !ok {
		return fmt.Errorf("unit %q has unknown type %q", node.Name, node.Type)
	}

	path := node.Name
	if parentPath != "" {
		path = parentPath + " / " + node.Name
	}

	for _, child := range node.Children {
		childRank, ok := nestingRank[child.Type]
		if !ok {
			return fmt.Errorf("unit %q has unknown type %q", child.Name, child.Type)
		}
		if childRank <= rank {
			return fmt.Errorf("unit %q: %s cannot contain %s", path, node.Type, child.Type)
		}
		if err := validateNode(child, path, seen); err != nil {
			return err
		}
	}
	return nil
}
