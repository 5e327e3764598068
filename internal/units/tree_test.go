package units

import (
	"testing"

	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() (types.UnitNode, uuid.UUID, uuid.UUID) {
	mainMeter := uuid.New()
	serverMeter := uuid.New()

	floorID := uuid.New()
	tree := types.UnitNode{
		ID:   uuid.New(),
		Name: "Hauptgebäude",
		Type: types.UnitBuilding,
		Registers: []types.RegisterRef{
			{AnalyzerID: mainMeter, RegisterID: "total_energy"},
		},
		Children: []types.UnitNode{
			{
				ID:   floorID,
				Name: "EG",
				Type: types.UnitFloor,
				Children: []types.UnitNode{
					{
						ID:   uuid.New(),
						Name: "Serverraum",
						Type: types.UnitRoom,
						Registers: []types.RegisterRef{
							{AnalyzerID: serverMeter, RegisterID: "active_power"},
							{AnalyzerID: serverMeter, RegisterID: "voltage_l1"},
						},
					},
				},
			},
		},
	}
	return tree, floorID, serverMeter
}

func TestFlattenCollectsAllRegistersWithPaths(t *testing.T) {
	tree, _, serverMeter := sampleTree()

	flat := Flatten(tree)
	require.Len(t, flat, 3)

	assert.Equal(t, "Hauptgebäude", flat[0].UnitPath)
	assert.Equal(t, "total_energy", flat[0].RegisterID)

	assert.Equal(t, "Hauptgebäude / EG / Serverraum", flat[1].UnitPath)
	assert.Equal(t, serverMeter, flat[1].AnalyzerID)
	assert.Equal(t, "active_power", flat[1].RegisterID)
	assert.Equal(t, "voltage_l1", flat[2].RegisterID)
}

func TestRegistersByUnitScopesToSubtree(t *testing.T) {
	tree, floorID, _ := sampleTree()

	flat, err := RegistersByUnit(tree, floorID)
	require.NoError(t, err)
	require.Len(t, flat, 2)
	// Pfad relativ zum angefragten Knoten
	assert.Equal(t, "EG / Serverraum", flat[0].UnitPath)

	_, err = RegistersByUnit(tree, uuid.New())
	assert.ErrorContains(t, err, "unit not found")
}

func TestValidateRejectsBadNesting(t *testing.T) {
	tree := types.UnitNode{
		ID: uuid.New(), Name: "Raum 1", Type: types.UnitRoom,
		Children: []types.UnitNode{
			{ID: uuid.New(), Name: "Gebäude", Type: types.UnitBuilding},
		},
	}
	assert.ErrorContains(t, Validate(tree), "cannot contain")
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	dup := uuid.New()
	tree := types.UnitNode{
		ID: dup, Name: "Hauptgebäude", Type: types.UnitBuilding,
		Children: []types.UnitNode{
			{ID: dup, Name: "EG", Type: types.UnitFloor},
		},
	}
	assert.ErrorContains(t, Validate(tree), "duplicate unit id")
}

func TestValidateAcceptsWellFormedTree(t *testing.T) {
	tree, _, _ := sampleTree()
	assert.NoError(t, Validate(tree))
}
