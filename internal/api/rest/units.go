package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenEnergyCore/internal/storage"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/KevinKickass/OpenEnergyCore/internal/units"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) saveUnitTree(c *gin.Context) {
	var tree types.UnitNode
	if err := c.ShouldBindJSON(&tree); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("UNIT_400", "Invalid request body", err.Error()))
		return
	}

	if err := units.Validate(tree); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrCodeInvalidConfig, "Invalid unit tree", err.Error()))
		return
	}

	id, err := s.lm.Storage().SaveOrUpdateUnitTree(c.Request.Context(), tree)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("UNIT_500", "Failed to save unit tree", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "tree": tree})
}

func (s *Server) listUnitTrees(c *gin.Context) {
	trees, err := s.lm.Storage().ListUnitTrees(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("UNIT_500", "Failed to list unit trees", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"unit_trees": trees})
}

func (s *Server) getUnitTree(c *gin.Context) {
	treeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("UNIT_400", "Invalid tree ID", err.Error()))
		return
	}

	tree, err := s.lm.Storage().GetUnitTree(c.Request.Context(), treeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Unit tree not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("UNIT_500", "Failed to get unit tree", err.Error()))
		return
	}

	c.JSON(http.StatusOK, tree)
}

// getRegistersByUnit flacht den Baum zu einer Register-Liste ab. Mit
// ?unit=<uuid> wird nur der Teilbaum unterhalb dieser Unit geliefert.
func (s *Server) getRegistersByUnit(c *gin.Context) {
	treeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("UNIT_400", "Invalid tree ID", err.Error()))
		return
	}

	tree, err := s.lm.Storage().GetUnitTree(c.Request.Context(), treeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Unit tree not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("UNIT_500", "Failed to get unit tree", err.Error()))
		return
	}

	var registers []units.FlatRegister
	if raw := c.Query("unit"); raw != "" {
		unitID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("UNIT_400", "Invalid unit ID", err.Error()))
			return
		}
		registers, err = units.RegistersByUnit(*tree, unitID)
		if err != nil {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Unit not found in tree", nil))
			return
		}
	} else {
		registers = units.Flatten(*tree)
	}

	c.JSON(http.StatusOK, gin.H{"registers": registers})
}

func (s *Server) deleteUnitTree(c *gin.Context) {
	treeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("UNIT_400", "Invalid tree ID", err.Error()))
		return
	}

	if err := s.lm.Storage().DeleteUnitTree(c.Request.Context(), treeID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Unit tree not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("UNIT_500", "Failed to delete unit tree", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "unit tree deleted"})
}
