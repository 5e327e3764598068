package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenEnergyCore/internal/storage"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateAnalyzerRequest struct {
	Name      string `json:"name" binding:"required"`
	Profile   string `json:"profile" binding:"required"`
	IPAddress string `json:"ip_address" binding:"required"`
	Port      int    `json:"port"`
	UnitID    int    `json:"unit_id"`
	Enabled   bool   `json:"enabled"`
}

type ReadRegisterRequest struct {
	Register string `json:"register" binding:"required"`
}

type WriteRegisterRequest struct {
	Register string  `json:"register" binding:"required"`
	Value    float64 `json:"value"`
}

func (s *Server) createAnalyzer(c *gin.Context) {
	var req CreateAnalyzerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("ANALYZER_400", "Invalid request body", err.Error()))
		return
	}

	analyzer := types.Analyzer{
		Name:      req.Name,
		Profile:   req.Profile,
		IPAddress: req.IPAddress,
		Port:      req.Port,
		UnitID:    req.UnitID,
		Enabled:   req.Enabled,
	}

	id, err := s.lm.Storage().SaveOrUpdateAnalyzer(c.Request.Context(), analyzer)
	if err != nil {
		s.logger.Error("Failed to save analyzer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("ANALYZER_500", "Failed to save analyzer", err.Error()))
		return
	}
	analyzer.ID = id

	if analyzer.Enabled {
		if _, err := s.lm.AnalyzerManager().LoadAnalyzer(analyzer, s.lm.Config().Modbus.DefaultTimeout); err != nil {
			// Persistiert, aber nicht erreichbar: der Client soll das sehen
			s.logger.Warn("Analyzer saved but not reachable",
				zap.String("analyzer", analyzer.Name), zap.Error(err))
			c.JSON(http.StatusCreated, gin.H{
				"analyzer": analyzer,
				"warning":  "analyzer saved but connection failed: " + err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"analyzer": analyzer})
}

func (s *Server) listAnalyzers(c *gin.Context) {
	analyzers, err := s.lm.Storage().ListAnalyzers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("ANALYZER_500", "Failed to list analyzers", err.Error()))
		return
	}

	// Verbindungsstatus aus dem Manager anreichern
	type analyzerStatus struct {
		types.Analyzer
		Connected bool `json:"connected"`
	}
	result := make([]analyzerStatus, 0, len(analyzers))
	for _, a := range analyzers {
		connected := false
		if device, ok := s.lm.AnalyzerManager().GetDevice(a.ID); ok {
			connected = device.IsConnected()
		}
		result = append(result, analyzerStatus{Analyzer: a, Connected: connected})
	}

	c.JSON(http.StatusOK, gin.H{"analyzers": result})
}

func (s *Server) getAnalyzer(c *gin.Context) {
	analyzerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("ANALYZER_400", "Invalid analyzer ID", err.Error()))
		return
	}

	analyzer, err := s.lm.Storage().GetAnalyzer(c.Request.Context(), analyzerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Analyzer not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("ANALYZER_500", "Failed to get analyzer", err.Error()))
		return
	}

	c.JSON(http.StatusOK, analyzer)
}

func (s *Server) listAnalyzerRegisters(c *gin.Context) {
	analyzerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("ANALYZER_400", "Invalid analyzer ID", err.Error()))
		return
	}

	device, ok := s.lm.AnalyzerManager().GetDevice(analyzerID)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Analyzer not loaded", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{"registers": device.Profile.Registers})
}

func (s *Server) deleteAnalyzer(c *gin.Context) {
	analyzerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("ANALYZER_400", "Invalid analyzer ID", err.Error()))
		return
	}

	// Erst Poller/Verbindung stoppen, dann aus der DB entfernen
	if err := s.lm.AnalyzerManager().UnloadAnalyzer(analyzerID); err != nil {
		s.logger.Warn("Failed to unload analyzer", zap.String("id", analyzerID.String()), zap.Error(err))
	}

	if err := s.lm.Storage().DeleteAnalyzer(c.Request.Context(), analyzerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Analyzer not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("ANALYZER_500", "Failed to delete analyzer", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "analyzer deleted"})
}

func (s *Server) readRegister(c *gin.Context) {
	analyzerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("ANALYZER_400", "Invalid analyzer ID", err.Error()))
		return
	}

	var req ReadRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("ANALYZER_400", "Invalid request body", err.Error()))
		return
	}

	device, ok := s.lm.AnalyzerManager().GetDevice(analyzerID)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Analyzer not loaded", nil))
		return
	}

	value, err := device.ReadRegister(c.Request.Context(), req.Register)
	if err != nil {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse(types.ErrCodeTransport, "Register read failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"register": req.Register,
		"value":    value,
	})
}

func (s *Server) writeRegister(c *gin.Context) {
	analyzerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("ANALYZER_400", "Invalid analyzer ID", err.Error()))
		return
	}

	var req WriteRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("ANALYZER_400", "Invalid request body", err.Error()))
		return
	}

	device, ok := s.lm.AnalyzerManager().GetDevice(analyzerID)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Analyzer not loaded", nil))
		return
	}

	if err := device.WriteRegister(c.Request.Context(), req.Register, req.Value); err != nil {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse(types.ErrCodeTransport, "Register write failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"register": req.Register,
		"value":    req.Value,
	})
}
