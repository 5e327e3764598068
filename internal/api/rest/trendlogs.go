package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/sampling"
	"github.com/KevinKickass/OpenEnergyCore/internal/storage"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateTrendLogRequest struct {
	AnalyzerID          uuid.UUID `json:"analyzer_id" binding:"required"`
	RegisterID          string    `json:"register_id" binding:"required"`
	Period              string    `json:"period" binding:"required"`
	Interval            int       `json:"interval"`
	IsKWHCounter        bool      `json:"is_kwh_counter"`
	PercentageThreshold *float64  `json:"percentage_threshold"`
	CleanupPeriod       *int      `json:"cleanup_period"`
	EndDate             time.Time `json:"end_date" binding:"required"`
}

type UpdateTrendLogRequest struct {
	Period              string    `json:"period" binding:"required"`
	Interval            int       `json:"interval"`
	IsKWHCounter        bool      `json:"is_kwh_counter"`
	PercentageThreshold *float64  `json:"percentage_threshold"`
	CleanupPeriod       *int      `json:"cleanup_period"`
	EndDate             time.Time `json:"end_date" binding:"required"`
}

func (s *Server) createTrendLog(c *gin.Context) {
	var req CreateTrendLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TREND_400", "Invalid request body", err.Error()))
		return
	}

	// Register-Descriptor vom geladenen Analyzer kopieren (Snapshot)
	device, ok := s.lm.AnalyzerManager().GetDevice(req.AnalyzerID)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("TREND_404", "Analyzer not loaded", nil))
		return
	}
	register, ok := device.LookupRegister(req.RegisterID)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("TREND_404", "Register not found in analyzer profile", nil))
		return
	}

	log := types.TrendLog{
		AnalyzerID:          req.AnalyzerID,
		RegisterID:          req.RegisterID,
		Register:            register.RegisterDescriptor,
		Period:              types.Period(req.Period),
		Interval:            req.Interval,
		IsKWHCounter:        req.IsKWHCounter,
		PercentageThreshold: req.PercentageThreshold,
		CleanupPeriod:       req.CleanupPeriod,
		EndDate:             req.EndDate,
	}

	// Policy-Validierung vor dem Persistieren
	if _, err := sampling.NewPolicy(log); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrCodeInvalidConfig, "Invalid sampling configuration", err.Error()))
		return
	}

	created, err := s.lm.Storage().CreateTrendLog(c.Request.Context(), log)
	if err != nil {
		s.logger.Error("Failed to create trend log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TREND_500", "Failed to create trend log", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (s *Server) listTrendLogs(c *gin.Context) {
	logs, err := s.lm.Storage().ListTrendLogs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TREND_500", "Failed to list trend logs", err.Error()))
		return
	}

	if raw := c.Query("isKWHCounter"); raw != "" {
		want, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("TREND_400", "Invalid isKWHCounter parameter", nil))
			return
		}
		filtered := make([]types.TrendLog, 0, len(logs))
		for _, log := range logs {
			if log.IsKWHCounter == want {
				filtered = append(filtered, log)
			}
		}
		logs = filtered
	}

	c.JSON(http.StatusOK, gin.H{"trend_logs": logs})
}

func (s *Server) getTrendLog(c *gin.Context) {
	logID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TREND_400", "Invalid trend log ID", err.Error()))
		return
	}

	log, err := s.lm.Storage().GetTrendLog(c.Request.Context(), logID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Trend log not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TREND_500", "Failed to get trend log", err.Error()))
		return
	}

	c.JSON(http.StatusOK, log)
}

// getTrendLogSamples liefert die letzten N Samples in chronologischer
// Reihenfolge. Ein gelöschter Trend Log antwortet mit 404, ein existierender
// ohne Samples mit einer leeren Liste.
func (s *Server) getTrendLogSamples(c *gin.Context) {
	logID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TREND_400", "Invalid trend log ID", err.Error()))
		return
	}

	limit := 1000
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("TREND_400", "Invalid limit parameter", nil))
			return
		}
		limit = parsed
	}

	samples, err := s.lm.Storage().FetchSamples(c.Request.Context(), logID, limit)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Trend log not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TREND_500", "Failed to fetch samples", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"samples": samples})
}

func (s *Server) updateTrendLog(c *gin.Context) {
	logID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TREND_400", "Invalid trend log ID", err.Error()))
		return
	}

	var req UpdateTrendLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TREND_400", "Invalid request body", err.Error()))
		return
	}

	existing, err := s.lm.Storage().GetTrendLog(c.Request.Context(), logID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Trend log not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TREND_500", "Failed to get trend log", err.Error()))
		return
	}

	// Register bleibt unverändert, nur Policy-Felder werden angepasst
	existing.Period = types.Period(req.Period)
	existing.Interval = req.Interval
	existing.IsKWHCounter = req.IsKWHCounter
	existing.PercentageThreshold = req.PercentageThreshold
	existing.CleanupPeriod = req.CleanupPeriod
	existing.EndDate = req.EndDate

	if _, err := sampling.NewPolicy(*existing); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrCodeInvalidConfig, "Invalid sampling configuration", err.Error()))
		return
	}

	if err := s.lm.Storage().UpdateTrendLog(c.Request.Context(), *existing); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Trend log not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TREND_500", "Failed to update trend log", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "trend log updated"})
}

func (s *Server) deleteTrendLog(c *gin.Context) {
	logID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TREND_400", "Invalid trend log ID", err.Error()))
		return
	}

	if err := s.lm.Storage().DeleteTrendLog(c.Request.Context(), logID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Trend log not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TREND_500", "Failed to delete trend log", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "trend log deleted"})
}
