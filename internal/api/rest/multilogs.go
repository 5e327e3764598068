package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenEnergyCore/internal/storage"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SaveMultiLogConfigRequest struct {
	ID          *uuid.UUID  `json:"id"`
	Name        string      `json:"name" binding:"required"`
	TrendLogIDs []uuid.UUID `json:"trend_log_ids" binding:"required,min=1"`
	LogLimit    int         `json:"log_limit"`
	RefreshRate int         `json:"refresh_rate"`
}

type SelectLogsRequest struct {
	TrendLogIDs []uuid.UUID `json:"trend_log_ids" binding:"required,min=1"`
}

func (s *Server) saveMultiLogConfig(c *gin.Context) {
	var req SaveMultiLogConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MULTILOG_400", "Invalid request body", err.Error()))
		return
	}

	cfg := types.MultiLogConfig{
		Name:        req.Name,
		TrendLogIDs: req.TrendLogIDs,
		LogLimit:    req.LogLimit,
		RefreshRate: req.RefreshRate,
	}
	if req.ID != nil {
		cfg.ID = *req.ID
	} else {
		cfg.ID = uuid.New()
	}
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = 100
	}
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = 60
	}

	if err := s.lm.Storage().SaveMultiLogConfig(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to save config", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

func (s *Server) listMultiLogConfigs(c *gin.Context) {
	configs, err := s.lm.Storage().ListMultiLogConfigs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to list configs", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

func (s *Server) getMultiLogConfig(c *gin.Context) {
	configID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MULTILOG_400", "Invalid config ID", err.Error()))
		return
	}

	cfg, err := s.lm.Storage().GetMultiLogConfig(c.Request.Context(), configID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Config not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to get config", err.Error()))
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (s *Server) deleteMultiLogConfig(c *gin.Context) {
	configID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MULTILOG_400", "Invalid config ID", err.Error()))
		return
	}

	if err := s.lm.Storage().DeleteMultiLogConfig(c.Request.Context(), configID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Config not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to delete config", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "config deleted"})
}

// ==================== Dashboard (Live Multi-Log View) ====================

func (s *Server) getDashboard(c *gin.Context) {
	engine := s.lm.MultiLogEngine()

	c.JSON(http.StatusOK, gin.H{
		"series":        engine.Series(),
		"selected_ids":  engine.SelectedIDs(),
		"active_config": engine.ActiveConfig(),
		"refresh_rate":  engine.RefreshRate(),
		"log_limit":     engine.LogLimit(),
		"timer_armed":   engine.TimerArmed(),
	})
}

func (s *Server) selectDashboardLogs(c *gin.Context) {
	var req SelectLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MULTILOG_400", "Invalid request body", err.Error()))
		return
	}

	logs := make([]types.TrendLog, 0, len(req.TrendLogIDs))
	for _, id := range req.TrendLogIDs {
		log, err := s.lm.Storage().GetTrendLog(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Trend log not found: "+id.String(), nil))
				return
			}
			c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to load trend log", err.Error()))
			return
		}
		logs = append(logs, *log)
	}

	s.lm.MultiLogEngine().SelectLogs(logs)
	c.JSON(http.StatusOK, gin.H{"selected": len(logs)})
}

func (s *Server) clearDashboardSelection(c *gin.Context) {
	s.lm.MultiLogEngine().ClearSelection()
	c.JSON(http.StatusOK, gin.H{"message": "selection cleared"})
}

func (s *Server) applyDashboardConfig(c *gin.Context) {
	configID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MULTILOG_400", "Invalid config ID", err.Error()))
		return
	}

	cfg, err := s.lm.Storage().GetMultiLogConfig(c.Request.Context(), configID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrCodeNotFound, "Config not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to get config", err.Error()))
		return
	}

	// Bereits gelöschte Logs überspringen, der Engine-Tick räumt die
	// Config danach selbst auf
	logs := make([]types.TrendLog, 0, len(cfg.TrendLogIDs))
	for _, id := range cfg.TrendLogIDs {
		log, err := s.lm.Storage().GetTrendLog(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to load trend log", err.Error()))
			return
		}
		logs = append(logs, *log)
	}

	s.lm.MultiLogEngine().ApplyConfig(*cfg, logs)
	c.JSON(http.StatusOK, gin.H{
		"config":   cfg,
		"selected": len(logs),
	})
}

func (s *Server) setDashboardRefreshRate(c *gin.Context) {
	var req struct {
		RefreshRate int `json:"refresh_rate" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MULTILOG_400", "Invalid request body", err.Error()))
		return
	}

	if err := s.lm.MultiLogEngine().SetRefreshRate(c.Request.Context(), req.RefreshRate); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to persist refresh rate", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"refresh_rate": req.RefreshRate})
}

func (s *Server) setDashboardLogLimit(c *gin.Context) {
	var req struct {
		LogLimit int `json:"log_limit" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MULTILOG_400", "Invalid request body", err.Error()))
		return
	}

	if err := s.lm.MultiLogEngine().SetLogLimit(c.Request.Context(), req.LogLimit); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MULTILOG_500", "Failed to persist log limit", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"log_limit": req.LogLimit})
}
