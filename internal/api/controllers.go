package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trading-sentinel/internal/risk"
)

type setRunStateRequest struct {
	Running     *bool  `json:"running"`
	LiveTrading *bool  `json:"live_trading"`
	Profile     string `json:"profile"`
	PanicSell   bool   `json:"panic_sell"`
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.Meta.Version,
		"live":    s.Meta.Live,
		"mock":    s.Meta.UseMockFeed,
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) getStats(c *gin.Context) {
	profit, trades, wins, err := s.DB.ProfitStats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "stats query failed")
		return
	}

	totalBalance := 0.0
	openPositions := 0
	for _, p := range s.Book.Snapshot() {
		if p.IsOpen {
			openPositions++
			totalBalance += p.EntryPrice * p.Qty
		} else {
			totalBalance += p.Balance
		}
	}

	winRate := 0.0
	if trades > 0 {
		winRate = float64(wins) / float64(trades) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"total_profit":   profit,
		"closed_trades":  trades,
		"wins":           wins,
		"win_rate":       winRate,
		"total_balance":  totalBalance,
		"open_positions": openPositions,
		"candidates":     s.Meta.Candidates,
		"elite":          s.Evaluator.Universe(),
	})
}

func (s *Server) getHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit > 500 {
		limit = 500
	}
	trades, err := s.DB.ListTrades(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "history query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) getSignals(c *gin.Context) {
	signals, err := s.DB.ListSignalStatus(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "signals query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.Book.Snapshot()})
}

func (s *Server) getCalibrations(c *gin.Context) {
	cals, err := s.DB.ListCalibrations(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "calibrations query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"calibrations": cals})
}

func (s *Server) getRunState(c *gin.Context) {
	snap := s.State.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"running":      snap.Running,
		"live_trading": snap.LiveTrading,
		"profile":      snap.Profile,
		"panic_sell":   snap.PanicSell,
		"elite":        s.Evaluator.Universe(),
	})
}

// setRunState persists requested flags; the synchronizer applies them on
// its next pass, so changes are not reflected immediately in GET responses.
func (s *Server) setRunState(c *gin.Context) {
	var req setRunStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	if req.Running != nil {
		if err := s.State.RequestRunning(ctx, *req.Running); err != nil {
			respondError(c, http.StatusInternalServerError, "persist failed")
			return
		}
	}
	if req.LiveTrading != nil {
		if err := s.State.RequestLive(ctx, *req.LiveTrading); err != nil {
			respondError(c, http.StatusInternalServerError, "persist failed")
			return
		}
	}
	if req.Profile != "" {
		name, err := risk.ParseName(req.Profile)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.State.RequestProfile(ctx, name); err != nil {
			respondError(c, http.StatusInternalServerError, "persist failed")
			return
		}
	}
	if req.PanicSell {
		if err := s.State.RequestPanic(ctx); err != nil {
			respondError(c, http.StatusInternalServerError, "persist failed")
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
