package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trading-desk-go/internal/models"
)

const defaultLimit = 100

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
	now func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db, now: time.Now}
}

// Routes registers the history endpoints on a new mux.
func (h *APIHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/settlements", h.SettlementsHandler)
	mux.HandleFunc("GET /api/statistics", h.StatisticsHandler)
	return mux
}

// SettlementsHandler returns the most recent settlements, optionally for one user.
func (h *APIHandler) SettlementsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	q := h.db.Order("closed_at desc").Limit(limit)
	if user := r.URL.Query().Get("user"); user != "" {
		q = q.Where("username = ?", user)
	}

	settlements := []models.Settlement{}
	if err := q.Find(&settlements).Error; err != nil {
		h.log.Error("Failed to get settlements from database", zap.Error(err))
		http.Error(w, "Failed to get settlements", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settlements)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64           `json:"total_trades"`
	ProfitableTrades int64           `json:"profitable_trades"`
	WinRate          float64         `json:"win_rate"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
	TotalStaked      int64           `json:"total_staked"`
}

func (d *StatsDetail) add(s models.Settlement) {
	d.TotalTrades++
	if s.PnL.IsPositive() {
		d.ProfitableTrades++
	}
	d.TotalProfit = d.TotalProfit.Add(s.PnL)
	d.TotalStaked += s.Stake
}

func (d *StatsDetail) finish() {
	if d.TotalTrades > 0 {
		d.WinRate = float64(d.ProfitableTrades) / float64(d.TotalTrades)
	}
	d.TotalProfit = d.TotalProfit.Round(2)
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates and returns trading statistics.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	q := h.db.Model(&models.Settlement{})
	if user := r.URL.Query().Get("user"); user != "" {
		q = q.Where("username = ?", user)
	}

	var all []models.Settlement
	if err := q.Find(&all).Error; err != nil {
		h.log.Error("Failed to get settlements for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	since24h := h.now().Add(-24 * time.Hour)

	var resp StatisticsResponse
	for _, s := range all {
		resp.AllTime.add(s)
		if s.ClosedAt.After(since24h) {
			resp.Since24h.add(s)
		}
	}
	resp.AllTime.finish()
	resp.Since24h.finish()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
