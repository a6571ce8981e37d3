package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/history"
	"github.com/tropicaldog17/audtracker/internal/models"
	"github.com/tropicaldog17/audtracker/internal/normalize"
	"github.com/tropicaldog17/audtracker/internal/repositories"
	"github.com/tropicaldog17/audtracker/internal/snapshot"
)

const (
	defaultHistoryDays = 365
	defaultTable       = "currency_daily"
)

// tableAliases maps the short names accepted by ?table= to store keys.
var tableAliases = map[string]string{
	"currency":  "currency_daily",
	"commodity": "commodity",
	"metals":    "metals",
}

// DashboardHandler serves the read-only dashboard API over the data directory.
type DashboardHandler struct {
	forex     *snapshot.Store
	commodity *snapshot.Store
	tables    map[string]*history.Store
	archive   repositories.ExchangeRateRepository
	now       func() time.Time
	logger    *zap.Logger
}

// NewDashboardHandler returns a handler over dataDir. archive may be nil.
func NewDashboardHandler(dataDir string, archive repositories.ExchangeRateRepository, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{
		forex:     snapshot.ForexDaily(dataDir),
		commodity: snapshot.CommodityDaily(dataDir),
		tables:    history.All(dataDir),
		archive:   archive,
		now:       time.Now,
		logger:    logger.Named("dashboard"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GET /health
func (h *DashboardHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "audtracker",
	})
}

// GET /api/current
// Returns the newest forex daily snapshot, with the newest commodity
// snapshot attached when one exists.
func (h *DashboardHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	raw, _, err := h.forex.LoadLatest()
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		writeError(w, http.StatusNotFound, "No current data available")
		return
	}
	if err != nil {
		h.logger.Error("failed to load forex snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	now := h.now()
	current := map[string]any{}
	rec := normalize.Currencies(raw, now)
	current["date"] = rec.Date
	current["timestamp"] = rec.Timestamp
	current["currencies"] = rec.Currencies

	if craw, _, err := h.commodity.LoadLatest(); err == nil {
		crec := normalize.Commodities(craw, now)
		current["commodities"] = crec.Commodities
		current["commodities_date"] = crec.Date
	}
	writeJSON(w, http.StatusOK, current)
}

// GET /api/historical?table=currency&days=365
func (h *DashboardHandler) HandleHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("table")
	if name == "" {
		name = defaultTable
	}
	if alias, ok := tableAliases[name]; ok {
		name = alias
	}
	store, ok := h.tables[name]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown table: "+name)
		return
	}

	days := defaultHistoryDays
	if s := q.Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	table, err := store.LoadOrEmpty()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	to := models.DateOnly(h.now())
	rows := table.Range(to.AddDate(0, 0, -days), to)

	data := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		data = append(data, rowJSON(table.Schema, row))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"table":   name,
		"data":    data,
		"count":   len(data),
	})
}

func rowJSON(schema models.TableSchema, row history.Row) map[string]any {
	out := map[string]any{"date": row.Date.Format(models.DateLayout)}
	if row.Timestamp != nil {
		out["timestamp"] = row.Timestamp.Format(time.RFC3339)
	}
	for _, col := range schema.DataColumns {
		if v, ok := row.Value(col); ok {
			out[col] = v
		} else {
			out[col] = nil
		}
	}
	return out
}

type tableSummary struct {
	Rows      int    `json:"rows"`
	FirstDate string `json:"first_date,omitempty"`
	LastDate  string `json:"last_date,omitempty"`
}

// GET /api/summary
func (h *DashboardHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	summary := map[string]any{
		"current_date":           now.Format(time.RFC3339),
		"current_data_available": false,
	}

	if raw, _, err := h.forex.LoadLatest(); err == nil {
		rec := normalize.Currencies(raw, now)
		summary["current_data_available"] = true
		summary["latest_date"] = rec.Date
		summary["currencies"] = sortedKeys(rec.Currencies)
	}
	if raw, _, err := h.commodity.LoadLatest(); err == nil {
		rec := normalize.Commodities(raw, now)
		summary["commodities"] = sortedKeys(rec.Commodities)
	}

	tables := make(map[string]tableSummary, len(h.tables))
	for name, store := range h.tables {
		t, err := store.LoadOrEmpty()
		if err != nil {
			h.logger.Warn("could not load table for summary", zap.String("table", name), zap.Error(err))
			continue
		}
		s := tableSummary{Rows: len(t.Rows)}
		if last, ok := t.Latest(); ok {
			s.FirstDate = t.Rows[0].Date.Format(models.DateLayout)
			s.LastDate = last.Date.Format(models.DateLayout)
		}
		tables[name] = s
	}
	summary["tables"] = tables

	if h.archive != nil {
		if as, err := h.archive.Summary(r.Context()); err == nil {
			summary["archive"] = as
		} else {
			h.logger.Warn("archive summary failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

type ratePoint struct {
	Date   string          `json:"date"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
}

// GET /api/rates/{quote}?start=2024-01-01&end=2024-12-31
// Lists archived AUD rates for one quote currency; defaults to the last year.
func (h *DashboardHandler) HandleRates(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "rate archive not configured")
		return
	}
	quote := strings.ToUpper(mux.Vars(r)["quote"])

	end := models.DateOnly(h.now())
	start := end.AddDate(-1, 0, 0)
	q := r.URL.Query()
	if s := q.Get("start"); s != "" {
		t, err := models.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start date")
			return
		}
		start = t
	}
	if s := q.Get("end"); s != "" {
		t, err := models.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end date")
			return
		}
		end = t
	}

	rates, err := h.archive.Range(r.Context(), start, end, quote, models.DefaultBase)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	points := make([]ratePoint, 0, len(rates))
	for _, rate := range rates {
		points = append(points, ratePoint{Date: rate.Date.Format(models.DateLayout), Rate: rate.Rate, Source: rate.Source})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"base":  models.DefaultBase,
		"quote": quote,
		"rates": points,
		"count": len(points),
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
