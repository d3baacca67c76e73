package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/rules"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

// RuleChangeNotifier is told when the rule set changes so evaluators can
// drop their caches. May be nil.
type RuleChangeNotifier interface {
	RulesChanged()
}

// RuleHandler handles rule management endpoints
type RuleHandler struct {
	store    rules.RuleStore
	notifier RuleChangeNotifier
}

// NewRuleHandler creates a rule handler
func NewRuleHandler(store rules.RuleStore, notifier RuleChangeNotifier) *RuleHandler {
	return &RuleHandler{store: store, notifier: notifier}
}

func (h *RuleHandler) notifyChange() {
	if h.notifier != nil {
		h.notifier.RulesChanged()
	}
}

// ListRules handles GET /api/v1/rules
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.GetAllRules()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve rules")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"rules": all,
		"count": len(all),
	})
}

// GetRule handles GET /api/v1/rules/{id}
func (h *RuleHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.store.GetRule(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Rule not found")
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /api/v1/rules
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.store.AddRule(&rule); err != nil {
		respondWithRuleError(w, err)
		return
	}
	h.notifyChange()

	logger.Info("rule created",
		logger.String("rule_id", rule.ID),
		logger.String("name", rule.Name),
	)
	respondWithJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /api/v1/rules/{id}
func (h *RuleHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]

	var rule models.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule.ID = ruleID

	if err := h.store.UpdateRule(&rule); err != nil {
		respondWithRuleError(w, err)
		return
	}
	h.notifyChange()

	logger.Info("rule updated", logger.String("rule_id", ruleID))
	respondWithJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]

	if err := h.store.DeleteRule(ruleID); err != nil {
		respondWithRuleError(w, err)
		return
	}
	h.notifyChange()

	logger.Info("rule deleted", logger.String("rule_id", ruleID))
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Rule deleted"})
}

// EnableRule handles POST /api/v1/rules/{id}/enable
func (h *RuleHandler) EnableRule(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// DisableRule handles POST /api/v1/rules/{id}/disable
func (h *RuleHandler) DisableRule(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *RuleHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	ruleID := mux.Vars(r)["id"]

	var err error
	if enabled {
		err = h.store.EnableRule(ruleID)
	} else {
		err = h.store.DisableRule(ruleID)
	}
	if err != nil {
		respondWithRuleError(w, err)
		return
	}
	h.notifyChange()

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"id":      ruleID,
		"enabled": enabled,
	})
}

// ValidateRule handles POST /api/v1/rules/validate: body-only validation
// without storing anything
func (h *RuleHandler) ValidateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := rule.Validate(); err != nil {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// respondWithRuleError maps store errors to HTTP statuses. Validation
// failures carry the offending field back to the caller.
func respondWithRuleError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": verr.Message,
			"field": verr.Field,
			"code":  http.StatusBadRequest,
		})
	case errors.Is(err, models.ErrRuleNotFound):
		respondWithError(w, http.StatusNotFound, "Rule not found")
	case errors.Is(err, models.ErrRuleExists):
		respondWithError(w, http.StatusConflict, "Rule already exists")
	default:
		respondWithError(w, http.StatusInternalServerError, "Rule operation failed")
	}
}

// AlertHandler handles alert history endpoints
type AlertHandler struct {
	storage storage.AlertStorage
}

// NewAlertHandler creates an alert handler
func NewAlertHandler(alertStorage storage.AlertStorage) *AlertHandler {
	return &AlertHandler{storage: alertStorage}
}

// ListAlerts handles GET /api/v1/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.AlertFilter{
		Symbol:    query.Get("symbol"),
		RuleID:    query.Get("rule_id"),
		SetupType: query.Get("setup_type"),
		Unread:    query.Get("unread") == "true",
		Limit:     100,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 1000 {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}
	if startStr := query.Get("start_time"); startStr != "" {
		if start, err := time.Parse(time.RFC3339, startStr); err == nil {
			filter.StartTime = start
		}
	}
	if endStr := query.Get("end_time"); endStr != "" {
		if end, err := time.Parse(time.RFC3339, endStr); err == nil {
			filter.EndTime = end
		}
	}

	alerts, err := h.storage.GetAlerts(r.Context(), filter)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve alerts")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetAlertStats handles GET /api/v1/alerts/stats
func (h *AlertHandler) GetAlertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.GetAlertStats(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve alert stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// GetAlert handles GET /api/v1/alerts/{id}
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.storage.GetAlert(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, models.ErrAlertNotFound) {
		respondWithError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve alert")
		return
	}
	respondWithJSON(w, http.StatusOK, alert)
}

// MarkAlertRead handles PATCH /api/v1/alerts/{id}/read
func (h *AlertHandler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]

	var body struct {
		IsRead *bool `json:"is_read"`
	}
	read := true
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.IsRead != nil {
		read = *body.IsRead
	}

	err := h.storage.MarkAlertRead(r.Context(), alertID, read)
	if errors.Is(err, models.ErrAlertNotFound) {
		respondWithError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to update alert")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"id":      alertID,
		"is_read": read,
	})
}

// WatchlistHandler handles watchlist endpoints
type WatchlistHandler struct {
	storage storage.WatchlistStorage
}

// NewWatchlistHandler creates a watchlist handler
func NewWatchlistHandler(watchlist storage.WatchlistStorage) *WatchlistHandler {
	return &WatchlistHandler{storage: watchlist}
}

// ListSymbols handles GET /api/v1/watchlist
func (h *WatchlistHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	items, err := h.storage.GetActiveSymbols(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve watchlist")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": items,
		"count":   len(items),
	})
}

// AddSymbol handles POST /api/v1/watchlist
func (h *WatchlistHandler) AddSymbol(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Symbol string `json:"symbol"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Symbol == "" {
		respondWithError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	item, err := h.storage.AddSymbol(r.Context(), body.Symbol, body.Notes)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to add symbol")
		return
	}

	logger.Info("watchlist symbol added", logger.String("symbol", body.Symbol))
	respondWithJSON(w, http.StatusCreated, item)
}

// RemoveSymbol handles DELETE /api/v1/watchlist/{symbol}
func (h *WatchlistHandler) RemoveSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if err := h.storage.RemoveSymbol(r.Context(), symbol); err != nil {
		respondWithError(w, http.StatusNotFound, "Symbol not on watchlist")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Symbol removed"})
}
