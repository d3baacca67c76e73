package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohamedkhairy/trade-alerter/internal/rules"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/auth"
)

// RouterConfig wires the handlers' dependencies
type RouterConfig struct {
	RuleStore    rules.RuleStore
	AlertStorage storage.AlertStorage
	Watchlist    storage.WatchlistStorage
	Notifier     RuleChangeNotifier
	Verifier     *auth.Verifier
}

// NewRouter builds the API service's HTTP router
func NewRouter(cfg RouterConfig) *mux.Router {
	ruleHandler := NewRuleHandler(cfg.RuleStore, cfg.Notifier)
	alertHandler := NewAlertHandler(cfg.AlertStorage)
	watchlistHandler := NewWatchlistHandler(cfg.Watchlist)

	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(),
		CORSMiddleware(),
		AuthMiddleware(cfg.Verifier),
	)))

	api.HandleFunc("/rules", ruleHandler.ListRules).Methods(http.MethodGet)
	api.HandleFunc("/rules", ruleHandler.CreateRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/validate", ruleHandler.ValidateRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/{id}", ruleHandler.GetRule).Methods(http.MethodGet)
	api.HandleFunc("/rules/{id}", ruleHandler.UpdateRule).Methods(http.MethodPut)
	api.HandleFunc("/rules/{id}", ruleHandler.DeleteRule).Methods(http.MethodDelete)
	api.HandleFunc("/rules/{id}/enable", ruleHandler.EnableRule).Methods(http.MethodPost)
	api.HandleFunc("/rules/{id}/disable", ruleHandler.DisableRule).Methods(http.MethodPost)

	api.HandleFunc("/alerts", alertHandler.ListAlerts).Methods(http.MethodGet)
	// Registered before the {id} route so "stats" is not taken for an ID
	api.HandleFunc("/alerts/stats", alertHandler.GetAlertStats).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}", alertHandler.GetAlert).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}/read", alertHandler.MarkAlertRead).Methods(http.MethodPatch)

	api.HandleFunc("/watchlist", watchlistHandler.ListSymbols).Methods(http.MethodGet)
	api.HandleFunc("/watchlist", watchlistHandler.AddSymbol).Methods(http.MethodPost)
	api.HandleFunc("/watchlist/{symbol}", watchlistHandler.RemoveSymbol).Methods(http.MethodDelete)

	return router
}
