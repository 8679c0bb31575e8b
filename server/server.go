package server

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/frostpeak/gatewarden/config"
	"github.com/frostpeak/gatewarden/db"
	"github.com/frostpeak/gatewarden/stats"
)

// Service is the internal ops HTTP API: health, metrics, pending requests
// and realtime stats for whoever runs the bot. It is not part of the
// whitelist flow itself.
type Service struct {
	dbService *db.Service
	stats     *stats.Service
	router    *mux.Router
	c         *config.Config
	logger    *logrus.Logger
}

// NewService creates the ops API server.
func NewService(dbService *db.Service, statsService *stats.Service, c *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		dbService: dbService,
		stats:     statsService,
		router:    mux.NewRouter().StrictSlash(true),
		c:         c,
		logger:    logger,
	}
}

// Listen opens up the http port and registers all routes. Blocks.
func (svc *Service) Listen(port string) {
	log := svc.logger
	svc.routes()
	log.WithFields(logrus.Fields{
		"port": port,
	}).Info("The ops API http server starts listening")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	})
	handler := c.Handler(svc.router)

	// capture http related metrics
	wrappedH := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, w, r)
		svc.logger.Infof("%s %s (code=%d dt=%s)",
			r.Method,
			r.URL,
			m.Code,
			m.Duration,
		)
	})
	log.Fatal(http.ListenAndServe(port, wrappedH))
}

func (svc *Service) routes() {
	svc.router.HandleFunc("/healthz", svc.HandleHealth()).Methods("GET")
	svc.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	svc.router.HandleFunc("/api/v1/signin", svc.HandleAdminSignin()).Methods("POST")

	// Endpoints for internal consumption only, behind JWT auth
	internal := svc.router.PathPrefix("/api/v1/internal").Subrouter()
	internal.Handle("/requests", svc.authMiddleware().Handler(svc.HandleGetRequests())).Methods("GET")
	internal.Handle("/stats", svc.authMiddleware().Handler(svc.HandleGetStats())).Methods("GET")
}
