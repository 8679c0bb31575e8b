package server

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

// HandleHealth reports liveness, including the db connection.
func (svc *Service) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.dbService.Ping(r.Context()); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// HandleGetRequests lists all currently pending whitelist requests.
func (svc *Service) HandleGetRequests() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := svc.logger
		requests, err := svc.dbService.GetRequests(r.Context(), bson.D{})
		if err != nil {
			http.Error(w, "Unable to get pending requests", http.StatusInternalServerError)
			log.WithFields(logrus.Fields{
				"err": err.Error(),
			}).Error("Unable to get pending requests")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"requests": requests})
	}
}

// HandleGetStats returns the realtime counters from the stats cache.
func (svc *Service) HandleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := svc.logger
		stats, err := svc.stats.GetRealTimeStats()
		if err != nil {
			http.Error(w, "Unable to get stats", http.StatusInternalServerError)
			log.WithFields(logrus.Fields{
				"err": err.Error(),
			}).Error("Unable to get stats")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"stats": stats})
	}
}
