package server

import (
	"encoding/json"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware"
	"github.com/dgrijalva/jwt-go"
	"github.com/sirupsen/logrus"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type claims struct {
	Username string `json:"username"`
	jwt.StandardClaims
}

// HandleAdminSignin handles auth token generation for the internal endpoints.
func (svc *Service) HandleAdminSignin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if !(creds.Username == svc.c.AdminUsername && creds.Password == svc.c.AdminPassword) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		expirationTime := time.Now().Add(20 * time.Minute)
		claims := &claims{
			Username: creds.Username,
			StandardClaims: jwt.StandardClaims{
				ExpiresAt: expirationTime.Unix(),
			},
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte(svc.c.JWTTokenSecret))
		if err != nil {
			svc.logger.WithFields(logrus.Fields{
				"err": err.Error(),
			}).Error("Unable to sign auth token")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		msg := map[string]map[string]interface{}{"token": {
			"value":   tokenString,
			"expires": expirationTime,
		}}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(msg)
	}
}

// authMiddleware checks for a valid token on API routes that are not
// publicly accessible.
func (svc *Service) authMiddleware() *jwtmiddleware.JWTMiddleware {
	return jwtmiddleware.New(jwtmiddleware.Options{
		ValidationKeyGetter: func(token *jwt.Token) (interface{}, error) {
			return []byte(svc.c.JWTTokenSecret), nil
		},
		SigningMethod: jwt.SigningMethodHS256,
	})
}
