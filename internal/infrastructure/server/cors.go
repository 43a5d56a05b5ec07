package server

import (
	"net/http"

	"github.com/liverty-music/actcache/pkg/config"
	"github.com/rs/cors"
)

// NewCORSHandler creates a new CORS middleware wrapping mu according to the
// allowed origins configured for the HTTP surface.
func NewCORSHandler(mu http.Handler, srvConfig *config.ServerConfig) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: srvConfig.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(mu)
}
