package presenter

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r-cryptocurrency/moonbridge/logging"
)

func NewRequestLogger(logger logging.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"path":     r.URL.Path,
				"duration": time.Since(ts),
			}).Info("http request completed")
		})
	}
}
