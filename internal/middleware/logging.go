// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware logs every request with its method, path, duration and
// remote address.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("request completed")
		})
	}
}

// LogWebSocketConnect records a subscriber joining a room's event stream.
func LogWebSocketConnect(logger *logrus.Logger, room, userID, remoteAddr string) {
	logger.WithFields(logrus.Fields{
		"room":   room,
		"user":   userID,
		"remote": remoteAddr,
	}).Info("websocket subscribed")
}

// LogWebSocketDisconnect records a subscriber leaving a room.
func LogWebSocketDisconnect(logger *logrus.Logger, room, userID string, err error) {
	fields := logrus.Fields{
		"room": room,
		"user": userID,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("websocket unsubscribed")
}
