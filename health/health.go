package health

import (
	"github.com/project-fusion/fusion-backend/router"
)

const (
	Path = "/api/health"

	StatusOK       = "OK"
	DefaultMessage = "Fusion backend running"
)

type Status struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Handler reports that the service is up. An empty message falls back to
// DefaultMessage.
func Handler(message string) router.HandlerFunc {
	if message == "" {
		message = DefaultMessage
	}
	return func(req *router.Request) (*router.Response, error) {
		return router.OK(Status{Status: StatusOK, Message: message}), nil
	}
}
