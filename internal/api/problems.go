package api

import (
	"net/http"

	"github.com/tagwatch/tagwatch/internal/api/middleware"
	"github.com/tagwatch/tagwatch/internal/api/models"
)

func methodNotAllowed(r *http.Request) *models.Problem {
	p := models.NewProblem(
		"https://tagwatch.dev/problems/method-not-allowed",
		"Method not allowed",
		http.StatusMethodNotAllowed,
		middleware.GetRequestID(r.Context()),
	)
	p.Detail = r.Method + " is not supported on " + r.URL.Path
	return p
}
