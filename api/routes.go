package main

import (
	"net/http"
)

func composeRoutes(app *application) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthcheck", app.healthCheckHandler)
	mux.HandleFunc("GET /api/test", app.testHandler)

	mux.HandleFunc("POST /api/register", app.registerHandler)
	mux.HandleFunc("POST /api/login", app.loginHandler)

	mux.HandleFunc("GET /api/todos", app.requireAuth(app.listTodosHandler))
	mux.HandleFunc("POST /api/todos", app.requireAuth(app.createTodoHandler))
	mux.HandleFunc("PUT /api/todos/{id}", app.requireAuth(app.updateTodoHandler))
	mux.HandleFunc("DELETE /api/todos/{id}", app.requireAuth(app.deleteTodoHandler))

	mux.HandleFunc("GET /api/admin/users", app.requireAdmin(app.listUsersHandler))

	var h http.Handler = mux
	if app.config.limiter.enabled {
		h = app.rateLimit(h)
	}
	return app.recoverPanic(logRequest(app.enableCORS(h)))
}
