package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
)

const maxBodyBytes = 1 << 20

func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	heathCheck := struct {
		Status      string `json:"status"`
		Environment string `json:"environment"`
		Version     string `json:"version"`
	}{
		Status:      "available",
		Environment: app.config.env,
		Version:     version,
	}
	writeJSON(w, http.StatusOK, heathCheck)
}

func (app *application) testHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server is working!"})
}

func (app *application) registerHandler(w http.ResponseWriter, r *http.Request) {
	var input registerInput
	err := readJSON(w, r, &input)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	sess, u, err := app.auth.register(r.Context(), input)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	app.background(func() {
		err := app.notifier.sendWelcome(u)
		if err != nil {
			log.Printf("send welcome email to user %d: %v", u.ID, err)
		}
	})

	writeJSON(w, http.StatusCreated, sess)
}

func (app *application) loginHandler(w http.ResponseWriter, r *http.Request) {
	addr := clientIP(r)
	if !app.throttle.Allow(addr) {
		app.errorResponse(w, r, errTooManyAttempts)
		return
	}

	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	err := readJSON(w, r, &input)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	sess, err := app.auth.authenticate(r.Context(), input.Email, input.Password)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			app.throttle.RecordFailure(addr)
		}
		app.errorResponse(w, r, err)
		return
	}
	app.throttle.Reset(addr)

	writeJSON(w, http.StatusOK, sess)
}

func (app *application) listTodosHandler(w http.ResponseWriter, r *http.Request) {
	todos, err := app.todos.list(r.Context(), getUserFromRequest(r))
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (app *application) createTodoHandler(w http.ResponseWriter, r *http.Request) {
	var input createTodoInput
	err := readJSON(w, r, &input)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	t, err := app.todos.create(r.Context(), getUserFromRequest(r), input)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (app *application) updateTodoHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	var input updateTodoInput
	err = readJSON(w, r, &input)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	t, err := app.todos.update(r.Context(), getUserFromRequest(r), id, input)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (app *application) deleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	id, err := readIDParam(r)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}

	err = app.todos.delete(r.Context(), getUserFromRequest(r), id)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := app.todos.listUsersWithTasks(r.Context(), getUserFromRequest(r))
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// readIDParam reports malformed ids as errNotFound, the same answer a
// well-formed id that matches nothing gets.
func readIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errNotFound
	}
	return id, nil
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return newInputError("body", fmt.Sprintf("must not be larger than %d bytes", maxBytesErr.Limit))
		default:
			return newInputError("body", "must be a valid JSON object")
		}
	}
	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return newInputError("body", "must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		log.Println(err)
		writeError(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
	w.Write([]byte("\n"))
}

func (app *application) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		err = errors.New("internal server error")
	}
	writeError(w, err, status)
}

func composeJSONError(err error) string {
	jsonError := map[string]any{
		"error": err.Error(),
	}
	var inputErr *inputError
	if errors.As(err, &inputErr) {
		jsonError["error"] = errInvalidInput.Error()
		jsonError["fields"] = inputErr.fields
	}
	result, err := json.Marshal(jsonError)
	if err != nil {
		log.Println(err)
		return ""
	}
	return string(result)
}

func writeError(w http.ResponseWriter, err error, statusCode int) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	fmt.Fprintln(w, composeJSONError(err))
}
