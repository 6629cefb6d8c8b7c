package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatusHandler records and lists client status checks, a lightweight
// connectivity ping used by frontends.
type StatusHandler struct {
	pool *pgxpool.Pool
}

func NewStatusHandler(pool *pgxpool.Pool) *StatusHandler {
	return &StatusHandler{pool: pool}
}

func (h *StatusHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req StatusCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if req.ClientName == "" {
		writeError(w, http.StatusBadRequest, "client_name_required", "client_name must not be empty")
		return
	}

	check := StatusCheck{
		ID:         uuid.New(),
		ClientName: req.ClientName,
		Timestamp:  time.Now().UTC(),
	}

	_, err := h.pool.Exec(r.Context(), `
		INSERT INTO status_checks (id, client_name, created_at)
		VALUES ($1, $2, $3)
	`, check.ID, check.ClientName, check.Timestamp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, check)
}

func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.pool.Query(r.Context(), `
		SELECT id, client_name, created_at
		FROM status_checks
		ORDER BY created_at DESC
		LIMIT 1000
	`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	defer rows.Close()

	checks := []StatusCheck{}
	for rows.Next() {
		var c StatusCheck
		if err := rows.Scan(&c.ID, &c.ClientName, &c.Timestamp); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, checks)
}
