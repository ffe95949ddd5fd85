package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/habitual/internal/auth"
	"github.com/dukerupert/habitual/internal/dates"
	"github.com/dukerupert/habitual/internal/habit"
	"github.com/dukerupert/habitual/internal/model"
	ws "github.com/dukerupert/habitual/internal/websocket"
)

// HabitHandler serves the JSON API over habits, entries and the heatmap.
type HabitHandler struct {
	habits *habit.Service
	hub    *ws.Hub
	logger *slog.Logger
	clock  clock
}

func NewHabitHandler(svc *habit.Service, hub *ws.Hub, logger *slog.Logger) *HabitHandler {
	return &HabitHandler{habits: svc, hub: hub, logger: logger}
}

type habitRequest struct {
	Name       string `json:"name"`
	IsQuantity bool   `json:"is_quantity"`
}

type toggleRequest struct {
	HabitID string `json:"habit_id"`
	Date    string `json:"date"`
	Value   *int   `json:"value"`
}

func (h *HabitHandler) publish(userID string, msg ws.Message) {
	if h.hub != nil {
		h.hub.Publish(userID, msg)
	}
}

// List handles GET /api/habits
func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	habits, err := h.habits.ListHabits(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

// Create handles POST /api/habits
func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := auth.UserID(r.Context())

	hb, err := h.habits.CreateHabit(r.Context(), userID, req.Name, req.IsQuantity)
	if err != nil {
		writeOpError(w, err)
		return
	}
	h.publish(userID, ws.NewMessage("habit", "created", hb.ID))
	writeJSON(w, http.StatusCreated, hb)
}

// Update handles PUT /api/habits/{id}
func (h *HabitHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	hb, err := h.habits.UpdateHabit(r.Context(), userID, id, req.Name, req.IsQuantity)
	if err != nil {
		writeOpError(w, err)
		return
	}
	h.publish(userID, ws.NewMessage("habit", "updated", id))
	writeJSON(w, http.StatusOK, hb)
}

// Delete handles DELETE /api/habits/{id}
func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	existing, err := h.habits.GetHabit(r.Context(), userID, id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Habit not found")
		return
	}
	if err := h.habits.DeleteHabit(r.Context(), userID, id); err != nil {
		writeOpError(w, err)
		return
	}
	h.publish(userID, ws.NewMessage("habit", "deleted", id))
	w.WriteHeader(http.StatusNoContent)
}

// Toggle handles POST /api/entries/toggle. A missing value means 1.
func (h *HabitHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	value := 1
	if req.Value != nil {
		value = *req.Value
	}
	userID := auth.UserID(r.Context())

	entry, err := h.habits.ToggleEntry(r.Context(), userID, req.HabitID, req.Date, value)
	if err != nil {
		writeOpError(w, err)
		return
	}
	h.publish(userID, ws.NewMessage("entry", "toggled", req.HabitID).WithDate(req.Date))
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
}

// ListEntries handles GET /api/entries?from=&to=&habit_id=. The range defaults to the
// heatmap window.
func (h *HabitHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := dates.Last52Weeks(h.clock.now())
	from, to := q.Get("from"), q.Get("to")
	if from == "" {
		from = dates.FormatDB(start)
	}
	if to == "" {
		to = dates.FormatDB(end)
	}
	fromT, err := dates.ParseDB(from)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date")
		return
	}
	toT, err := dates.ParseDB(to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date")
		return
	}
	if fromT.After(toT) {
		writeError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	userID := auth.UserID(r.Context())
	var entries []model.Entry
	if habitID := q.Get("habit_id"); habitID != "" {
		entries, err = h.habits.ListHabitEntries(r.Context(), userID, habitID, from, to)
	} else {
		entries, err = h.habits.ListEntries(r.Context(), userID, from, to)
	}
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Heatmap handles GET /api/heatmap?habit_id=
func (h *HabitHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	hm, err := h.habits.Heatmap(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("habit_id"), h.clock.now())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hm)
}
