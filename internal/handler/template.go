package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/csrf"

	"github.com/dukerupert/habitual/internal/auth"
	"github.com/dukerupert/habitual/internal/dates"
	"github.com/dukerupert/habitual/internal/habit"
	"github.com/dukerupert/habitual/internal/heatmap"
	"github.com/dukerupert/habitual/internal/model"
	ws "github.com/dukerupert/habitual/internal/websocket"
)

// HTMX events the dashboard panels listen for.
const (
	eventTodayStale   = "today-stale"
	eventHeatmapStale = "heatmap-stale"
	eventHabitsStale  = "habits-stale"
)

type TemplateHandler struct {
	habits    *habit.Service
	hub       *ws.Hub
	templates *template.Template
	logger    *slog.Logger
	clock     clock
}

func NewTemplateHandler(svc *habit.Service, hub *ws.Hub, tmpl *template.Template, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{
		habits:    svc,
		hub:       hub,
		templates: tmpl,
		logger:    logger,
	}
}

// todayItem is one row of the "Today's Habits" panel.
type todayItem struct {
	Habit model.Habit
	Value int
	Done  bool
}

func (h *TemplateHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)
	now := h.clock.now()

	habits, err := h.habits.ListHabits(ctx, userID)
	if err != nil {
		http.Error(w, "failed to load habits", http.StatusInternalServerError)
		return
	}
	items, err := h.todayItems(r, habits)
	if err != nil {
		http.Error(w, "failed to load entries", http.StatusInternalServerError)
		return
	}
	hm, err := h.habits.Heatmap(ctx, userID, "", now)
	if err != nil {
		http.Error(w, "failed to load heatmap", http.StatusInternalServerError)
		return
	}

	data := heatmapData(hm, habits)
	data["Title"] = "Habitual"
	data["Email"] = auth.Email(ctx)
	data["Today"] = dates.FormatDisplay(now)
	data["Items"] = items
	data["CSRFField"] = csrf.TemplateField(r)
	data["CSRFToken"] = csrf.Token(r)
	h.render(w, "layout.html", data)
}

func (h *TemplateHandler) todayItems(r *http.Request, habits []model.Habit) ([]todayItem, error) {
	ctx := r.Context()
	today := dates.FormatDB(h.clock.now())
	byHabit, err := h.habits.EntriesForDate(ctx, auth.UserID(ctx), today)
	if err != nil {
		return nil, err
	}
	items := make([]todayItem, 0, len(habits))
	for _, hb := range habits {
		e, ok := byHabit[hb.ID]
		items = append(items, todayItem{Habit: hb, Value: e.Value, Done: ok && e.Value > 0})
	}
	return items, nil
}

func (h *TemplateHandler) TodayList(w http.ResponseWriter, r *http.Request) {
	habits, err := h.habits.ListHabits(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		http.Error(w, "failed to load habits", http.StatusInternalServerError)
		return
	}
	items, err := h.todayItems(r, habits)
	if err != nil {
		http.Error(w, "failed to load entries", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "today-list", map[string]any{"Items": items})
}

// nextTodayValue decides what a click on the today panel stores. Boolean habits flip
// between 0 and 1. Quantity habits take the typed positive amount, or flip when it
// is blank.
func nextTodayValue(isQuantity bool, current int, input string) (int, error) {
	input = strings.TrimSpace(input)
	if !isQuantity || input == "" {
		if current > 0 {
			return 0, nil
		}
		return 1, nil
	}
	n, err := strconv.Atoi(input)
	if err != nil || n <= 0 {
		return 0, errors.New("Enter a whole number")
	}
	return n, nil
}

func (h *TemplateHandler) TodayToggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)
	id := r.PathValue("id")

	hb, err := h.habits.GetHabit(ctx, userID, id)
	if err != nil || hb == nil {
		h.renderError(w, "#today-error", "Habit not found")
		return
	}

	today := dates.FormatDB(h.clock.now())
	byHabit, err := h.habits.EntriesForDate(ctx, userID, today)
	if err != nil {
		h.renderError(w, "#today-error", "Failed to update entry")
		return
	}

	value, err := nextTodayValue(hb.IsQuantity, byHabit[id].Value, r.FormValue("value"))
	if err != nil {
		h.renderError(w, "#today-error", err.Error())
		return
	}
	if _, err := h.habits.ToggleEntry(ctx, userID, id, today, value); err != nil {
		_, msg := opStatus(err)
		h.renderError(w, "#today-error", msg)
		return
	}
	h.publish(userID, ws.NewMessage("entry", "toggled", id).WithDate(today))

	w.Header().Set("HX-Trigger", eventHeatmapStale)
	h.TodayList(w, r)
}

func heatmapData(hm *heatmap.Heatmap, habits []model.Habit) map[string]any {
	return map[string]any{
		"Heatmap":   hm,
		"Habits":    habits,
		"Legend":    heatmap.Legend,
		"DayLabels": heatmap.DayLabels,
	}
}

func (h *TemplateHandler) renderHeatmap(w http.ResponseWriter, r *http.Request, selected string) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	habits, err := h.habits.ListHabits(ctx, userID)
	if err != nil {
		http.Error(w, "failed to load habits", http.StatusInternalServerError)
		return
	}
	hm, err := h.habits.Heatmap(ctx, userID, selected, h.clock.now())
	if err != nil {
		http.Error(w, "failed to load heatmap", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "heatmap", heatmapData(hm, habits))
}

func (h *TemplateHandler) Heatmap(w http.ResponseWriter, r *http.Request) {
	h.renderHeatmap(w, r, r.URL.Query().Get("habit"))
}

// HeatmapToggle handles a cell click in selected-habit mode.
func (h *TemplateHandler) HeatmapToggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)
	habitID := r.FormValue("habit_id")
	date := r.FormValue("date")

	value, err := strconv.Atoi(r.FormValue("value"))
	if err != nil {
		h.renderError(w, "#heatmap-error", "Invalid value")
		return
	}
	if _, err := h.habits.ToggleEntry(ctx, userID, habitID, date, value); err != nil {
		_, msg := opStatus(err)
		h.renderError(w, "#heatmap-error", msg)
		return
	}
	h.publish(userID, ws.NewMessage("entry", "toggled", habitID).WithDate(date))

	w.Header().Set("HX-Trigger", eventTodayStale)
	h.renderHeatmap(w, r, habitID)
}

func (h *TemplateHandler) HabitList(w http.ResponseWriter, r *http.Request) {
	habits, err := h.habits.ListHabits(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		http.Error(w, "failed to load habits", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "habit-list", map[string]any{"Habits": habits})
}

func (h *TemplateHandler) HabitCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	userID := auth.UserID(r.Context())

	hb, err := h.habits.CreateHabit(r.Context(), userID, r.FormValue("name"), formBool(r, "is_quantity"))
	if err != nil {
		_, msg := opStatus(err)
		h.renderError(w, "#habit-form-error", msg)
		return
	}
	h.publish(userID, ws.NewMessage("habit", "created", hb.ID))

	w.Header().Set("HX-Trigger", eventTodayStale+", "+eventHeatmapStale)
	h.HabitList(w, r)
}

func (h *TemplateHandler) HabitEditForm(w http.ResponseWriter, r *http.Request) {
	hb, err := h.habits.GetHabit(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil || hb == nil {
		http.Error(w, "habit not found", http.StatusNotFound)
		return
	}
	h.renderPartial(w, "habit-edit-form", hb)
}

func (h *TemplateHandler) HabitUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	if _, err := h.habits.UpdateHabit(r.Context(), userID, id, r.FormValue("name"), formBool(r, "is_quantity")); err != nil {
		_, msg := opStatus(err)
		h.renderError(w, "#habit-form-error", msg)
		return
	}
	h.publish(userID, ws.NewMessage("habit", "updated", id))

	w.Header().Set("HX-Trigger", eventTodayStale+", "+eventHeatmapStale)
	h.HabitList(w, r)
}

func (h *TemplateHandler) HabitDelete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	if err := h.habits.DeleteHabit(r.Context(), userID, id); err != nil {
		_, msg := opStatus(err)
		h.renderError(w, "#habit-form-error", msg)
		return
	}
	h.publish(userID, ws.NewMessage("habit", "deleted", id))

	w.Header().Set("HX-Trigger", eventTodayStale+", "+eventHeatmapStale)
	h.HabitList(w, r)
}

func formBool(r *http.Request, key string) bool {
	switch r.FormValue(key) {
	case "true", "on", "1":
		return true
	}
	return false
}

func (h *TemplateHandler) publish(userID string, msg ws.Message) {
	if h.hub != nil {
		h.hub.Publish(userID, msg)
	}
}

// renderError swaps the form-error partial into target and leaves the rest of the
// page untouched.
func (h *TemplateHandler) renderError(w http.ResponseWriter, target, msg string) {
	w.Header().Set("HX-Retarget", target)
	w.Header().Set("HX-Reswap", "innerHTML")
	h.renderPartial(w, "form-error", map[string]string{"Error": msg})
}

func (h *TemplateHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template error", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *TemplateHandler) renderPartial(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template error", "template", name, "error", err)
		w.Write([]byte(`<div class="alert alert-error">Template error</div>`))
	}
}
