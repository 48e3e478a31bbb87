package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/slots"
	"github.com/lysyi3m/slot-comb/app/tasks"
)

func NewHandler(db Pinger, appointments database.AppointmentRepository, runs database.RunRepository,
	subscribers database.SubscriberRepository, catalog OfficeCatalog, generator GeneratorInterface,
	scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		db:           db,
		appointments: appointments,
		runs:         runs,
		subscribers:  subscribers,
		catalog:      catalog,
		generator:    generator,
		scheduler:    scheduler,
		version:      version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"offices":   len(h.catalog.Names()),
	}

	status := http.StatusOK
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		slog.Error("Database ping failed", "error", err)
		health["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	} else {
		health["database"] = "ok"
	}

	c.JSON(status, health)
}

func (h *Handler) GetAppointments(c *gin.Context) {
	records, err := h.appointments.ListCurrent(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_current", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	views := make(map[string]*OfficeView)
	var order []string
	view := func(name string) *OfficeView {
		if v, ok := views[name]; ok {
			return v
		}
		v := &OfficeView{Office: name, Golden: []SlotView{}}
		views[name] = v
		order = append(order, name)
		return v
	}

	for _, name := range h.catalog.Names() {
		view(name)
	}

	// Records come sorted by office, category, date and time.
	for _, r := range records {
		v := view(r.Office)
		if r.LastCheckedAt != nil && (v.LastCheckedAt == nil || r.LastCheckedAt.After(*v.LastCheckedAt)) {
			v.LastCheckedAt = r.LastCheckedAt
		}

		switch r.Category {
		case slots.CategoryGolden:
			slot := r.Slot()
			v.Golden = append(v.Golden, SlotView{
				Date:        slot.DateString(),
				Time:        slot.Time,
				FirstSeenAt: r.FirstSeenAt,
				LastSeenAt:  r.LastSeenAt,
				Link:        r.BookingReference,
			})
		case slots.CategoryFuture:
			v.ClosestFuture = &FutureView{
				Date:        r.AppointmentDate.Format(slots.DateLayout),
				FirstSeenAt: r.FirstSeenAt,
				LastSeenAt:  r.LastSeenAt,
			}
		}
	}

	offices := make([]*OfficeView, 0, len(order))
	goldenCount := 0
	for _, name := range order {
		offices = append(offices, views[name])
		goldenCount += len(views[name].Golden)
	}

	c.Header("X-Golden-Slots", strconv.Itoa(goldenCount))
	c.JSON(http.StatusOK, gin.H{
		"offices": offices,
		"golden":  goldenCount,
	})
}

func (h *Handler) GetLatestRun(c *gin.Context) {
	run, err := h.runs.GetLatestRun(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No finished runs yet"})
		return
	}

	errs := run.Errors
	if errs == nil {
		errs = []database.RunError{}
	}

	c.JSON(http.StatusOK, RunView{
		ID:             run.ID,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		OfficesScraped: run.OfficesScraped,
		GoldenFound:    run.GoldenFound,
		FutureFound:    run.FutureFound,
		Errors:         errs,
	})
}

func (h *Handler) GetGoldenFeed(c *gin.Context) {
	records, err := h.appointments.ListCurrent(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_current", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(records, time.Now())
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, rss)
}

func (h *Handler) PostSubscriber(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
		return
	}

	offices := make([]string, 0, len(req.Offices))
	seen := make(map[string]bool)
	for _, name := range req.Offices {
		canonical, ok := h.catalog.Canonical(name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown office", "office": name})
			return
		}
		if !seen[canonical] {
			seen[canonical] = true
			offices = append(offices, canonical)
		}
	}

	subscriber, err := h.subscribers.UpsertSubscriber(c.Request.Context(), email, offices)
	if err != nil {
		slog.Error("Database error", "operation", "upsert_subscriber", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Subscriber registered", "email", subscriber.Email, "offices", len(subscriber.Offices))

	c.JSON(http.StatusOK, gin.H{
		"email":   subscriber.Email,
		"offices": subscriber.Offices,
		"active":  subscriber.Active,
	})
}

func (h *Handler) PostUnsubscribe(c *gin.Context) {
	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
		return
	}

	err := h.subscribers.DeactivateSubscriber(c.Request.Context(), email)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscriber not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "deactivate_subscriber", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"email": email, "active": false})
}

func (h *Handler) APITriggerRun(c *gin.Context) {
	task := h.scheduler.NewTask(tasks.TriggerManual)

	err := h.scheduler.EnqueueTask(task)
	if errors.Is(err, tasks.ErrTaskPending) {
		c.JSON(http.StatusConflict, gin.H{"error": "A run is already pending"})
		return
	}
	if err != nil {
		slog.Error("Error enqueueing run", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue run",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   task.GetID(),
			"type": task.GetType(),
		},
	})
}

// normalizeEmail accepts a bare address and returns it lower-cased.
func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || addr.Name != "" {
		return "", false
	}
	if !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return "", false
	}

	return strings.ToLower(addr.Address), true
}
