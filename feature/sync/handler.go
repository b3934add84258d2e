package sync

import (
	"errors"

	"directory-sync/core/logger"
	"directory-sync/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the sync engine.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the sync routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/sync")
	group.Post("/run", h.HandleRun)
	group.Get("/status", h.HandleStatus)
	group.Get("/metrics", h.HandleMetrics)
	group.Get("/history", h.HandleHistory)
	group.Get("/conflicts", h.HandleListConflicts)
	group.Post("/conflicts/:key/resolve", h.HandleResolveConflict)
	group.Delete("/conflicts/:key", h.HandleClearConflict)
	group.Get("/audit", h.HandleExportAudit)
	group.Get("/audit/archives", h.HandleListArchives)
	group.Post("/audit/archive", h.HandleArchiveAudit)
	group.Get("/config", h.HandleGetConfig)
	group.Patch("/config", h.HandleUpdateConfig)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var (
		connErr    *reconcile.ConnectionError
		timeoutErr *reconcile.TimeoutError
		cfgErr     *reconcile.ConfigurationError
		unresolved *reconcile.ConflictUnresolvedError
	)
	switch {
	case errors.Is(err, reconcile.ErrSyncInProgress):
		return fiber.StatusConflict
	case errors.Is(err, reconcile.ErrConflictNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, reconcile.ErrUnsupportedFormat),
		errors.Is(err, reconcile.ErrImmutableMapping),
		errors.As(err, &cfgErr):
		return fiber.StatusBadRequest
	case errors.As(err, &unresolved):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &timeoutErr), errors.As(err, &connErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	l := logger.WithRayID(h.service.logger, c)
	if status >= fiber.StatusInternalServerError {
		l.Error(msg, zap.Error(err))
	} else {
		l.Warn(msg, zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// HandleRun performs one synchronization pass.
// @Summary Run Sync
// @Description Run one directory to mirror synchronization pass.
// @Tags sync
// @Produce json
// @Success 200 {object} reconcile.Result "Pass result"
// @Failure 409 {object} map[string]string "Sync already in progress"
// @Failure 502 {object} map[string]string "Directory or mirror unreachable"
// @Router /sync/run [post]
func (h *Handler) HandleRun(c *fiber.Ctx) error {
	result, err := h.service.Run(c.Context())
	if err != nil {
		return h.fail(c, "Sync pass failed", err)
	}
	return c.JSON(result)
}

// HandleStatus returns the controller status.
// @Summary Sync Status
// @Tags sync
// @Produce json
// @Success 200 {object} reconcile.StatusReport "Status"
// @Router /sync/status [get]
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	return c.JSON(h.service.engine.Status())
}

// HandleMetrics returns the metrics snapshot.
// @Summary Sync Metrics
// @Tags sync
// @Produce json
// @Success 200 {object} reconcile.MetricsSnapshot "Metrics"
// @Router /sync/metrics [get]
func (h *Handler) HandleMetrics(c *fiber.Ctx) error {
	return c.JSON(h.service.engine.Metrics())
}

// HandleHistory returns the most recent passes.
// @Summary Sync History
// @Tags sync
// @Produce json
// @Param limit query int false "Number of entries (default 50)"
// @Success 200 {array} reconcile.HistoryEntry "History"
// @Router /sync/history [get]
func (h *Handler) HandleHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", reconcile.DefaultHistoryLimit)
	return c.JSON(h.service.engine.History(limit))
}

// HandleListConflicts returns the conflicts awaiting a manual decision.
// @Summary Pending Conflicts
// @Tags sync
// @Produce json
// @Success 200 {array} reconcile.Conflict "Pending conflicts"
// @Router /sync/conflicts [get]
func (h *Handler) HandleListConflicts(c *fiber.Ctx) error {
	return c.JSON(h.service.engine.PendingConflicts())
}

// HandleResolveConflict applies a manual decision.
// @Summary Resolve Conflict
// @Tags sync
// @Accept json
// @Produce json
// @Param key path string true "Record key"
// @Param decision body reconcile.Decision true "Decision"
// @Success 200 {object} reconcile.Resolution "Applied resolution"
// @Failure 400 {object} map[string]string "Invalid decision"
// @Failure 404 {object} map[string]string "Conflict not found"
// @Failure 409 {object} map[string]string "Sync in progress"
// @Router /sync/conflicts/{key}/resolve [post]
func (h *Handler) HandleResolveConflict(c *fiber.Ctx) error {
	var decision reconcile.Decision
	if err := c.BodyParser(&decision); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid decision body",
		})
	}

	res, err := h.service.engine.ResolveConflict(c.Context(), c.Params("key"), decision)
	if err != nil {
		return h.fail(c, "Manual resolution failed", err)
	}
	return c.JSON(res)
}

// HandleClearConflict drops a pending conflict without applying it.
// @Summary Clear Conflict
// @Tags sync
// @Param key path string true "Record key"
// @Success 204 "Cleared"
// @Failure 404 {object} map[string]string "Conflict not found"
// @Router /sync/conflicts/{key} [delete]
func (h *Handler) HandleClearConflict(c *fiber.Ctx) error {
	if err := h.service.engine.ClearConflict(c.Params("key")); err != nil {
		return h.fail(c, "Clearing conflict failed", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleExportAudit returns the audit log.
// @Summary Export Audit Log
// @Tags sync
// @Produce json
// @Produce text/csv
// @Param format query string false "json, csv or yaml"
// @Success 200 {string} string "Audit log"
// @Failure 400 {object} map[string]string "Unsupported format"
// @Router /sync/audit [get]
func (h *Handler) HandleExportAudit(c *fiber.Ctx) error {
	format := c.Query("format", reconcile.FormatJSON)
	data, err := h.service.engine.ExportAuditLog(format)
	if err != nil {
		return h.fail(c, "Audit export failed", err)
	}
	c.Set(fiber.HeaderContentType, contentTypes[format])
	return c.Send(data)
}

// HandleArchiveAudit uploads the audit log to object storage.
// @Summary Archive Audit Log
// @Tags sync
// @Produce json
// @Param format query string false "json, csv or yaml"
// @Success 201 {object} map[string]string "Archived object"
// @Failure 400 {object} map[string]string "Unsupported format"
// @Router /sync/audit/archive [post]
func (h *Handler) HandleArchiveAudit(c *fiber.Ctx) error {
	name, err := h.service.ArchiveAuditLog(c.Context(), c.Query("format", reconcile.FormatJSON))
	if err != nil {
		return h.fail(c, "Audit archive failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"object": name,
	})
}

// HandleListArchives lists archived audit logs.
// @Summary List Audit Archives
// @Tags sync
// @Produce json
// @Success 200 {array} Archive "Archives"
// @Router /sync/audit/archives [get]
func (h *Handler) HandleListArchives(c *fiber.Ctx) error {
	archives, err := h.service.Archives(c.Context())
	if err != nil {
		return h.fail(c, "Listing audit archives failed", err)
	}
	if archives == nil {
		archives = []Archive{}
	}
	return c.JSON(archives)
}

// HandleGetConfig returns the active configuration.
// @Summary Sync Configuration
// @Tags sync
// @Produce json
// @Router /sync/config [get]
func (h *Handler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(newConfigResponse(h.service.engine.Configuration()))
}

// HandleUpdateConfig applies a partial configuration change.
// @Summary Update Sync Configuration
// @Tags sync
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]string "Invalid configuration"
// @Router /sync/config [patch]
func (h *Handler) HandleUpdateConfig(c *fiber.Ctx) error {
	var req configRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid configuration body",
		})
	}

	cfg, err := h.service.engine.UpdateConfiguration(c.Context(), req.update())
	if err != nil {
		return h.fail(c, "Configuration update failed", err)
	}
	return c.JSON(newConfigResponse(cfg))
}
