package users

import (
	"errors"
	"strconv"

	"directory-sync/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for mirrored users.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the users routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/users")
	group.Get("/", h.HandleListUsers)
	group.Get("/:key", h.HandleGetUser)
}

// HandleListUsers lists mirrored users.
// @Summary List Users
// @Description List users of the mirror datastore.
// @Tags users
// @Produce json
// @Param active query bool false "Filter on the active flag"
// @Param department query string false "Filter on department"
// @Success 200 {array} User "Users"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /users [get]
func (h *Handler) HandleListUsers(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var f Filter
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "active must be true or false",
			})
		}
		f.Active = &active
	}
	f.Department = c.Query("department")

	users, err := h.service.List(c.Context(), f)
	if err != nil {
		l.Error("Listing users failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(users)
}

// HandleGetUser returns one user.
// @Summary Get User
// @Description Get a mirrored user by id or email.
// @Tags users
// @Produce json
// @Param key path string true "User id or email"
// @Success 200 {object} User "User"
// @Failure 404 {object} map[string]string "Not Found"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /users/{key} [get]
func (h *Handler) HandleGetUser(c *fiber.Ctx) error {
	key := c.Params("key")
	l := logger.WithRayID(h.service.logger, c)

	user, err := h.service.Get(c.Context(), key)
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		l.Error("User lookup failed", zap.String("key", key), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(user)
}
