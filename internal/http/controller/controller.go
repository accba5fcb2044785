package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iyhunko/products-crud/internal/config"
	"github.com/iyhunko/products-crud/internal/repository"
	"github.com/iyhunko/products-crud/internal/service"
)

const pingTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Controller handles general HTTP requests.
type Controller struct {
	db     Pinger
	config *config.Config
}

// New creates a new Controller with the given configuration and database handle.
func New(config *config.Config, db Pinger) *Controller {
	return &Controller{
		config: config,
		db:     db,
	}
}

// Ping handles the HTTP GET request for health check endpoint.
func (con *Controller) Ping(c *gin.Context) {
	if con.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := con.db.PingContext(ctx); err != nil {
			slog.Error("Database ping failed", slog.Any("err", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// parseID reads the :id path parameter. Anything that is not an integer
// cannot name a product, so it is reported as not found.
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondNotFound(c)
		return 0, false
	}
	return id, true
}

func respondNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}

// respondError maps service and repository errors onto HTTP responses.
func respondError(c *gin.Context, err error, action string) {
	var (
		validationErr *service.ValidationError
		parseErr      *service.ParseError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, validationErr.Fields)
	case errors.As(err, &parseErr):
		c.JSON(http.StatusBadRequest, gin.H{"detail": parseErr.Error()})
	case errors.Is(err, repository.ErrNotFound):
		respondNotFound(c)
	default:
		_ = c.Error(err)
		slog.Error("Failed to "+action, slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
