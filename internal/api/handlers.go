// Package api exposes the reporting workflow over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesikahq/outbreak-exchange/internal/auth"
	"github.com/mesikahq/outbreak-exchange/internal/middleware"
	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/reporting"
)

var (
	ErrInvalidID   = errors.New("invalid id")
	ErrInvalidBody = errors.New("invalid request body")
)

type Handler struct {
	reports     reporting.Service
	authService auth.Service
	logger      *zap.Logger
}

func NewHandler(reports reporting.Service, authService auth.Service, logger *zap.Logger) *Handler {
	return &Handler{
		reports:     reports,
		authService: authService,
		logger:      logger,
	}
}

type TokenRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Token exchanges a username and password for a bearer token. It accepts the
// OAuth2 password form as well as JSON.
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
		return
	case errors.Is(err, auth.ErrUnauthorized):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Inactive user"})
		return
	case err != nil:
		h.logger.Error("Login failed", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *Handler) Healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// Whoami echoes the authenticated username.
func (h *Handler) Whoami(c *gin.Context) {
	principal, ok := principal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": principal.Username})
}

func principal(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
	}
	return p, ok
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidID.Error()})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return v, true
}

func bindPatch(c *gin.Context, patch any) bool {
	if err := c.ShouldBindJSON(patch); err != nil {
		var fe *model.FieldError
		if errors.As(err, &fe) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fe.Error(), "field": fe.Field})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidBody.Error()})
		return false
	}
	return true
}

// respondError maps the reporting error taxonomy onto status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	var cv *reporting.ConstraintViolationError
	switch {
	case errors.As(err, &cv):
		c.JSON(http.StatusBadRequest, gin.H{"error": cv.Error(), "field": cv.Field})
	case errors.Is(err, reporting.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, reporting.ErrNotModifiable):
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": err.Error()})
	case errors.Is(err, reporting.ErrDataInconsistency),
		errors.Is(err, reporting.ErrStoreFailure):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Unmapped error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
