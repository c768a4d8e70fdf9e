package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/graphbank/backoffice/internal/cqrs"
	"github.com/graphbank/backoffice/internal/middleware"
	"github.com/graphbank/backoffice/internal/models"
)

// UserCommander defines the write-side operations used by UserHandler.
type UserCommander interface {
	CreateUser(ctx context.Context, cmd cqrs.CreateUserCommand) (*models.User, error)
	UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.UserView, error)
	DeleteUser(ctx context.Context, cmd cqrs.DeleteUserCommand) error
}

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error)
	GetUserByEmail(ctx context.Context, q cqrs.GetUserByEmailQuery) (*models.UserView, error)
	ListUsers(ctx context.Context) ([]models.UserView, error)
}

type UserHandler struct {
	commands UserCommander
	queries  UserQuerier
}

func NewUserHandler(commands UserCommander, queries UserQuerier) *UserHandler {
	return &UserHandler{commands: commands, queries: queries}
}

func (h *UserHandler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1/users")
	{
		v1.GET("", h.ListUsers)
		v1.GET("/email/:email", h.GetUserByEmail)
		v1.GET("/:userId", h.GetUser)
		v1.POST("", h.CreateUser)
		v1.PATCH("/:userId", h.UpdateUser)
		v1.DELETE("/:userId", h.DeleteUser)
	}
}

type CreateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type UpdateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
}

type ListUsersResponse struct {
	Users []models.UserView `json:"users"`
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	user, err := h.commands.CreateUser(c.Request.Context(), cqrs.CreateUserCommand{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondWithUserError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}
	view, err := h.commands.UpdateUser(c.Request.Context(), cqrs.UpdateUserCommand{
		UserID: userID,
		Name:   req.Name,
		Email:  req.Email,
	})
	if err != nil {
		respondWithUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	if err := h.commands.DeleteUser(c.Request.Context(), cqrs.DeleteUserCommand{UserID: userID}); err != nil {
		respondWithUserError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	view, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{UserID: userID})
	if err != nil {
		respondWithUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) GetUserByEmail(c *gin.Context) {
	view, err := h.queries.GetUserByEmail(c.Request.Context(), cqrs.GetUserByEmailQuery{
		Email: c.Param("email"),
	})
	if err != nil {
		respondWithUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	views, err := h.queries.ListUsers(c.Request.Context())
	if err != nil {
		respondWithUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListUsersResponse{Users: views})
}

func pathUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || id <= 0 {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid userId parameter")
		return 0, false
	}
	return id, true
}

func respondWithUserError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		middleware.RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, models.ErrEmailTaken):
		middleware.RespondWithError(c, http.StatusConflict, "Email already in use")
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
