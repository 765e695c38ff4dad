package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/smart-inventory/internal/dto"
	"github.com/flicky/smart-inventory/internal/middleware"
	"github.com/flicky/smart-inventory/internal/service"
)

type AccountHandler struct {
	authService *service.AuthService
	log         *slog.Logger
}

func NewAccountHandler(authService *service.AuthService, log *slog.Logger) *AccountHandler {
	return &AccountHandler{authService: authService, log: log}
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RegisterResponse{
		User:    dto.FromUser(user),
		Message: "registration successful, check your email to confirm your account",
	})
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) Logout(c *gin.Context) {
	jti, exp := middleware.GetToken(c)
	if err := h.authService.Logout(c.Request.Context(), jti, exp); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) ConfirmEmail(c *gin.Context) {
	ticket := c.Query("ticket")
	if ticket == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket is required"})
		return
	}
	if err := h.authService.ConfirmEmail(c.Request.Context(), ticket); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email confirmed"})
}

func (h *AccountHandler) SecurityQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": service.SecurityQuestions})
}

func (h *AccountHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.VerifySecurityAnswer(c.Request.Context(), req.Email, req.SecurityQuestion, req.SecurityAnswer)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authService.ResetPassword(c.Request.Context(), req.Ticket, req.NewPassword); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}

func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.authService.ChangePasswordWithSecurity(c.Request.Context(), middleware.GetUserID(c), req.SecurityAnswer, req.NewPassword)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (h *AccountHandler) GetProfile(c *gin.Context) {
	resp, err := h.authService.GetProfile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var req dto.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.authService.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromUser(user))
}

func (h *AccountHandler) AssignRole(c *gin.Context) {
	id, ok := parseID(c, "user")
	if !ok {
		return
	}
	var req dto.AssignRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authService.AssignRole(c.Request.Context(), id, req.Role); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
