package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/milk-back/backend/internal/model"
	"github.com/milk-back/backend/internal/service"
)

type AuthHandler struct {
	svc         *service.AuthService
	sessions    *service.SessionManager
	interceptor *service.AuthInterceptor
}

func NewAuthHandler(svc *service.AuthService, sessions *service.SessionManager, interceptor *service.AuthInterceptor) *AuthHandler {
	return &AuthHandler{
		svc:         svc,
		sessions:    sessions,
		interceptor: interceptor,
	}
}

// SignUp godoc
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.SignUpRequest true "Username, email and password"
// @Success 200 {object} model.SignUpResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/signUp [post]
func (h *AuthHandler) SignUp(c *gin.Context) {
	if GetAuthUser(c) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already authenticated"})
		return
	}

	var req model.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.svc.SignUp(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SignUpResponse{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

// SignIn godoc
// @Summary Sign in
// @Description Sets access_token, refresh_token and session_id cookies.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.SignInRequest true "Username and password"
// @Success 200 {object} model.SignInResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /auth/signIn [post]
func (h *AuthHandler) SignIn(c *gin.Context) {
	if GetAuthUser(c) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "already authenticated"})
		return
	}

	var req model.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := h.svc.SignIn(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.interceptor.SetTokenCookies(c.Writer, result.Tokens)
	h.sessions.SetCookie(c.Writer, result.SessionID)
	c.JSON(http.StatusOK, model.SignInResponse{User: meResponse(result.Identity)})
}

// Logout godoc
// @Summary Logout
// @Description Revokes the session and clears all auth cookies.
// @Tags auth
// @Produce json
// @Success 200 {object} model.AuthLogoutResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	state := GetAuthState(c)
	if state == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	// 같은 요청에서 갱신된 토큰은 저장하지 않는다
	state.Discard()

	if err := h.svc.SignOut(c.Request.Context(), state.SessionID); err != nil {
		writeAuthError(c, err)
		return
	}

	h.interceptor.ClearTokenCookies(c.Writer)
	h.sessions.ClearCookie(c.Writer)
	c.JSON(http.StatusOK, model.AuthLogoutResponse{Status: "logged_out"})
}

// Refresh godoc
// @Summary Rotate tokens
// @Description Issues a new token pair bound to the current session.
// @Tags auth
// @Produce json
// @Success 200 {object} model.SignInResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 503 {object} model.ErrorResponse
// @Router /auth/refresh_tokens [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	state := GetAuthState(c)
	err := h.interceptor.ForceRefresh(c.Request.Context(), state)
	if state != nil {
		// 재조회한 계정 정보로 갱신
		attachState(c, state)
	}
	if err != nil {
		writeAuthError(c, err)
		return
	}

	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, model.SignInResponse{User: meResponse(*user)})
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Success 200 {object} model.AuthMeResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, meResponse(*user))
}

// Test godoc
// @Summary Ping the session store
// @Tags auth
// @Produce json
// @Success 200 {object} model.StoreTestResponse
// @Router /auth/test [get]
func (h *AuthHandler) Test(c *gin.Context) {
	err := h.sessions.Ping(c.Request.Context())
	c.JSON(http.StatusOK, model.StoreTestResponse{Resp: err == nil})
}

func meResponse(id model.Identity) model.AuthMeResponse {
	return model.AuthMeResponse{
		UserID:   id.ID,
		Username: id.Username,
		RoleID:   id.RoleID,
		StateID:  id.StateID,
	}
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, model.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}
