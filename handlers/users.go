package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"redgraph/middleware"
	"redgraph/models"
	"redgraph/service"
)

func (h *Handler) register(c *gin.Context) {
	var input struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	u, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RegisteredTotal.Inc()
	}
	h.session(c, http.StatusCreated, u)
}

func (h *Handler) login(c *gin.Context) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	u, err := h.svc.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.LoginFailedTotal.Inc()
		}
		h.fail(c, err)
		return
	}
	h.session(c, http.StatusOK, u)
}

// session issues a token for u and sets it both as cookie and in the body.
func (h *Handler) session(c *gin.Context, status int, u *models.User) {
	token, err := h.issuer.Issue(u.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.SetCookie(h.cookie, token, int(h.issuer.TTL().Seconds()), "/", "", false, true)
	ok(c, status, gin.H{"user": u, "token": token})
}

func (h *Handler) logout(c *gin.Context) {
	c.SetCookie(h.cookie, "", -1, "/", "", false, true)
	ok(c, http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) follow(c *gin.Context) {
	applied, err := h.svc.ToggleFollow(c.Request.Context(), middleware.ActorID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"applied": applied})
}

func (h *Handler) updatePassword(c *gin.Context) {
	var input struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	err := h.svc.UpdatePassword(c.Request.Context(), middleware.ActorID(c), input.OldPassword, input.NewPassword)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "password updated"})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var input struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	u, err := h.svc.UpdateProfile(c.Request.Context(), middleware.ActorID(c), service.ProfileInput{
		Name:  input.Name,
		Email: input.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

func (h *Handler) deleteMe(c *gin.Context) {
	res, err := h.svc.DeleteUser(c.Request.Context(), middleware.ActorID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.UserDeleted {
		c.SetCookie(h.cookie, "", -1, "/", "", false, true)
	}
	ok(c, http.StatusOK, res)
}

func (h *Handler) me(c *gin.Context) {
	h.profile(c, middleware.ActorID(c))
}

func (h *Handler) userProfile(c *gin.Context) {
	h.profile(c, c.Param("id"))
}

func (h *Handler) profile(c *gin.Context, id string) {
	p, err := h.svc.Profile(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h *Handler) users(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, users)
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var input struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	base := h.public
	if base == "" {
		base = "http://" + c.Request.Host
	}
	base = strings.TrimRight(base, "/") + "/api/v1/password/reset"

	if err := h.svc.ForgotPassword(c.Request.Context(), input.Email, base); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "email sent to " + input.Email})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var input struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), c.Param("token"), input.Password); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "password updated"})
}
