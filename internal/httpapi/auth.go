package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"presence/internal/auth"
	"presence/internal/identity"
	"presence/internal/model"
)

func (a *API) signUp(c *gin.Context) {
	var req identity.SignUpInput
	if !bindJSON(c, &req) {
		return
	}
	sess, err := a.Identity.SignUp(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (a *API) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sess, err := a.Identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (a *API) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sess, err := a.Identity.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (a *API) logout(c *gin.Context) {
	id, _ := auth.FromContext(c)
	if err := a.Identity.Logout(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// me returns the stored profile, or one built from the token for
// federated users that have no profile yet.
func (a *API) me(c *gin.Context) {
	id, _ := auth.FromContext(c)
	p, err := a.Identity.Profile(c.Request.Context(), id.UserID)
	if errors.Is(err, identity.ErrUserNotFound) {
		p = model.Profile{ID: id.UserID, Email: id.Email, Role: id.Role, WalletAddress: id.Wallet}
		err = nil
	}
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) updateRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	p, err := a.Identity.UpdateRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// updateWallet assigns the ledger wallet a user's tokens carry.
func (a *API) updateWallet(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
	}
	if !bindJSON(c, &req) {
		return
	}
	p, err := a.Identity.UpdateWallet(c.Request.Context(), c.Param("id"), req.WalletAddress)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
