package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-redemption/internal/clock"
	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/utils"
)

// AuthHandler exchanges a role PIN for an operator token.  The PIN is the
// privileged-access gate: only SUPERVISOR tokens reach the override routes.
type AuthHandler struct {
	Secret    string
	TTL       time.Duration
	PINHashes map[model.Role]string
	Clock     clock.Clock
}

func NewAuthHandler(secret string, ttl time.Duration, scannerHash, supervisorHash string, clk clock.Clock) *AuthHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &AuthHandler{
		Secret: secret,
		TTL:    ttl,
		PINHashes: map[model.Role]string{
			model.RoleScanner:    scannerHash,
			model.RoleSupervisor: supervisorHash,
		},
		Clock: clk,
	}
}

type loginReq struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"` // SCANNER | SUPERVISOR
	PIN        string `json:"pin"`
}

type loginResp struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
	OperatorID  string     `json:"operator_id"`
	Role        model.Role `json:"role"`
}

// Login verifies the PIN of the requested role and returns a token whose
// subject is the operator id.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	op := strings.TrimSpace(req.OperatorID)
	if op == "" || len(op) > 64 || req.PIN == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "operator_id and pin required"})
	}
	role, ok := model.ParseRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be SCANNER or SUPERVISOR"})
	}
	hash := h.PINHashes[role]
	if hash == "" || !utils.VerifyPIN(hash, req.PIN) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	tok, err := utils.NewOperatorToken(h.Secret, op, string(role), h.Clock.Now(), h.TTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	return c.JSON(http.StatusOK, loginResp{AccessToken: tok.Token, ExpiresAt: tok.Exp, OperatorID: op, Role: role})
}
