package middleware

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/gate-redemption/internal/model"
)

// Context keys set by JWTAuth.
const (
    ctxOperatorID = "operator_id"
    ctxRole       = "role"
)

// OperatorID returns the authenticated operator, or "" when the request
// carried no valid token.
func OperatorID(c echo.Context) string {
    if s, ok := c.Get(ctxOperatorID).(string); ok {
        return s
    }
    return ""
}

// Role returns the authenticated operator's role.
func Role(c echo.Context) model.Role {
    if r, ok := c.Get(ctxRole).(model.Role); ok {
        return r
    }
    return ""
}

// SetIdentity stores an operator identity on the context.  JWTAuth calls
// it; tests use it to skip token handling.
func SetIdentity(c echo.Context, operatorID string, role model.Role) {
    c.Set(ctxOperatorID, operatorID)
    c.Set(ctxRole, role)
}
