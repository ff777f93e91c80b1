package model

// Role is the privilege class carried in an operator token.
type Role string

const (
    RoleScanner    Role = "SCANNER"    // gate staff: scan, redeem, look up
    RoleSupervisor Role = "SUPERVISOR" // may also override and read the audit log
)

// ParseRole accepts the two known roles only.
func ParseRole(s string) (Role, bool) {
    switch Role(s) {
    case RoleScanner, RoleSupervisor:
        return Role(s), true
    }
    return "", false
}
