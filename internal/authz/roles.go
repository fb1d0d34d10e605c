// Package authz decides whether an authenticated principal may exercise a
// capability. The decision is a pure function of the principal's claims;
// no storage is consulted.
package authz

// Roles carried in the role claim.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	// Reserved roles are minted only on refresh and second-factor tokens.
	RoleTokenRefresh     = "TOKEN_REFRESH"
	RoleTwoFactorPending = "TWO_FACTOR_PENDING"
)

// Capabilities checked by resource services.
const (
	CapAccountRead  = "account.read"
	CapAccountWrite = "account.write"
	CapAdminSweep   = "admin.sweep"

	// Designated capabilities of the reserved roles. CapTokenRefresh is also
	// the sentinel scope of every refresh token.
	CapTokenRefresh = "token.refresh"
	CapTwoFactor    = "auth.two_factor"
)

// IsReservedRole reports whether role may only appear on refresh or
// second-factor tokens.
func IsReservedRole(role string) bool {
	return role == RoleTokenRefresh || role == RoleTwoFactorPending
}

// IsReservedCapability reports whether c belongs exclusively to a reserved role.
func IsReservedCapability(c string) bool {
	return c == CapTokenRefresh || c == CapTwoFactor
}
