package authz

import (
	"github.com/dmitrijs2005/gameauth/internal/authn"
	"github.com/dmitrijs2005/gameauth/internal/common"
)

// Policy is stateless; the zero value is ready to use.
type Policy struct{}

// Permits evaluates, in order:
//  1. no principal is never permitted;
//  2. a reserved role permits only its own designated capability;
//  3. designated capabilities are never granted to ordinary roles;
//  4. ADMIN is permitted everything else;
//  5. otherwise the capability must be among the principal's authorities.
func (Policy) Permits(p *authn.Principal, capability string) bool {
	if p == nil {
		return false
	}

	switch p.Role {
	case RoleTokenRefresh:
		return capability == CapTokenRefresh && p.HasAuthority(CapTokenRefresh)
	case RoleTwoFactorPending:
		return capability == CapTwoFactor
	}

	if IsReservedCapability(capability) {
		return false
	}
	if p.Role == RoleAdmin {
		return true
	}
	return p.HasAuthority(capability)
}

// Check is Permits with a reason: common.ErrorUnauthorized without a
// principal, common.ErrInsufficientAuthority otherwise.
func (pol Policy) Check(p *authn.Principal, capability string) error {
	if p == nil {
		return common.ErrorUnauthorized
	}
	if !pol.Permits(p, capability) {
		return common.ErrInsufficientAuthority
	}
	return nil
}
