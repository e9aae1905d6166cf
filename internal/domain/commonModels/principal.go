package commonModels

import (
	"context"
	"slices"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub_admin"
	RoleConsumer Role = "consumer"
)

// Principal is the caller identity handed over by the auth gateway. It is trusted as is.
type Principal struct {
	UserId          string
	Role            Role
	JurisdictionIds []string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanQuery: consumers without an explicit list are public portal users.
func (p Principal) CanQuery(jurisdictionId string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleSubAdmin:
		return slices.Contains(p.JurisdictionIds, jurisdictionId)
	case RoleConsumer:
		return len(p.JurisdictionIds) == 0 || slices.Contains(p.JurisdictionIds, jurisdictionId)
	}
	return false
}

// CanManage covers ingest and delete.
func (p Principal) CanManage(jurisdictionId string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleSubAdmin:
		return slices.Contains(p.JurisdictionIds, jurisdictionId)
	}
	return false
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the zero Principal, which nothing authorizes, when none was attached.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
