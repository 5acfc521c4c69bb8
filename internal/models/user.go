package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleApprover    UserRole = "APPROVER"
	RoleWithholding UserRole = "WITHHOLDING"
	RolePayer       UserRole = "PAYER"
	RoleLegalizer   UserRole = "LEGALIZER"
	RoleRequester   UserRole = "REQUESTER"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleRequester || r.SeesAllAdvances()
}

// SeesAllAdvances reports whether the role may read every requester's advances.
func (r UserRole) SeesAllAdvances() bool {
	switch r {
	case RoleAdmin, RoleApprover, RoleWithholding, RolePayer, RoleLegalizer:
		return true
	default:
		return false
	}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
