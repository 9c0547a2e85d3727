package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin        UserRole = "ADMIN"
	RoleRegistrar    UserRole = "REGISTRAR"
	RoleProgramChair UserRole = "PROGRAM_CHAIR"
	RoleFaculty      UserRole = "FACULTY"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserInfo describes the authenticated caller and what the gradebook lets them do.
type UserInfo struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	FullName       string   `json:"full_name"`
	Role           UserRole `json:"role"`
	CanEditTree    bool     `json:"can_edit_tree"`
	CanWriteGrades bool     `json:"can_write_grades"`
}
