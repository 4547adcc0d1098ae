package service

import (
	"crew-staffing/internal/models"
	"fmt"
)

// Authorize checks that the caller may manage campaigns of a department.
// Admin and logistics roles are unscoped. Management is scoped to its own
// department, except that logistics managers also manage production.
func Authorize(caller models.Caller, department models.Department) error {
	switch caller.Role {
	case models.RoleAdmin, models.RoleLogistics:
		return nil
	case models.RoleManagement:
		if caller.Department == department {
			return nil
		}
		if caller.Department == models.DepartmentLogistics && department == models.DepartmentProduction {
			return nil
		}
	}
	return fmt.Errorf("%w: %s user %q (%s) may not manage %s campaigns",
		ErrForbidden, caller.Role, caller.UserID, caller.Department, department)
}
