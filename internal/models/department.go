package models

// Department identifies a crew department
type Department string

const (
	DepartmentSound      Department = "sound"
	DepartmentLights     Department = "lights"
	DepartmentVideo      Department = "video"
	DepartmentProduction Department = "production"
	DepartmentLogistics  Department = "logistics"
)

// roleAccessors maps each staffable department to the assignment field
// holding that department's role code.
var roleAccessors = map[Department]func(*Assignment) string{
	DepartmentSound:      func(a *Assignment) string { return a.SoundRole },
	DepartmentLights:     func(a *Assignment) string { return a.LightsRole },
	DepartmentVideo:      func(a *Assignment) string { return a.VideoRole },
	DepartmentProduction: func(a *Assignment) string { return a.ProductionRole },
}

// Staffable reports whether campaigns can be run for the department
func (d Department) Staffable() bool {
	_, ok := roleAccessors[d]
	return ok
}

// RoleOf returns the assignment's role code for the department, or "" if
// the department is not staffable or the assignment has no role there
func (d Department) RoleOf(a *Assignment) string {
	accessor, ok := roleAccessors[d]
	if !ok || a == nil {
		return ""
	}
	return accessor(a)
}
