package services

import (
	"sort"
	"strings"

	"collegehub-backend/internal/models"
)

const (
	CapViewLibrary    = "view:library"
	CapUploadLibrary  = "upload:library"
	CapViewCurriculum = "view:curriculum"
	CapCrudCurriculum = "crud:curriculum"
	CapViewClubs      = "view:clubs"
	CapJoinClubs      = "join:clubs"
	CapViewEvents     = "view:events"
	CapCreateEvents   = "create:events"
	CapMarkAttendance = "mark:attendance"
	CapViewAttendance = "view:attendance"
	CapCrudClubs      = "crud:clubs"
	CapAddStudents    = "add:students"
	CapViewStudents   = "view:students"
	CapViewMetrics    = "view:metrics"
)

var rolePermissions = map[string]map[string]bool{
	models.RoleStudent: set(
		CapViewLibrary, CapUploadLibrary, CapViewCurriculum,
		CapViewClubs, CapJoinClubs, CapViewEvents, CapCreateEvents,
		CapMarkAttendance, CapViewAttendance,
	),
	models.RoleTeacher: set(
		CapViewLibrary, CapUploadLibrary, CapViewCurriculum, CapCrudCurriculum,
		CapViewClubs, CapViewEvents, CapCreateEvents, CapViewStudents,
	),
	models.RoleCoordinator: set(
		CapViewLibrary, CapUploadLibrary, CapViewCurriculum, CapCrudCurriculum,
		CapViewClubs, CapJoinClubs, CapViewEvents, CapCreateEvents,
		CapCrudClubs, CapAddStudents, CapViewStudents, CapViewMetrics,
	),
}

func set(items ...string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}

// Can is a pure lookup in the static role table.
func Can(role, capability string) bool {
	return rolePermissions[strings.ToLower(role)][capability]
}

func Capabilities(role string) []string {
	caps := rolePermissions[strings.ToLower(role)]
	items := make([]string, 0, len(caps))
	for c := range caps {
		items = append(items, c)
	}
	sort.Strings(items)
	return items
}

func ValidRole(role string) bool {
	_, ok := rolePermissions[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// NormalizeRole lowercases role and falls back to student when empty.
func NormalizeRole(role string) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return models.RoleStudent, nil
	}
	if !ValidRole(role) {
		return "", ErrValidation("Role must be one of student, teacher, coordinator")
	}
	return role, nil
}
