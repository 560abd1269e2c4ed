package models

import "strings"

// ScheduleRow is one scheduled slot returned by the routine provider.
type ScheduleRow struct {
	SubjectName string `json:"subject_name"`
	StartTime   string `json:"start_time,omitempty"`
	Room        string `json:"room,omitempty"`
	Faculty     string `json:"faculty,omitempty"`
}

// RoutineClass is one master-sheet row mapping a class to its routine
// sheet and version counter. The version drives cache invalidation.
type RoutineClass struct {
	CollegeID      string `json:"college_id"`
	ClassLabel     string `json:"class_label"`
	ClassID        string `json:"class_id"`
	RoutineSheetID string `json:"routine_sheet_id"`
	Version        string `json:"version"`
}

// CachedRoutine is the cached schedule payload for one class.
type CachedRoutine struct {
	Version string                   `json:"version"`
	Days    map[string][]ScheduleRow `json:"days"`
}

// NormalizeSubject canonicalises a subject name for comparison only;
// stored entries keep the name exactly as entered.
func NormalizeSubject(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SubjectsEqual compares two subject names after normalization.
func SubjectsEqual(a, b string) bool {
	return NormalizeSubject(a) == NormalizeSubject(b)
}
