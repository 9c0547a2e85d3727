package models

import "time"

// EnrollmentStatus represents where an enrollment sits in the approval flow.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled          EnrollmentStatus = "ENROLLED"
	EnrollmentStatusChairApproved     EnrollmentStatus = "PROGRAM_CHAIR_APPROVED"
	EnrollmentStatusRegistrarApproved EnrollmentStatus = "REGISTRAR_APPROVED"
	EnrollmentStatusDropRequested     EnrollmentStatus = "DROP_REQUESTED"
	EnrollmentStatusDropped           EnrollmentStatus = "REGISTRAR_DROPPED_APPROVED"
)

// Gradable reports whether the enrollment participates in a section's gradebook.
func (s EnrollmentStatus) Gradable() bool {
	return s == EnrollmentStatusRegistrarApproved || s == EnrollmentStatusDropRequested
}

// Enrollment captures a student's registration to a section.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	SectionID   string           `db:"section_id" json:"section_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	StudentName string           `db:"student_name" json:"student_name"`
	StudentNo   string           `db:"student_no" json:"student_no"`
}
