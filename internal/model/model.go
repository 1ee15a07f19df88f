package model

import (
	"strings"
	"time"
)

// Collection names in the document store.
const (
	CollStudents        = "students"
	CollSessions        = "sessions"
	CollAttendance      = "attendance"
	CollSessionStudents = "sessionStudents"
	CollUsers           = "users"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionClosed SessionStatus = "closed"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionPaused, SessionClosed:
		return true
	}
	return false
}

// AttendanceStatus is the observation recorded for one student.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
)

// Valid reports whether s is a known attendance status.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	}
	return false
}

// Marking methods.
const (
	MethodManual          = "manual"
	MethodFaceRecognition = "face_recognition"
)

// Known roles. The identity store does not enforce these.
const (
	RoleTeacher     = "teacher"
	RoleAdmin       = "admin"
	RoleCoordinator = "coordinator"
	RoleStudent     = "student"
)

// DefaultMaxStudents is applied when a session is created without a cap.
const DefaultMaxStudents = 50

// Student is a registered student.
type Student struct {
	ID            string    `json:"id,omitempty"`
	FirstName     string    `json:"firstName" validate:"required"`
	LastName      string    `json:"lastName" validate:"required"`
	FullName      string    `json:"fullName"`
	RollNumber    string    `json:"rollNumber" validate:"required"`
	Class         string    `json:"class,omitempty"`
	Section       string    `json:"section,omitempty"`
	Email         string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	GuardianName  string    `json:"guardianName,omitempty"`
	GuardianPhone string    `json:"guardianPhone,omitempty"`
	PhotoURL      string    `json:"photoURL,omitempty" validate:"omitempty,url"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// JoinName builds the display name from the name parts.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// Session is a bounded attendance-taking event with running counters.
type Session struct {
	ID            string        `json:"id,omitempty"`
	Name          string        `json:"name" validate:"required"`
	Course        string        `json:"course" validate:"required"`
	Instructor    string        `json:"instructor,omitempty"`
	Description   string        `json:"description,omitempty"`
	MaxStudents   int           `json:"maxStudents" validate:"gte=0"`
	Status        SessionStatus `json:"status"`
	TotalStudents int           `json:"totalStudents"`
	PresentCount  int           `json:"presentCount"`
	AbsentCount   int           `json:"absentCount"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	ClosedAt      *time.Time    `json:"closedAt,omitempty"`
}

// AttendanceRecord is one attendance observation. Records are only appended.
type AttendanceRecord struct {
	ID         string           `json:"id,omitempty"`
	SessionID  string           `json:"sessionId" validate:"required"`
	StudentID  string           `json:"studentId" validate:"required"`
	Status     AttendanceStatus `json:"status" validate:"required"`
	Timestamp  time.Time        `json:"timestamp"`
	PhotoHash  string           `json:"photoHash,omitempty"`
	LedgerTxID string           `json:"ledgerTxId,omitempty"`
	Method     string           `json:"method,omitempty"`
}

// SessionStudent is roster membership with denormalized student fields.
type SessionStudent struct {
	ID         string    `json:"id,omitempty"`
	SessionID  string    `json:"sessionId"`
	StudentID  string    `json:"studentId"`
	FullName   string    `json:"fullName,omitempty"`
	RollNumber string    `json:"rollNumber,omitempty"`
	Class      string    `json:"class,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
}

// User is an account in the users collection.
type User struct {
	ID            string    `json:"id,omitempty"`
	Email         string    `json:"email" validate:"required,email"`
	DisplayName   string    `json:"displayName"`
	Role          string    `json:"role" validate:"required"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	PasswordHash  string    `json:"passwordHash,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Profile is the client-facing view of a user.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	Role          string `json:"role"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// Profile projects u without credentials.
func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Role:          u.Role,
		WalletAddress: u.WalletAddress,
	}
}
