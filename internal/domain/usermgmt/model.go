package usermgmt

import (
	"strings"
	"time"

	"github.com/carecase/console/internal/domain/casework"
)

// User is a console account. The remote API stores activation as a flag;
// the listing presents it as the Active or Inactive status.
type User struct {
	ID         casework.ID        `json:"id"`
	Username   string             `json:"username"`
	Email      string             `json:"email"`
	FirstName  string             `json:"first_name"`
	Surname    string             `json:"last_name"`
	Role       string             `json:"role"`
	IsActive   bool               `json:"is_active"`
	DateJoined casework.Timestamp `json:"date_joined"`
	LastLogin  casework.Timestamp `json:"last_login"`
}

func (u User) RecordID() string       { return string(u.ID) }
func (u User) PatientID() string      { return u.Username }
func (u User) LastName() string       { return u.Surname }
func (u User) SubmittedAt() time.Time { return u.DateJoined.Time }

func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.Surname)
	if name == "" {
		return u.Username
	}
	return name
}

func (u User) RecordStatus() string {
	if u.IsActive {
		return StatusActive
	}
	return StatusInactive
}

func (u *User) SetRecordStatus(s string) { u.IsActive = s == StatusActive }
