package domain

import "time"

// User is anyone who submits or approves tickets.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	SlackID   *string
	CreatedAt time.Time
}

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID   string
	Role Role
}

// Actor returns the workflow identity of the user.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
