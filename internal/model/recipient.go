// internal/model/recipient.go
package model

type Recipient struct {
	ID            int    `db:"id" json:"id"`
	ContactListID int    `db:"contact_list_id" json:"contact_list_id"`
	Email         string `db:"email" json:"email"`
	FirstName     string `db:"first_name" json:"first_name"`
	LastName      string `db:"last_name" json:"last_name"`
	Active        bool   `db:"active" json:"active"`
}
