package repository

import (
	"database/sql"

	"github.com/unclebandit/newsletter-engine/internal/model"
)

// RecipientRepositoryInterface is the contact-list collaborator: the
// engine only ever reads from it.
type RecipientRepositoryInterface interface {
	Resolve(contactListID int) ([]model.Recipient, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

// Resolve snapshots the active recipients of a contact list as of call
// time. Recipients added afterwards are not retroactively included in an
// in-flight run.
func (r *RecipientRepository) Resolve(contactListID int) ([]model.Recipient, error) {
	query := `
        SELECT id, contact_list_id, email, first_name, last_name, active
        FROM recipients
        WHERE contact_list_id = $1 AND active = TRUE
        ORDER BY id
    `
	rows, err := r.DB.Query(query, contactListID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []model.Recipient{}
	for rows.Next() {
		var rec model.Recipient
		if err := rows.Scan(&rec.ID, &rec.ContactListID, &rec.Email, &rec.FirstName, &rec.LastName, &rec.Active); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
