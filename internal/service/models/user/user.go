package user

import "github.com/google/uuid"

// User carries the customer contact info the payment gateway needs when an
// intent is created. The rest of the user profile is out of scope here.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Phone string    `json:"phone,omitempty"`
}
