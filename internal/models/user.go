package models

type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleSeller || r == RoleAdmin
}

type User struct {
	ID            int64  `json:"user_id"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	PasswordHash  string `json:"-"`
	City          string `json:"city,omitempty"`
	HomeAddress   string `json:"home_address,omitempty"`
	PickupStoreID int64  `json:"pickup_store_id,omitempty"`
	Role          Role   `json:"role"`
}

// DraftUser is the payload collected at registration time, before the
// durable user row exists. The password is already hashed when the draft
// goes to the cache.
type DraftUser struct {
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	PasswordHash  string `json:"password_hash"`
	City          string `json:"city,omitempty"`
	HomeAddress   string `json:"home_address,omitempty"`
	PickupStoreID int64  `json:"pickup_store_id,omitempty"`
}
