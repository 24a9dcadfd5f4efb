package models

// UserProfile is keyed by the authenticated uid and only readable by its owner.
type UserProfile struct {
	UID         string `json:"uid"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	CompanyName string `json:"companyName,omitempty"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// ProfileInput is the body of POST /api/users/profile.
type ProfileInput struct {
	FirstName   string  `json:"firstName" validate:"required"`
	LastName    string  `json:"lastName" validate:"required"`
	CompanyName *string `json:"companyName"`
	PhoneNumber string  `json:"phoneNumber" validate:"required"`
	Email       string  `json:"email" validate:"required"`
}

// ProfilePatch is the body of PUT /api/users/profile. Empty names and phone
// numbers keep the stored value; a present companyName always replaces it.
type ProfilePatch struct {
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	CompanyName *string `json:"companyName"`
	PhoneNumber string  `json:"phoneNumber"`
}
