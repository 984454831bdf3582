package dto

// UpdateProfileRequest updates the caller's own profile.
type UpdateProfileRequest struct {
	FullName      string   `json:"full_name" validate:"required,max=120"`
	Bio           string   `json:"bio" validate:"max=2000"`
	Skills        []string `json:"skills" validate:"max=50,dive,max=60"`
	ContactNumber string   `json:"contact_number" validate:"omitempty,e164"`
}
