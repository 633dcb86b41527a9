package auth

// LoginRequest is the identity a client logs in as.
type LoginRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SuccessResponse is returned by login and logout.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of a rejected login.
type ErrorResponse struct {
	Message string `json:"message"`
}
