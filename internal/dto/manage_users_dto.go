package dto

// ManageUserCreateRequest is the body accepted by the manage-users function on POST.
type ManageUserCreateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"fullName" validate:"required,max=255"`
}

// ManageUserDeleteRequest is the body accepted by the manage-users function on DELETE.
type ManageUserDeleteRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// ManageUsersListResponse wraps the account listing.
type ManageUsersListResponse struct {
	Users []AccountResponse `json:"users"`
}

// ManageUserResponse wraps a created account.
type ManageUserResponse struct {
	User AccountResponse `json:"user"`
}

// ManageUsersMessage is returned on successful deletion.
type ManageUsersMessage struct {
	Message string `json:"message"`
}

// ManageUsersError is returned on any failure.
type ManageUsersError struct {
	Error string `json:"error"`
}
