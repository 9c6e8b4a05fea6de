package models

// Identity is the caller on whose behalf an operation runs. It is passed
// explicitly into every service call; there is no ambient current user.
type Identity struct {
	UserID string
}
