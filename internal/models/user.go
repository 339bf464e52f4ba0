package models

// User is a household member as the backend returns it.
type User struct {
	ID          string `json:"id"`
	AccountID   string `json:"accountId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
}

func (u User) SearchID() string { return u.ID }

func (u User) SearchFields() (string, string) { return u.DisplayName, u.Email }
