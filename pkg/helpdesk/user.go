package helpdesk

import (
	"bytes"
	"encoding/json"
)

// User is a populated user reference. The backend sometimes sends a bare id
// string where a user object is expected; UnmarshalJSON accepts both.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"nama,omitempty"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

type userJSON User

func (u *User) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*u = User{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*u = User{ID: id}
		return nil
	}
	var raw userJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*u = User(raw)
	return nil
}

// DisplayName falls back to the id when the reference was not populated.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.ID != "" {
		return u.ID
	}
	return "Unknown"
}
