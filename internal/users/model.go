package users

import (
	"github.com/nikmy/graphtx/pkg/errors"
)

var ErrInvalidUser = errors.Error("invalid user")

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func (u User) validate() error {
	if u.Name == "" {
		return errors.Wrap(ErrInvalidUser, "empty name")
	}
	return nil
}

func (u User) props() map[string]any {
	return map[string]any{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
	}
}

func fromRecord(rec map[string]any) (User, error) {
	var (
		u   User
		err error
	)
	u.ID, err = field(rec, "id")
	if err != nil {
		return User{}, err
	}
	u.Name, err = field(rec, "name")
	if err != nil {
		return User{}, err
	}
	u.Email, err = field(rec, "email")
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func field(rec map[string]any, key string) (string, error) {
	switch v := rec[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", errors.Errorf("user field %q has type %T", key, v)
	}
}
