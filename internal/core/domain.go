package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// UncategorizedName is displayed for expenses whose category no longer exists.
const UncategorizedName = "Uncategorized"

// Placeholder values used when the local user is seeded on first launch.
const (
	PlaceholderFirstName = "Name"
	PlaceholderLastName  = "Surname"
)

type (
	Money struct {
		Cents int64 `validate:"gte=0"`
	}

	// User is the single local profile. Avatar is optional.
	User struct {
		ID        string `validate:"required"`
		FirstName string `validate:"required"`
		LastName  string `validate:"required"`
		Avatar    []byte
		Income    Money
	}

	// RemoteUser mirrors User in the cloud. The avatar is stored either inline
	// (Avatar) or as a detached asset (AvatarAsset) that must be fetched.
	RemoteUser struct {
		ID          string `validate:"required"`
		FirstName   string `validate:"required"`
		LastName    string `validate:"required"`
		Avatar      []byte
		AvatarAsset string
		Income      Money
	}

	Category struct {
		ID        string `validate:"required"`
		Name      string `validate:"required,max=64"`
		Icon      string `validate:"required"`
		Color     string `validate:"required,hexcolor_argb"`
		IsDefault bool
	}

	RemoteCategory struct {
		ID        string `validate:"required"`
		Name      string `validate:"required,max=64"`
		Icon      string `validate:"required"`
		Color     string `validate:"required,hexcolor_argb"`
		IsDefault bool
	}

	Expense struct {
		ID         string    `validate:"required"`
		Amount     Money
		At         time.Time `validate:"required"`
		Title      string    `validate:"max=200"`
		CategoryID string    `validate:"required"`
	}
)

var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidField         = errors.New("invalid field")
	ErrInvalidAmount        = errors.New("invalid amount")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("hexcolor_argb", func(fl validator.FieldLevel) bool {
		return IsHexColor(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// IsHexColor reports whether s is a hex RGB or ARGB color, with or without a leading '#'.
func IsHexColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 8 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// validateStruct maps validator errors onto ErrMissingRequiredField or ErrInvalidField.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	sentinel := ErrInvalidField
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			sentinel = ErrMissingRequiredField
		}
		fields = append(fields, fe.Namespace())
	}
	return fmt.Errorf("%w: %s", sentinel, strings.Join(fields, ", "))
}

// NewID returns a fresh opaque identity.
func NewID() string {
	return uuid.NewString()
}

func NewUser(id, firstName, lastName string, avatar []byte, income Money) (User, error) {
	u := User{
		ID:        strings.TrimSpace(id),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Avatar:    avatar,
		Income:    income,
	}
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	return u, nil
}

// PlaceholderUser is the profile created on first launch.
func PlaceholderUser() User {
	return User{ID: NewID(), FirstName: PlaceholderFirstName, LastName: PlaceholderLastName}
}

func (u User) Validate() error {
	return validateStruct(u)
}

// Syncable reports whether the user carries every field required to create a
// remote mirror: id, names and avatar bytes.
func (u User) Syncable() bool {
	return u.ID != "" && u.FirstName != "" && u.LastName != "" && len(u.Avatar) > 0
}

// Remote converts the local user into its inline-avatar remote mirror.
func (u User) Remote() RemoteUser {
	return RemoteUser{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    bytes.Clone(u.Avatar),
		Income:    u.Income,
	}
}

func (u RemoteUser) Validate() error {
	return validateStruct(u)
}

// HasDetachedAvatar reports whether the avatar must be fetched before use.
func (u RemoteUser) HasDetachedAvatar() bool {
	return u.AvatarAsset != "" && len(u.Avatar) == 0
}

func NewCategory(id, name, icon, color string, isDefault bool) (Category, error) {
	c := Category{
		ID:        strings.TrimSpace(id),
		Name:      strings.TrimSpace(name),
		Icon:      strings.TrimSpace(icon),
		Color:     strings.TrimSpace(color),
		IsDefault: isDefault,
	}
	if err := c.Validate(); err != nil {
		return Category{}, err
	}
	return c, nil
}

func (c Category) Validate() error {
	return validateStruct(c)
}

func (c Category) Remote() RemoteCategory {
	return RemoteCategory(c)
}

// SameFields compares the user-editable fields (name, color, icon).
func (c Category) SameFields(r RemoteCategory) bool {
	return c.Name == r.Name && c.Color == r.Color && c.Icon == r.Icon
}

func (r RemoteCategory) Validate() error {
	return validateStruct(r)
}

func (r RemoteCategory) Local() Category {
	return Category(r)
}

// Equal compares every mirrored field, including the default flag.
func (r RemoteCategory) Equal(o RemoteCategory) bool {
	return r == o
}

func NewExpense(id string, amount Money, at time.Time, title, categoryID string) (Expense, error) {
	if id == "" {
		id = NewID()
	}
	e := Expense{
		ID:         id,
		Amount:     amount,
		At:         at,
		Title:      strings.TrimSpace(title),
		CategoryID: strings.TrimSpace(categoryID),
	}
	if err := e.Validate(); err != nil {
		return Expense{}, err
	}
	return e, nil
}

func (e Expense) Validate() error {
	if e.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return validateStruct(e)
}
