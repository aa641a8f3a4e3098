package cloud

import (
	"bytes"
	"fmt"

	"moneta/internal/core"
)

func partial(rt RecordType, id string, err error) error {
	return NewError("decode", KindPartialRecord, rt, id, err)
}

func stringField(rec Record, key string, required bool) (string, error) {
	v, ok := rec.Fields[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing field %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", key, v)
	}
	if required && s == "" {
		return "", fmt.Errorf("missing field %q", key)
	}
	return s, nil
}

func bytesField(rec Record, key string) ([]byte, error) {
	v, ok := rec.Fields[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("field %q: expected bytes, got %T", key, v)
	}
	return bytes.Clone(b), nil
}

func intField(rec Record, key string) (int64, error) {
	switch v := rec.Fields[key].(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("field %q: expected integer, got %T", key, v)
	}
}

func boolField(rec Record, key string) (bool, error) {
	switch v := rec.Fields[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("field %q: expected bool, got %T", key, v)
	}
}

// DecodeUser translates a User record. Any missing or mistyped field yields an
// ErrPartialRecord error.
func DecodeUser(rec Record) (core.RemoteUser, error) {
	if rec.ID == "" {
		return core.RemoteUser{}, partial(RecordUser, "", fmt.Errorf("missing id"))
	}
	var (
		u   = core.RemoteUser{ID: rec.ID}
		err error
	)
	if u.FirstName, err = stringField(rec, FieldFirstName, true); err != nil {
		return core.RemoteUser{}, partial(RecordUser, rec.ID, err)
	}
	if u.LastName, err = stringField(rec, FieldLastName, true); err != nil {
		return core.RemoteUser{}, partial(RecordUser, rec.ID, err)
	}
	if u.Avatar, err = bytesField(rec, FieldAvatar); err != nil {
		return core.RemoteUser{}, partial(RecordUser, rec.ID, err)
	}
	if u.AvatarAsset, err = stringField(rec, FieldAvatarAsset, false); err != nil {
		return core.RemoteUser{}, partial(RecordUser, rec.ID, err)
	}
	if u.Income.Cents, err = intField(rec, FieldIncome); err != nil {
		return core.RemoteUser{}, partial(RecordUser, rec.ID, err)
	}
	if err := u.Validate(); err != nil {
		return core.RemoteUser{}, partial(RecordUser, rec.ID, err)
	}
	return u, nil
}

// DecodeCategory translates a Category record, rejecting invalid colors.
func DecodeCategory(rec Record) (core.RemoteCategory, error) {
	if rec.ID == "" {
		return core.RemoteCategory{}, partial(RecordCategory, "", fmt.Errorf("missing id"))
	}
	var (
		c   = core.RemoteCategory{ID: rec.ID}
		err error
	)
	if c.Name, err = stringField(rec, FieldName, true); err != nil {
		return core.RemoteCategory{}, partial(RecordCategory, rec.ID, err)
	}
	if c.Icon, err = stringField(rec, FieldIcon, true); err != nil {
		return core.RemoteCategory{}, partial(RecordCategory, rec.ID, err)
	}
	if c.Color, err = stringField(rec, FieldColor, true); err != nil {
		return core.RemoteCategory{}, partial(RecordCategory, rec.ID, err)
	}
	if c.IsDefault, err = boolField(rec, FieldIsDefault); err != nil {
		return core.RemoteCategory{}, partial(RecordCategory, rec.ID, err)
	}
	if err := c.Validate(); err != nil {
		return core.RemoteCategory{}, partial(RecordCategory, rec.ID, err)
	}
	return c, nil
}

// UserFields returns the writable fields of u. The avatar is always written
// inline; a detached asset reference is cleared when inline bytes are present.
func UserFields(u core.RemoteUser) map[string]any {
	f := map[string]any{
		FieldFirstName: u.FirstName,
		FieldLastName:  u.LastName,
		FieldIncome:    u.Income.Cents,
	}
	if len(u.Avatar) > 0 {
		f[FieldAvatar] = bytes.Clone(u.Avatar)
		f[FieldAvatarAsset] = ""
	} else if u.AvatarAsset != "" {
		f[FieldAvatarAsset] = u.AvatarAsset
	}
	return f
}

func EncodeUser(u core.RemoteUser) Record {
	return Record{ID: u.ID, Fields: UserFields(u)}
}

// CategoryFields returns the user-editable fields of c.
func CategoryFields(c core.RemoteCategory) map[string]any {
	return map[string]any{
		FieldName:  c.Name,
		FieldIcon:  c.Icon,
		FieldColor: c.Color,
	}
}

func EncodeCategory(c core.RemoteCategory) Record {
	f := CategoryFields(c)
	f[FieldIsDefault] = c.IsDefault
	return Record{ID: c.ID, Fields: f}
}
