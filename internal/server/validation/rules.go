// Package validation checks account input against a declarative rule table.
// Fields are always checked in table order and each field reports at most
// its first failing rule.
package validation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	FieldUsername = "username"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldBio      = "bio"
	FieldAvatar   = "avatar"
)

// Mode selects create or partial-update semantics.
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// Input holds the submitted fields. A nil pointer means the field was not
// sent at all.
type Input struct {
	Username *string
	Email    *string
	Password *string
	Bio      *string
	Avatar   *Upload
}

// NormalizeEmail trims and lower-cases an address so that uniqueness and
// login lookups do not depend on letter case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Normalize rewrites fields that are stored in canonical form.
func (in *Input) Normalize() {
	if in.Email != nil {
		e := NormalizeEmail(*in.Email)
		in.Email = &e
	}
}

// Value is one field of Input as seen by a check.
type Value struct {
	Present bool
	Text    string
	File    *Upload
}

func (v Value) blank() bool {
	if v.File != nil {
		return false
	}
	return !v.Present || strings.TrimSpace(v.Text) == ""
}

func (in *Input) value(field string) Value {
	text := func(p *string) Value {
		if p == nil {
			return Value{}
		}
		return Value{Present: true, Text: *p}
	}
	switch field {
	case FieldUsername:
		return text(in.Username)
	case FieldEmail:
		return text(in.Email)
	case FieldPassword:
		return text(in.Password)
	case FieldBio:
		return text(in.Bio)
	case FieldAvatar:
		if in.Avatar == nil {
			return Value{}
		}
		return Value{Present: true, File: in.Avatar}
	}
	return Value{}
}

// Check returns a message when the value breaks the rule. A non-nil error
// aborts validation.
type Check func(ctx context.Context, v *Validator, field string, val Value) (string, error)

// Rule describes one field.
type Rule struct {
	Field string
	// Required fields must be present and non-blank on create. On update
	// they may be omitted but not sent blank.
	Required bool
	// Nullable fields accept a blank value and skip their checks for it.
	Nullable bool
	// KeepOnBlank lets an update send the field blank to leave it unchanged.
	KeepOnBlank bool
	Checks   []Check
}

// Rules governs registration and profile updates.
var Rules = []Rule{
	{Field: FieldUsername, Required: true, Checks: []Check{MaxChars(255), Unique}},
	{Field: FieldEmail, Required: true, Checks: []Check{Email, MaxChars(255), Unique}},
	{Field: FieldPassword, Required: true, KeepOnBlank: true, Checks: []Check{MinChars(4), MaxBytes(72)}},
	{Field: FieldBio, Nullable: true},
	{Field: FieldAvatar, Nullable: true, Checks: []Check{Image, MaxFileSize}},
}

// LoginRules governs the login form.
var LoginRules = []Rule{
	{Field: FieldEmail, Required: true, Checks: []Check{Email}},
	{Field: FieldPassword, Required: true},
}

// UniqueFunc reports whether value of field is already held by another user.
type UniqueFunc func(ctx context.Context, field, value string) (bool, error)

type Validator struct {
	MaxAvatarBytes int64
	Unique         UniqueFunc
}

// Validate applies rules to in. It returns *Error when any field fails,
// nil when all pass, or the first infrastructure error raised by a check.
func (v *Validator) Validate(ctx context.Context, rules []Rule, mode Mode, in *Input) error {
	verr := &Error{}
	for _, r := range rules {
		val := in.value(r.Field)

		if val.blank() {
			switch {
			case mode == ModeCreate && r.Required:
				verr.add(r.Field, "The "+r.Field+" field is required.")
			case mode == ModeUpdate && r.Required && !r.KeepOnBlank && val.Present:
				verr.add(r.Field, "The "+r.Field+" field must not be empty.")
			}
			continue
		}

		for _, check := range r.Checks {
			msg, err := check(ctx, v, r.Field, val)
			if err != nil {
				return err
			}
			if msg != "" {
				verr.add(r.Field, msg)
				break
			}
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func MaxChars(n int) Check {
	return func(_ context.Context, _ *Validator, field string, val Value) (string, error) {
		if utf8.RuneCountInString(val.Text) > n {
			return fmt.Sprintf("The %s field must not be greater than %d characters.", field, n), nil
		}
		return "", nil
	}
}

func MinChars(n int) Check {
	return func(_ context.Context, _ *Validator, field string, val Value) (string, error) {
		if utf8.RuneCountInString(val.Text) < n {
			return fmt.Sprintf("The %s field must be at least %d characters.", field, n), nil
		}
		return "", nil
	}
}

func MaxBytes(n int) Check {
	return func(_ context.Context, _ *Validator, field string, val Value) (string, error) {
		if len(val.Text) > n {
			return fmt.Sprintf("The %s field must not be greater than %d bytes.", field, n), nil
		}
		return "", nil
	}
}

// Email accepts a bare address (no display name) with a dotless or dotted domain.
func Email(_ context.Context, _ *Validator, field string, val Value) (string, error) {
	msg := "The " + field + " field must be a valid email address."
	addr, err := mail.ParseAddress(val.Text)
	if err != nil || addr.Name != "" || addr.Address != val.Text {
		return msg, nil
	}
	at := strings.LastIndexByte(val.Text, '@')
	if at <= 0 || at == len(val.Text)-1 {
		return msg, nil
	}
	return "", nil
}

func Unique(ctx context.Context, v *Validator, field string, val Value) (string, error) {
	if v.Unique == nil {
		return "", nil
	}
	taken, err := v.Unique(ctx, field, val.Text)
	if err != nil {
		return "", fmt.Errorf("unique check %s: %w", field, err)
	}
	if taken {
		return UniqueMessage(field), nil
	}
	return "", nil
}

// imageExts maps decoder names to the extension blobs are stored under.
var imageExts = map[string]string{
	"jpeg": "jpg",
	"png":  "png",
	"gif":  "gif",
}

// ImageExt returns the storage extension of data when it is an accepted
// image type.
func ImageExt(data []byte) (string, bool) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	ext, ok := imageExts[format]
	return ext, ok
}

func Image(_ context.Context, _ *Validator, field string, val Value) (string, error) {
	if _, ok := ImageExt(val.File.Data); !ok {
		return "The " + field + " field must be a file of type: jpg, png, jpeg, gif.", nil
	}
	return "", nil
}

func MaxFileSize(_ context.Context, v *Validator, field string, val Value) (string, error) {
	if v.MaxAvatarBytes > 0 && int64(len(val.File.Data)) > v.MaxAvatarBytes {
		return fmt.Sprintf("The %s field must not be greater than %d kilobytes.", field, v.MaxAvatarBytes/1024), nil
	}
	return "", nil
}
