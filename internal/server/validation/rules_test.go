package validation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sp(s string) *string { return &s }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil))
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	require.NoError(t, gif.Encode(&buf, pal, nil))
	return buf.Bytes()
}

func validInput() *Input {
	return &Input{Username: sp("alice"), Email: sp("alice@example.com"), Password: sp("pa55"), Bio: sp("hi")}
}

func asValidation(t *testing.T, err error) *Error {
	t.Helper()
	var verr *Error
	require.True(t, errors.As(err, &verr), "expected *validation.Error, got %v", err)
	return verr
}

func TestValidate_CreateValid(t *testing.T) {
	v := &Validator{MaxAvatarBytes: 2048 * 1024}
	in := validInput()
	in.Avatar = &Upload{Filename: "me.png", Data: pngBytes(t)}

	assert.NoError(t, v.Validate(context.Background(), Rules, ModeCreate, in))
}

func TestValidate_CreateMissingFieldsInFixedOrder(t *testing.T) {
	v := &Validator{}

	err := v.Validate(context.Background(), Rules, ModeCreate, &Input{Password: sp("")})
	verr := asValidation(t, err)

	want := []FieldError{
		{Field: "username", Message: "The username field is required."},
		{Field: "email", Message: "The email field is required."},
		{Field: "password", Message: "The password field is required."},
	}
	if diff := cmp.Diff(want, verr.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_FormatRules(t *testing.T) {
	v := &Validator{MaxAvatarBytes: 10}
	in := &Input{
		Username: sp(strings.Repeat("a", 256)),
		Email:    sp("not-an-email"),
		Password: sp("abc"),
		Avatar:   &Upload{Filename: "x.png", Data: []byte("definitely not an image")},
	}

	verr := asValidation(t, v.Validate(context.Background(), Rules, ModeCreate, in))

	assert.Equal(t, []string{"username", "email", "password", "avatar"}, fieldNames(verr))
	assert.Contains(t, verr.First("username"), "255 characters")
	assert.Contains(t, verr.First("email"), "valid email")
	assert.Contains(t, verr.First("password"), "at least 4")
	assert.Contains(t, verr.First("avatar"), "jpg, png, jpeg, gif")
}

func TestValidate_UsernameLengthCountsCharacters(t *testing.T) {
	v := &Validator{}
	in := validInput()
	in.Username = sp(strings.Repeat("é", 255))

	assert.NoError(t, v.Validate(context.Background(), Rules, ModeCreate, in))
}

func TestValidate_PasswordTooLong(t *testing.T) {
	v := &Validator{}
	in := validInput()
	in.Password = sp(strings.Repeat("x", 73))

	verr := asValidation(t, v.Validate(context.Background(), Rules, ModeCreate, in))
	assert.Contains(t, verr.First("password"), "72 bytes")
}

func TestValidate_AvatarTypesAndSize(t *testing.T) {
	ctx := context.Background()
	v := &Validator{MaxAvatarBytes: 2048 * 1024}

	for name, data := range map[string][]byte{"png": pngBytes(t), "jpeg": jpegBytes(t), "gif": gifBytes(t)} {
		in := validInput()
		in.Avatar = &Upload{Data: data}
		assert.NoError(t, v.Validate(ctx, Rules, ModeCreate, in), name)
	}

	small := &Validator{MaxAvatarBytes: 16}
	in := validInput()
	in.Avatar = &Upload{Data: pngBytes(t)}
	verr := asValidation(t, small.Validate(ctx, Rules, ModeCreate, in))
	assert.Contains(t, verr.First("avatar"), "kilobytes")

	in.Avatar = &Upload{Filename: "empty.png"}
	verr = asValidation(t, v.Validate(ctx, Rules, ModeCreate, in))
	assert.True(t, verr.Has("avatar"))
}

func TestValidate_Unique(t *testing.T) {
	var calls []string
	v := &Validator{Unique: func(ctx context.Context, field, value string) (bool, error) {
		calls = append(calls, field+"="+value)
		return field == "email", nil
	}}

	verr := asValidation(t, v.Validate(context.Background(), Rules, ModeCreate, validInput()))

	assert.Equal(t, []string{"username=alice", "email=alice@example.com"}, calls)
	if diff := cmp.Diff([]FieldError{{Field: "email", Message: "The email has already been taken."}}, verr.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_UniqueSkippedWhenFormatFails(t *testing.T) {
	called := false
	v := &Validator{Unique: func(ctx context.Context, field, value string) (bool, error) {
		called = true
		return false, nil
	}}
	in := &Input{Email: sp("bad")}

	_ = v.Validate(context.Background(), Rules, ModeUpdate, in)
	assert.False(t, called)
}

func TestValidate_UniqueErrorAborts(t *testing.T) {
	boom := errors.New("db down")
	v := &Validator{Unique: func(ctx context.Context, field, value string) (bool, error) {
		return false, boom
	}}

	err := v.Validate(context.Background(), Rules, ModeCreate, validInput())
	assert.ErrorIs(t, err, boom)
	var verr *Error
	assert.False(t, errors.As(err, &verr))
}

func TestValidate_UpdateSubset(t *testing.T) {
	v := &Validator{}
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, Rules, ModeUpdate, &Input{}))
	assert.NoError(t, v.Validate(ctx, Rules, ModeUpdate, &Input{Bio: sp("")}))
	assert.NoError(t, v.Validate(ctx, Rules, ModeUpdate, &Input{Password: sp("")}), "blank password keeps the old one")

	verr := asValidation(t, v.Validate(ctx, Rules, ModeUpdate, &Input{Username: sp(""), Password: sp("ab")}))
	assert.Equal(t, []string{"username", "password"}, fieldNames(verr))
	assert.Equal(t, "The username field must not be empty.", verr.First("username"))
}

func TestValidate_LoginRules(t *testing.T) {
	v := &Validator{}
	ctx := context.Background()

	verr := asValidation(t, v.Validate(ctx, LoginRules, ModeCreate, &Input{}))
	assert.Equal(t, []string{"email", "password"}, fieldNames(verr))

	assert.NoError(t, v.Validate(ctx, LoginRules, ModeCreate, &Input{Email: sp("a@b.c"), Password: sp("x")}))
}

func TestEmail(t *testing.T) {
	ok := []string{"a@b.c", "first.last+tag@example.co.uk", "user@localhost"}
	bad := []string{"plain", "@example.com", "a@", "Alice <a@b.c>", " a@b.c", "a@b.c, d@e.f"}

	for _, s := range ok {
		msg, _ := Email(context.Background(), nil, "email", Value{Present: true, Text: s})
		assert.Empty(t, msg, s)
	}
	for _, s := range bad {
		msg, _ := Email(context.Background(), nil, "email", Value{Present: true, Text: s})
		assert.NotEmpty(t, msg, s)
	}
}

func TestImageExt(t *testing.T) {
	ext, ok := ImageExt(jpegBytes(t))
	assert.True(t, ok)
	assert.Equal(t, "jpg", ext)

	_, ok = ImageExt([]byte("<svg/>"))
	assert.False(t, ok)
}

func fieldNames(e *Error) []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Field)
	}
	return out
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM\t"))

	in := &Input{Email: sp("Bob@X.io")}
	in.Normalize()
	require.NotNil(t, in.Email)
	assert.Equal(t, "bob@x.io", *in.Email)

	empty := &Input{}
	empty.Normalize()
	assert.Nil(t, empty.Email)
}
