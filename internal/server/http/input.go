package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/dmitrijs2005/accounts/internal/server/validation"
)

// avatarFields are the multipart field names accepted for a profile picture.
var avatarFields = []string{"avatar", "profile_picture"}

const formOverhead = 1 << 20

var errMalformedBody = errors.New("malformed request body")

type jsonInput struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Bio      clearable `json:"bio"`
}

// clearable distinguishes an explicit JSON null, which clears the field,
// from a missing key, which leaves it untouched.
type clearable struct {
	val *string
}

func (c *clearable) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		empty := ""
		c.val = &empty
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	c.val = &s
	return nil
}

func mediaType(req *http.Request) string {
	mt, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// parseInput reads account fields from a JSON, urlencoded or multipart body.
// Fields missing from the body stay nil.
func (r *Router) parseInput(w http.ResponseWriter, req *http.Request) (*validation.Input, error) {
	limit := r.opts.MaxAvatarBytes + formOverhead
	req.Body = http.MaxBytesReader(w, req.Body, limit)

	switch mediaType(req) {
	case "multipart/form-data":
		if err := req.ParseMultipartForm(formOverhead); err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformedBody, err)
		}
		in := formInput(req.MultipartForm.Value)
		for _, name := range avatarFields {
			files := req.MultipartForm.File[name]
			if len(files) == 0 {
				continue
			}
			up, err := r.readUpload(files[0])
			if err != nil {
				return nil, err
			}
			in.Avatar = up
			break
		}
		return in, nil

	case "application/x-www-form-urlencoded":
		if err := req.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformedBody, err)
		}
		return formInput(req.PostForm), nil

	default:
		var body jsonInput
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			if errors.Is(err, io.EOF) {
				return &validation.Input{}, nil
			}
			return nil, fmt.Errorf("%w: %w", errMalformedBody, err)
		}
		return &validation.Input{
			Username: body.Username,
			Email:    body.Email,
			Password: body.Password,
			Bio:      body.Bio.val,
		}, nil
	}
}

// writeInputError answers a body that could not be parsed.
func writeInputError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large.")
		return
	}
	writeMessage(w, http.StatusBadRequest, "Malformed request body.")
}

func formInput(values map[string][]string) *validation.Input {
	get := func(name string) *string {
		v, ok := values[name]
		if !ok || len(v) == 0 {
			return nil
		}
		s := v[0]
		return &s
	}
	return &validation.Input{
		Username: get(validation.FieldUsername),
		Email:    get(validation.FieldEmail),
		Password: get(validation.FieldPassword),
		Bio:      get(validation.FieldBio),
	}
}

// readUpload reads at most one byte past the avatar limit, enough for the
// size rule to reject it. An empty file input counts as no upload.
func (r *Router) readUpload(fh *multipart.FileHeader) (*validation.Upload, error) {
	if fh.Filename == "" && fh.Size == 0 {
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, r.opts.MaxAvatarBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	return &validation.Upload{Filename: fh.Filename, Data: data}, nil
}
