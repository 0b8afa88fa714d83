package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the validate tags of a request struct and returns a
// readable message for the first failing field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "email":
		return fmt.Errorf("%s must be a valid email address", field)
	case "min", "gte":
		return fmt.Errorf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Errorf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Errorf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Errorf("%s is invalid", field)
}

// DecodeJSON reads a JSON body into dst
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// IsMultipart reports whether the request carries a multipart form
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// Form reads string values out of a parsed multipart form
type Form struct {
	r *http.Request
}

// ParseForm parses a multipart body up to maxBytes
func ParseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (*Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %v", err)
	}
	return &Form{r: r}, nil
}

func (f *Form) String(key string) string {
	return strings.TrimSpace(f.r.FormValue(key))
}

// Optional returns nil when the field is absent from the form
func (f *Form) Optional(key string) *string {
	if _, ok := f.r.MultipartForm.Value[key]; !ok {
		return nil
	}
	v := f.String(key)
	return &v
}

func (f *Form) Int64(key string) (int64, error) {
	v := f.String(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number", key)
	}
	return n, nil
}

func (f *Form) Bool(key string) (*bool, error) {
	v := f.Optional(key)
	if v == nil || *v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(*v)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", key)
	}
	return &b, nil
}

// List accepts repeated fields, a JSON array or a comma separated value
func (f *Form) List(key string) []string {
	values := f.r.MultipartForm.Value[key]
	if len(values) == 1 {
		v := strings.TrimSpace(values[0])
		var arr []string
		if strings.HasPrefix(v, "[") && json.Unmarshal([]byte(v), &arr) == nil {
			return arr
		}
		return strings.Split(v, ",")
	}
	return values
}

// Has reports whether the form carries the field at all
func (f *Form) Has(key string) bool {
	_, ok := f.r.MultipartForm.Value[key]
	return ok
}

// File returns the uploaded file for key, or nil when none was sent
func (f *Form) File(key string) (io.ReadCloser, error) {
	file, _, err := f.r.FormFile(key)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s upload: %v", key, err)
	}
	return file, nil
}
