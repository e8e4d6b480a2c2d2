package api

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/upload"
)

const maxFormMemory = 32 << 20

var errTooManyFiles = apperror.BadRequest("Too many files")

// formSchema tells decodeForm how to type multipart text fields. Fields not
// listed are strings.
type formSchema struct {
	arrays []string
	bools  []string
	ints   []string
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// decodeBody fills v from a JSON body or from multipart text fields, and
// returns at most maxFiles uploads found under field.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, schema formSchema, field string, maxFiles int, maxSize int64) ([]upload.File, error) {
	if !isMultipart(r) {
		return nil, decodeJSON(r, v)
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxFiles)*maxSize+maxJSONBody)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, errInvalidBody
	}
	if err := decodeForm(r.MultipartForm, schema, v); err != nil {
		return nil, err
	}
	return readFiles(r.MultipartForm, field, maxFiles, maxSize)
}

// decodeForm converts text fields into a JSON document and decodes it into
// v, so one set of struct tags serves both encodings.
func decodeForm(form *multipart.Form, schema formSchema, v any) error {
	doc := make(map[string]any, len(form.Value))
	for key, vals := range form.Value {
		if len(vals) == 0 {
			continue
		}
		switch {
		case slices.Contains(schema.arrays, key):
			var list []string
			for _, s := range vals {
				for part := range strings.SplitSeq(s, ",") {
					if part = strings.TrimSpace(part); part != "" {
						list = append(list, part)
					}
				}
			}
			doc[key] = list
		case slices.Contains(schema.bools, key):
			b, err := strconv.ParseBool(vals[0])
			if err != nil {
				return apperror.BadRequest("Invalid " + key)
			}
			doc[key] = b
		case slices.Contains(schema.ints, key):
			n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
			if err != nil {
				return apperror.BadRequest("Invalid " + key)
			}
			doc[key] = n
		default:
			doc[key] = vals[0]
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode form")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidBody
	}
	return nil
}

func readFiles(form *multipart.Form, field string, maxFiles int, maxSize int64) ([]upload.File, error) {
	headers := form.File[field]
	if len(headers) > maxFiles {
		return nil, errTooManyFiles.Withf("At most %d files are allowed", maxFiles)
	}
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxSize {
			return nil, upload.ErrTooLarge.Withf("File too large: %s", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", fh.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
		_ = f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", fh.Filename)
		}
		files = append(files, upload.File{Name: fh.Filename, Data: data})
	}
	return files, nil
}

func firstFile(files []upload.File) *upload.File {
	if len(files) == 0 {
		return nil
	}
	return &files[0]
}
