package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes is spec §4.8's "Request size <= 64 KB" ceiling.
const maxBodyBytes = 64 * 1024

var validate = validator.New()

// decodeBody reads and struct-tag-validates a JSON request body, enforcing
// the 64KB limit via http.MaxBytesReader before decoding (spec §4.8,
// §8 "64 KB + 1 request body -> 400").
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// parseLimit coerces the `limit` query param to an int, clamped to
// [1, max] — spec §4.8 "query parameters are coerced to declared types
// before validation" / §5 "list endpoints cap limit at 100".
func parseLimit(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
