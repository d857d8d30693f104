package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

// decodeJSONBody decodes r's JSON body into v. An empty body is treated as
// a successful no-op decode (leaves v at its zero value); a malformed,
// non-empty body reports failure.
func decodeJSONBody(r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	if len(data) == 0 {
		return true
	}
	return json.Unmarshal(data, v) == nil
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
