package broker

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Candidate keys, in lookup order, for fields the upstream spells several ways.
var (
	ServerIDKeys     = []string{"hsServerId", "serverId", "sId", "server_id"}
	OrderIDKeys      = []string{"nOrdNo", "orderId", "order_id"}
	ErrorCodeKeys    = []string{"stCode", "errorCode", "code", "errCode"}
	ErrorMessageKeys = []string{"emsg", "errMsg", "message", "msg", "description"}
)

var errNotObject = errors.New("response body is not a JSON object")

// Decode parses a JSON object, keeping numbers exact.
func Decode(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// Data returns the object nested under "data", or nil.
func Data(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	d, _ := m["data"].(map[string]any)
	return d
}

// Lookup returns the first non-empty scalar found under any of keys.
func Lookup(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := scalar(m[key]); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// LookupAny tries Lookup on each object in order.
func LookupAny(objs []map[string]any, keys ...string) (string, bool) {
	for _, m := range objs {
		if m == nil {
			continue
		}
		if s, ok := Lookup(m, keys...); ok {
			return s, true
		}
	}
	return "", false
}

// Status returns data.status, falling back to top-level status/stat.
func Status(m map[string]any) string {
	if s, ok := Lookup(Data(m), "status"); ok {
		return s
	}
	s, _ := Lookup(m, "status", "stat")
	return s
}

// IsSuccess reports whether the envelope's status says success.
func IsSuccess(m map[string]any) bool {
	switch strings.ToLower(Status(m)) {
	case "success", "ok":
		return true
	default:
		return false
	}
}

// Describe extracts an error code and message from the places the upstream puts
// them: top level, under data, or the first element of an "error"/"errors" list.
func Describe(m map[string]any) (code, message string) {
	objs := []map[string]any{m, Data(m)}
	for _, key := range []string{"error", "errors", "fault"} {
		switch v := m[key].(type) {
		case []any:
			if len(v) > 0 {
				if first, ok := v[0].(map[string]any); ok {
					objs = append([]map[string]any{first}, objs...)
				}
			}
		case map[string]any:
			objs = append([]map[string]any{v}, objs...)
		case string:
			if message == "" {
				message = v
			}
		}
	}
	code, _ = LookupAny(objs, ErrorCodeKeys...)
	if msg, ok := LookupAny(objs, ErrorMessageKeys...); ok {
		message = msg
	}
	return code, message
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
