package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/clipforge/clipgen/internal/clip"
)

// maxRequestBytes bounds the request body; the chat image arrives inline as
// base64.
const maxRequestBytes = 32 << 20

// decodeClipRequest accepts the request object itself, a JSON string
// holding it, or a proxy envelope {"body": ...} whose body is either of
// those.
func decodeClipRequest(w http.ResponseWriter, r *http.Request) (clip.RawRequest, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return parseClipRequest(data)
}

func parseClipRequest(data []byte) (clip.RawRequest, error) {
	v, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		if v, err = decodeJSON([]byte(s)); err != nil {
			return nil, err
		}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("invalid request body: expected a JSON object")
	}

	if body, present := obj["body"]; present && body != nil {
		switch b := body.(type) {
		case string:
			inner, err := decodeJSON([]byte(b))
			if err != nil {
				return nil, err
			}
			if obj, ok = inner.(map[string]any); !ok {
				return nil, errors.New("invalid request body: envelope body is not a JSON object")
			}
		case map[string]any:
			obj = b
		default:
			return nil, errors.New("invalid request body: envelope body is not a JSON object")
		}
	}

	return clip.RawRequest(obj), nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid request body: trailing data after JSON value")
	}
	return v, nil
}
