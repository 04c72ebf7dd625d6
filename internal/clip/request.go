package clip

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// Wire field names of a generation request.
const (
	FieldRecordingURL    = "recording_url"
	FieldStartSeconds    = "start_seconds"
	FieldEndSeconds      = "end_seconds"
	FieldChatImageBase64 = "chat_image_base64"
	FieldCallID          = "call_id"
	FieldExchangeIndex   = "exchange_index"
)

// RawRequest is a decoded but unvalidated request object. Numeric fields
// may hold float64, json.Number or numeric strings.
type RawRequest map[string]any

// Request is a validated generation request.
type Request struct {
	RecordingURL    string
	StartSeconds    float64
	EndSeconds      float64
	ChatImageBase64 string
	CallID          string
	ExchangeIndex   int
}

// Duration is the length of the requested window in seconds.
func (r Request) Duration() float64 {
	return r.EndSeconds - r.StartSeconds
}

// ParseRequest coerces and validates the six request fields. The returned
// error is always a validation *Failure.
func ParseRequest(raw RawRequest) (Request, error) {
	var req Request
	var err error

	if req.RecordingURL, err = stringField(raw, FieldRecordingURL); err != nil {
		return Request{}, err
	}
	if req.StartSeconds, err = floatField(raw, FieldStartSeconds); err != nil {
		return Request{}, err
	}
	if req.EndSeconds, err = floatField(raw, FieldEndSeconds); err != nil {
		return Request{}, err
	}
	if req.ChatImageBase64, err = stringField(raw, FieldChatImageBase64); err != nil {
		return Request{}, err
	}
	if req.CallID, err = stringField(raw, FieldCallID); err != nil {
		return Request{}, err
	}
	if req.ExchangeIndex, err = intField(raw, FieldExchangeIndex); err != nil {
		return Request{}, err
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate checks the cross-field constraints of an already typed request.
func (r Request) Validate() error {
	if err := validateRecordingURL(r.RecordingURL); err != nil {
		return err
	}
	if r.StartSeconds < 0 {
		return invalid("%s must not be negative, got %v", FieldStartSeconds, r.StartSeconds)
	}
	if r.EndSeconds <= r.StartSeconds {
		return invalid("%s (%v) must be greater than %s (%v)", FieldEndSeconds, r.EndSeconds, FieldStartSeconds, r.StartSeconds)
	}
	if strings.TrimSpace(r.ChatImageBase64) == "" {
		return invalid("%s must not be empty", FieldChatImageBase64)
	}
	if strings.TrimSpace(r.CallID) == "" {
		return invalid("%s must not be empty", FieldCallID)
	}
	return nil
}

// validateRecordingURL only admits absolute http(s) URLs. The value is
// handed to the transcoder as an input, which would otherwise also accept
// local files and exotic protocols.
func validateRecordingURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return invalid("%s is not a valid URL", FieldRecordingURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("%s must be an http or https URL", FieldRecordingURL)
	}
	if u.Host == "" {
		return invalid("%s must include a host", FieldRecordingURL)
	}
	return nil
}

func stringField(raw RawRequest, name string) (string, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return "", invalid("missing required field %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid("field %q must be a string", name)
	}
	return s, nil
}

func floatField(raw RawRequest, name string) (float64, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return 0, invalid("missing required field %q", name)
	}

	var f float64
	var err error
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, invalid("field %q must be a number", name)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid("field %q must be a finite number", name)
	}
	return f, nil
}

func intField(raw RawRequest, name string) (int, error) {
	v, ok := raw[name]
	if !ok || v == nil {
		return 0, invalid("missing required field %q", name)
	}

	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return integral(name, n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, invalid("field %q must be an integer", name)
		}
		return integral(name, f)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, invalid("field %q must be an integer", name)
		}
		return i, nil
	default:
		return 0, invalid("field %q must be an integer", name)
	}
}

func integral(name string, f float64) (int, error) {
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, invalid("field %q must be an integer", name)
	}
	return int(f), nil
}

// DecodeImage decodes the chat image payload. Standard and URL-safe
// alphabets are accepted with or without padding, as is a data URL prefix
// and embedded whitespace or line breaks.
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ";base64,")
		if !ok {
			return nil, errors.New("data URL is not base64 encoded")
		}
		s = payload
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
