package ingestion

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Dispatch actions accepted by the tracking endpoint
const (
	ActionPage           = "pageRequest"
	ActionDownload       = "downloadRequest"
	ActionLinkClick      = "linkClickRequest"
	ActionFieldListening = "fieldListeningRequest"
	ActionFormListening  = "formListeningRequest"
	ActionEmail4Link     = "email4LinkRequest"
	ActionRedirect       = "redirectRequest"
)

// Request is one tracking event as posted by the browser
type Request struct {
	DispatchAction string          `json:"dispatchAction" validate:"required,oneof=pageRequest downloadRequest linkClickRequest fieldListeningRequest formListeningRequest email4LinkRequest redirectRequest"`
	Arguments      json.RawMessage `json:"arguments"`
}

// ID accepts a JSON number or a numeric string, since the script posts form values
type ID uint

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	text := strings.Trim(string(data), `"`)
	if text == "" {
		*id = 0
		return nil
	}
	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", text)
	}
	*id = ID(value)
	return nil
}

// Flag accepts true/false, 1/0 and their string forms
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	text := strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	switch text {
	case "true", "1", "on", "yes":
		*f = true
	case "", "false", "0", "off", "no", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag %q", text)
	}
	return nil
}

type pageArgs struct {
	Fingerprint string `json:"fingerprint" validate:"required,max=255"`
	PageUID     ID     `json:"pageUid" validate:"required"`
	LanguageUID ID     `json:"languageUid"`
	Referrer    string `json:"referrer" validate:"max=2048"`
	CurrentURL  string `json:"currentUrl" validate:"max=2048"`
	NewsUID     ID     `json:"newsUid"`
}

type downloadArgs struct {
	Fingerprint string `json:"fingerprint" validate:"required,max=255"`
	Href        string `json:"href" validate:"required,max=1024"`
}

type linkClickArgs struct {
	Fingerprint            string `json:"fingerprint" validate:"required,max=255"`
	LinklistenerIdentifier ID     `json:"linklistenerIdentifier" validate:"required"`
	PageUID                ID     `json:"pageUid"`
}

type fieldArgs struct {
	Fingerprint string `json:"fingerprint" validate:"required,max=255"`
	Key         string `json:"key" validate:"required,max=255"`
	Value       string `json:"value" validate:"max=65535"`
}

type formArgs struct {
	Fingerprint string          `json:"fingerprint" validate:"required,max=255"`
	Values      json.RawMessage `json:"values" validate:"required"`
}

type email4LinkArgs struct {
	Fingerprint string `json:"fingerprint" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	SendEmail   Flag   `json:"sendEmail"`
	Href        string `json:"href" validate:"required,max=1024"`
}

type redirectArgs struct {
	Fingerprint  string `json:"fingerprint" validate:"max=255"`
	RedirectHash string `json:"redirectHash" validate:"required,max=64"`
}

// formValues decodes the values of a form submission. The script sends either
// an object or that object serialized into a string.
func formValues(raw json.RawMessage) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		raw = json.RawMessage(encoded)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(decoded))
	for key, value := range decoded {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch v := value.(type) {
		case nil:
			values[key] = ""
		case string:
			values[key] = v
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			values[key] = strings.Join(parts, ", ")
		default:
			values[key] = fmt.Sprint(v)
		}
	}
	return values, nil
}

// sortedKeys is used for stable log output
func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
