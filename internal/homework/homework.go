// Package homework validates homework status responses and renders the
// status-change message relayed to the chat.
package homework

import (
	"fmt"
)

type Status string

const (
	StatusApproved  Status = "approved"
	StatusReviewing Status = "reviewing"
	StatusRejected  Status = "rejected"
)

// verdicts is the status verdict table. It is never mutated.
var verdicts = map[Status]string{
	StatusApproved:  "Работа проверена: ревьюеру всё понравилось. Ура!",
	StatusReviewing: "Работа взята на проверку ревьюером.",
	StatusRejected:  "Работа проверена: у ревьюера есть замечания.",
}

// Verdict returns the localized verdict for a known status.
func Verdict(s Status) (string, bool) {
	v, ok := verdicts[s]
	return v, ok
}

// Record is one element of the "homeworks" list, kept as decoded JSON so
// that absent keys can be told apart from empty values.
type Record map[string]any

// Name returns homework_name when it is a string.
func (r Record) Name() string {
	s, _ := r["homework_name"].(string)
	return s
}

// Status returns status when it is a string.
func (r Record) Status() Status {
	s, _ := r["status"].(string)
	return Status(s)
}

// CheckResponse validates a decoded API body and returns the most recent
// homework record (the first list element).
func CheckResponse(body any) (Record, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, &Error{Kind: KindType, Msg: fmt.Sprintf("API response is %s, want object", jsonType(body))}
	}
	raw, ok := m["homeworks"]
	if !ok || raw == nil {
		return nil, &Error{Kind: KindMissingKey, Key: "homeworks"}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &Error{Kind: KindType, Key: "homeworks", Msg: fmt.Sprintf("homeworks is %s, want list", jsonType(raw))}
	}
	if len(list) == 0 {
		return nil, ErrNoHomeworks
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return nil, &Error{Kind: KindType, Key: "homeworks", Msg: fmt.Sprintf("homework is %s, want object", jsonType(list[0]))}
	}
	return Record(first), nil
}

// CurrentDate extracts current_date (epoch seconds) from a decoded body.
func CurrentDate(body any) (int64, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := m["current_date"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// ParseStatus renders the status-change message for a record.
func ParseStatus(r Record) (string, error) {
	for _, key := range []string{"homework_name", "status"} {
		if v, ok := r[key]; !ok || v == nil {
			return "", &Error{Kind: KindMissingKey, Key: key}
		}
	}
	status := r.Status()
	verdict, ok := Verdict(status)
	if !ok {
		return "", &Error{Kind: KindUnknownStatus, Status: fmt.Sprint(r["status"])}
	}
	name := fmt.Sprint(r["homework_name"])
	return fmt.Sprintf("Изменился статус проверки работы \"%s\". %s", name, verdict), nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}
