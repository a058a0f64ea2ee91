package result

import "fmt"

// Kind identifies the shape of a Result payload.
type Kind string

const (
	KindNone       Kind = "none"
	KindText       Kind = "text"
	KindList       Kind = "list"
	KindProperties Kind = "properties"
	KindBool       Kind = "bool"
)

// Result is the response envelope handed back to callers of the dispatcher.
type Result struct {
	Status  Status `json:"status" yaml:"status"`
	Kind    Kind   `json:"kind" yaml:"kind"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	// Err carries the classified cause for transport and decode failures.
	Err error `json:"-" yaml:"-"`
}

// Success builds a SUCCESS result carrying value of the given kind.
func Success(kind Kind, value any, message string) Result {
	if kind == "" {
		kind = KindNone
	}
	return Result{Status: StatusSuccess, Kind: kind, Value: value, Message: message}
}

// Failure builds an ERROR result. err may be nil for body-level failures.
func Failure(message string, err error) Result {
	if message == "" && err != nil {
		message = err.Error()
	}
	return Result{Status: StatusError, Kind: KindNone, Message: message, Err: err}
}

func Unknown(message string) Result {
	return Result{Status: StatusUnknown, Kind: KindNone, Message: message}
}

func (r Result) OK() bool { return r.Status == StatusSuccess }

// Text returns the payload as text. Non-text payloads are formatted.
func (r Result) Text() string {
	switch v := r.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (r Result) List() []string {
	v, _ := r.Value.([]string)
	return v
}

func (r Result) Properties() map[string]string {
	v, _ := r.Value.(map[string]string)
	return v
}

// Bool returns the boolean payload and whether the result carries one.
func (r Result) Bool() (bool, bool) {
	v, ok := r.Value.(bool)
	return v, ok
}

func (r Result) String() string {
	if r.Message == "" {
		return r.Status.String()
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Message)
}
