// Package envelope defines the response contract of the psalm lookup engine
// and the validator that guards it.
package envelope

// Intent tags every envelope produced by this engine.
const Intent = "psalm_lookup_1773"

// Psalm number bounds.
const (
	MinPsalm = 1
	MaxPsalm = 150
)

// Status is the closed set of lookup outcomes.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusNotFound           Status = "not_found"
	StatusVerificationFailed Status = "verification_failed"
	StatusInvalidRequest     Status = "invalid_request"
)

// Valid reports whether s is one of the four recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusNotFound, StatusVerificationFailed, StatusInvalidRequest:
		return true
	}
	return false
}

// Request is the structured reference a result was produced for.
type Request struct {
	PsalmNumber int   `json:"psalm_number"`
	Verses      []int `json:"verses"`
}

// VerseText is one resolved verse.
type VerseText struct {
	Verse int    `json:"verse"`
	Text  string `json:"text"`
}

// Result carries either the resolved verses or a failure message.
type Result struct {
	Verified *bool       `json:"verified,omitempty"`
	Verses   []VerseText `json:"verses,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// Envelope is the sole contract surface toward the serving layer.
type Envelope struct {
	Intent  string  `json:"intent"`
	Status  Status  `json:"status"`
	Request Request `json:"request"`
	Result  *Result `json:"result,omitempty"`
}

// Success builds an ok envelope; verses must be in request order.
func Success(req Request, verses []VerseText) *Envelope {
	verified := true
	return &Envelope{
		Intent:  Intent,
		Status:  StatusOK,
		Request: normalizeRequest(req),
		Result: &Result{
			Verified: &verified,
			Verses:   verses,
		},
	}
}

// Failure builds an envelope for a non-ok status. Statuses other than
// invalid_request also mark the result as unverified.
func Failure(status Status, req Request, message string) *Envelope {
	result := &Result{Message: message}
	if status != StatusInvalidRequest {
		verified := false
		result.Verified = &verified
	}
	return &Envelope{
		Intent:  Intent,
		Status:  status,
		Request: normalizeRequest(req),
		Result:  result,
	}
}

// normalizeRequest keeps verses encoding as [] rather than null.
func normalizeRequest(req Request) Request {
	if req.Verses == nil {
		req.Verses = []int{}
	}
	return req
}
