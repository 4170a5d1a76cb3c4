package fetcher

// Outcome is the tagged result of a fetch: either a success carrying the raw
// content, or a failure carrying the last error and the number of attempts
// spent. It is the transport's sole output type, so callers must branch on
// Succeeded before touching Body.
type Outcome struct {
	// Body is the raw response content on success
	Body []byte

	// Kind is the kind of content in Body
	Kind ContentKind

	// StatusCode is the HTTP status of the last response, when there was one
	StatusCode int

	// Attempts is the number of attempts made, including the successful one
	Attempts int

	// Err is the last error on failure and nil on success
	Err *FetchError
}

// Success builds a successful outcome
func Success(body []byte, kind ContentKind, statusCode, attempts int) Outcome {
	return Outcome{
		Body:       body,
		Kind:       kind,
		StatusCode: statusCode,
		Attempts:   attempts,
	}
}

// Failure builds a failed outcome
func Failure(err *FetchError, attempts int) Outcome {
	if err == nil {
		err = &FetchError{Type: ErrorTypeUnknown, Message: "failure without cause"}
	}
	return Outcome{
		StatusCode: err.StatusCode,
		Attempts:   attempts,
		Err:        err,
	}
}

// Succeeded reports whether the outcome carries content
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}
