package api

// RequestError carries an HTTP status alongside a caller-safe message.
// Middleware uses it to emit the same JSON error shape as the handlers.
type RequestError struct {
	Status  int
	Message string
}

func (e RequestError) Error() string {
	return e.Message
}
