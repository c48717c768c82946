package domain

import "strconv"

// SignedRequest is the part of a verification-service call that its
// X-Signature header covers.
type SignedRequest struct {
	Method    string
	Path      string
	Timestamp int64 // Unix seconds, from X-Timestamp
	Nonce     string
	Body      []byte
}

// Canonical renders the request as METHOD|PATH|TIMESTAMP|NONCE|BODY. The
// body is appended raw, so an empty body leaves a trailing separator.
func (r SignedRequest) Canonical() []byte {
	buf := make([]byte, 0, len(r.Method)+len(r.Path)+len(r.Nonce)+len(r.Body)+24)
	buf = append(buf, r.Method...)
	buf = append(buf, '|')
	buf = append(buf, r.Path...)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, r.Timestamp, 10)
	buf = append(buf, '|')
	buf = append(buf, r.Nonce...)
	buf = append(buf, '|')
	return append(buf, r.Body...)
}
