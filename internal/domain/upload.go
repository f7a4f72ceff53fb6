package domain

import "io"

// Upload is one file taken from a multipart request.
type Upload struct {
	Filename string
	Body     io.Reader
}
