package upload

import (
	"bytes"
	"io"
	"mime/multipart"
	"path/filepath"
)

// File is a local file handed to the uploader
type File struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// BytesFile wraps an in-memory payload
func BytesFile(name, mimeType string, data []byte) File {
	return File{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// MultipartFile wraps a file received in a multipart form
func MultipartFile(fh *multipart.FileHeader) File {
	return File{
		Name:     filepath.Base(fh.Filename),
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}
