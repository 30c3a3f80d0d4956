// This file implements utilities for parsing and validating HTTP request data.
package http

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// multipartOverhead is the allowance on top of the file size for the
// multipart boundaries and headers.
const multipartOverhead = 64 << 10

var (
	errNoFile       = errors.New("no file uploaded")
	errBadMultipart = errors.New("invalid multipart form")
	errFileTooLarge = errors.New("file too large")
)

// uploadRequest is the spreadsheet part of a POST /uploads form.
type uploadRequest struct {
	FileName string
	Size     int64
	File     multipart.File
}

func (u *uploadRequest) Close() error {
	return u.File.Close()
}

// parseUploadRequest reads the "file" field of a multipart form, refusing
// bodies larger than maxBytes plus the multipart overhead.
func parseUploadRequest(w http.ResponseWriter, r *http.Request, maxBytes int64) (*uploadRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(min(maxBytes, 8<<20)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errFileTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, fmt.Errorf("%w: expected multipart/form-data", errBadMultipart)
		}
		return nil, fmt.Errorf("%w: %v", errBadMultipart, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errNoFile
		}
		return nil, fmt.Errorf("%w: %v", errBadMultipart, err)
	}
	if header.Size > maxBytes {
		file.Close()
		return nil, errFileTooLarge
	}

	name := sanitizeFileName(header.Filename)
	if name == "" {
		file.Close()
		return nil, errNoFile
	}
	return &uploadRequest{FileName: name, Size: header.Size, File: file}, nil
}

// formValues returns the trimmed, sanitized values of the named form fields.
func formValues(r *http.Request, keys ...string) (map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = sanitizeInput(r.PostFormValue(k))
	}
	return out, nil
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// sanitizeFileName keeps the base name of an uploaded file, without path or
// control characters.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = sanitizeInput(filepath.Base(name))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
