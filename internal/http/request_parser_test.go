package http

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	} else if err := mw.WriteField("other", "value"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestParseUploadRequest(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		fileName string
		size     int
		maxBytes int64
		wantErr  error
		wantName string
	}{
		{name: "ok", field: "file", fileName: "products.csv", size: 100, maxBytes: 1024, wantName: "products.csv"},
		{name: "path stripped", field: "file", fileName: `C:\Users\ana\sales.xlsx`, size: 10, maxBytes: 1024, wantName: "sales.xlsx"},
		{name: "missing file", field: "", size: 0, maxBytes: 1024, wantErr: errNoFile},
		{name: "wrong field", field: "upload", fileName: "a.csv", size: 10, maxBytes: 1024, wantErr: errNoFile},
		{name: "too large", field: "file", fileName: "big.csv", size: 2048, maxBytes: 1024, wantErr: errFileTooLarge},
		{name: "body over limit", field: "file", fileName: "huge.csv", size: 200 << 10, maxBytes: 1024, wantErr: errFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.field, tt.fileName, bytes.Repeat([]byte("a"), tt.size))
			req := httptest.NewRequest(http.MethodPost, "/uploads", body)
			req.Header.Set("Content-Type", ct)

			got, err := parseUploadRequest(httptest.NewRecorder(), req, tt.maxBytes)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer got.Close()
			if got.FileName != tt.wantName {
				t.Errorf("FileName = %q, want %q", got.FileName, tt.wantName)
			}
			if got.Size != int64(tt.size) {
				t.Errorf("Size = %d, want %d", got.Size, tt.size)
			}
		})
	}
}

func TestParseUploadRequest_NotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/uploads", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := parseUploadRequest(httptest.NewRecorder(), req, 1024)
	if !errors.Is(err, errBadMultipart) {
		t.Errorf("error = %v, want errBadMultipart", err)
	}
}

func TestFormValues(t *testing.T) {
	form := url.Values{"api_key": {"  key\x00 "}, "secret_key": {"s"}, "ignored": {"x"}}
	req := httptest.NewRequest(http.MethodPost, "/integrations/amazon", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := formValues(req, "api_key", "secret_key", "missing")
	if err != nil {
		t.Fatalf("formValues: %v", err)
	}
	want := map[string]string{"api_key": "key", "secret_key": "s", "missing": ""}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["ignored"]; ok {
		t.Error("unrequested field returned")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"a\x00b\x07c", "abc"},
		{"line1\nline2\tok", "line1\nline2\tok"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.xlsx", "report.xlsx"},
		{"../../etc/passwd", "passwd"},
		{`C:\data\q1.csv`, "q1.csv"},
		{"", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := sanitizeFileName(tt.in); got != tt.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
