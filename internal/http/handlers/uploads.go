package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"studio/internal/imagegen"
)

const multipartMemory = 8 << 20

var errNoMultipart = errors.New("expected multipart/form-data")

// parseMultipart bounds the body to MaxUploadBytes and parses it. Callers must
// call cleanup once the attachments are no longer read.
func (a *App) parseMultipart(w http.ResponseWriter, r *http.Request) (cleanup func(), err error) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return func() {}, errNoMultipart
	}
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return func() {}, err
	}
	return func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}, nil
}

// formAttachments returns the files posted under any of fields, in order.
func formAttachments(r *http.Request, fields ...string) []imagegen.Attachment {
	if r.MultipartForm == nil {
		return nil
	}
	var out []imagegen.Attachment
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			out = append(out, attachmentFromHeader(fh))
		}
	}
	return out
}

func attachmentFromHeader(fh *multipart.FileHeader) imagegen.Attachment {
	mimeType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = sniffHeader(fh)
	}
	return imagegen.Attachment{
		Name:     fh.Filename,
		MIMEType: mimeType,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func sniffHeader(fh *multipart.FileHeader) string {
	f, err := fh.Open()
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	return http.DetectContentType(buf[:n])
}

// uploadError maps body parsing failures onto responses.
func (a *App) uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds the request size limit")
	case errors.Is(err, errNoMultipart):
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error())
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
	}
}
