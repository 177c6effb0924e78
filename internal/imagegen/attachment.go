package imagegen

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxAttachmentBytes is the largest upload accepted per image.
const MaxAttachmentBytes int64 = 10 << 20

// Attachment is an uploaded image waiting to be sent inline with a prompt.
type Attachment struct {
	Name     string
	MIMEType string
	Size     int64
	// Open returns a fresh reader over the attachment content.
	Open func() (io.ReadCloser, error)
}

// NewBytesAttachment wraps in-memory content. An empty mimeType is sniffed
// from the data.
func NewBytesAttachment(name string, data []byte, mimeType string) Attachment {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return Attachment{
		Name:     name,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// IsImage reports whether the declared MIME type is an image type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.MIMEType)), "image/")
}

// ReadAll returns the raw attachment bytes.
func (a Attachment) ReadAll() ([]byte, error) {
	if a.Open == nil {
		return nil, errors.New("attachment has no content")
	}
	rc, err := a.Open()
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, MaxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > MaxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", MaxAttachmentBytes)
	}
	return data, nil
}

// Encode returns the attachment content as standard base64.
func (a Attachment) Encode() (string, error) {
	data, err := a.ReadAll()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// label names the attachment in user-facing messages.
func (a Attachment) label(index int) string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("Image %d", index+1)
}
