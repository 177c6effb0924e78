package imagegen

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrMalformedDataURI = errors.New("imagegen: malformed data uri")

// DecodeDataURI splits a base64 data URI into its payload bytes and MIME type.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return nil, "", ErrMalformedDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrMalformedDataURI
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", ErrMalformedDataURI
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some providers emit unpadded base64.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", errors.Join(ErrMalformedDataURI, err)
		}
	}
	return data, mimeType, nil
}
