package core

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

const defaultImageMIMEType = "image/png"

// DecodeImage accepts either a data URL ("data:image/jpeg;base64,....") or a
// bare base64 payload. The MIME type comes from the data URL when present and
// must be an image type; otherwise it is sniffed, falling back to image/png.
func DecodeImage(payload string) (*InlineImage, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	mimeType := ""
	data := payload
	if i := strings.Index(payload, "base64,"); i >= 0 {
		header := payload[:i]
		data = payload[i+len("base64,"):]
		if strings.HasPrefix(header, "data:") {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";")
		}
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		// Some browsers emit unpadded payloads.
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	if mimeType != "" && !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: unsupported type %s", ErrInvalidImage, mimeType)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(raw)
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = defaultImageMIMEType
		}
	}
	return &InlineImage{MIMEType: mimeType, Data: raw}, nil
}
