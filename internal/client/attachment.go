package client

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Attachment is an image picked by the user. Data is kept in memory for the
// lifetime of the submission so a retry resends the same bytes.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

func LoadAttachment(path string) (*Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", filepath.Base(path), mime)
	}
	return &Attachment{Name: filepath.Base(path), MIMEType: mime, Data: data}, nil
}

// DataURL encodes the attachment for the chat request.
func (a *Attachment) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
