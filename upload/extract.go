package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var errNotUTF8 = errors.New("text file is not valid UTF-8")

// Extract returns the text of a file that can be analyzed. Files of other
// kinds return "" and a nil error. Plain text is recognized by a text/* type
// or a .txt name; PDFs by their type or a .pdf name.
func Extract(f File) (string, error) {
	switch {
	case isText(f):
		if !utf8.Valid(f.Data) {
			return "", errNotUTF8
		}
		return string(f.Data), nil
	case isPDF(f):
		return pdfText(f.Data)
	default:
		return "", nil
	}
}

func mediaType(f File) string {
	mt, _, err := mime.ParseMediaType(f.MimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(f.MimeType))
	}
	return mt
}

func isText(f File) bool {
	return strings.HasPrefix(mediaType(f), "text/") || strings.EqualFold(filepath.Ext(f.Name), ".txt")
}

func isPDF(f File) bool {
	return mediaType(f) == "application/pdf" || strings.EqualFold(filepath.Ext(f.Name), ".pdf")
}

// pdfText checks the document structure first and only then pulls the text
// out of it. It recovers from the text reader's panics on malformed files.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading pdf: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("validating pdf: %w", err)
	}
	if pages == 0 {
		return "", nil
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}
