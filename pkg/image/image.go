// Package image turns the different ways a caller can attach an image (upload,
// URL, local path, raw base64) into one canonical base64 form.
package image

import (
	"encoding/base64"
	"net/http"
	"os"
	"strings"
)

type Kind int

const (
	KindUpload Kind = iota + 1
	KindURL
	KindPath
	KindBase64
)

func (k Kind) String() string {
	switch k {
	case KindUpload:
		return "upload"
	case KindURL:
		return "url"
	case KindPath:
		return "path"
	case KindBase64:
		return "base64"
	default:
		return "unknown"
	}
}

// Input is a tagged variant. Upload uses Data and ContentType; the other kinds
// use Value.
type Input struct {
	Kind        Kind
	Data        []byte
	ContentType string
	Value       string
}

func FromUpload(data []byte, contentType string) Input {
	return Input{Kind: KindUpload, Data: data, ContentType: contentType}
}

func FromURL(u string) Input    { return Input{Kind: KindURL, Value: u} }
func FromPath(p string) Input   { return Input{Kind: KindPath, Value: p} }
func FromBase64(s string) Input { return Input{Kind: KindBase64, Value: s} }

// Classify picks the variant for a string field: http(s) URLs, then existing
// local files, otherwise the string is treated as base64.
func Classify(s string) Input {
	v := strings.TrimSpace(s)
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return FromURL(v)
	}
	if len(v) < 4096 {
		if info, err := os.Stat(v); err == nil && !info.IsDir() {
			return FromPath(v)
		}
	}
	return FromBase64(v)
}

// Encoded is the canonical form handed to OCR.
type Encoded struct {
	Base64   string
	MIMEType string
}

func (e Encoded) Bytes() ([]byte, error) {
	return decodeBase64(e.Base64)
}

var acceptedMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/webp": true,
}

// Accepted reports whether a Content-Type (parameters ignored) is in the
// accepted set.
func Accepted(contentType string) bool {
	return acceptedMIMETypes[baseMIME(contentType)]
}

func baseMIME(contentType string) string {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// sniff detects the MIME type from content; used when the source gives none.
func sniff(data []byte) string {
	return baseMIME(http.DetectContentType(data))
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
