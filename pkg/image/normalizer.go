package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type ErrorCode string

const (
	ErrorUnsupportedType ErrorCode = "unsupported_type"
	ErrorFetchFailed     ErrorCode = "fetch_failed"
	ErrorInvalidEncoding ErrorCode = "invalid_encoding"
	ErrorInvalidInput    ErrorCode = "invalid_input"
)

// Error is a client error: the request carried an image that cannot be used.
type Error struct {
	Code  ErrorCode
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "image processing failed"
	}
	if e.Cause != nil {
		return fmt.Sprintf("image processing failed (%s, %s): %s: %v", e.Kind, e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("image processing failed (%s, %s): %s", e.Kind, e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func imgErr(kind Kind, code ErrorCode, msg string, cause error) error {
	return &Error{Code: code, Kind: kind, Msg: msg, Cause: cause}
}

// IsError reports whether err is (or wraps) an image Error.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

type NormalizerConfig struct {
	FetchTimeout time.Duration
	MaxBytes     int64
}

type Normalizer struct {
	config NormalizerConfig
	client *http.Client
}

func NewNormalizer(config NormalizerConfig) *Normalizer {
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 15 * time.Second
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 5 << 20
	}
	return &Normalizer{
		config: config,
		client: &http.Client{Timeout: config.FetchTimeout},
	}
}

// Normalize returns the canonical base64 form of in. Every failure is an *Error.
func (n *Normalizer) Normalize(ctx context.Context, in Input) (Encoded, error) {
	switch in.Kind {
	case KindUpload:
		return n.fromUpload(in)
	case KindURL:
		return n.fromURL(ctx, in.Value)
	case KindPath:
		return n.fromPath(in.Value)
	case KindBase64:
		return n.fromBase64(in.Value)
	default:
		return Encoded{}, imgErr(in.Kind, ErrorInvalidInput, "invalid image input format", nil)
	}
}

func (n *Normalizer) fromUpload(in Input) (Encoded, error) {
	if len(in.Data) == 0 {
		return Encoded{}, imgErr(KindUpload, ErrorInvalidInput, "empty upload", nil)
	}
	if !Accepted(in.ContentType) {
		return Encoded{}, imgErr(KindUpload, ErrorUnsupportedType, fmt.Sprintf("unsupported file type %q", in.ContentType), nil)
	}
	return encode(in.Data, baseMIME(in.ContentType)), nil
}

func (n *Normalizer) fromURL(ctx context.Context, u string) (Encoded, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Encoded{}, imgErr(KindURL, ErrorInvalidInput, "invalid image URL", err)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return Encoded{}, imgErr(KindURL, ErrorFetchFailed, "unable to fetch image URL", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Encoded{}, imgErr(KindURL, ErrorFetchFailed, fmt.Sprintf("unable to fetch image URL: status %d", resp.StatusCode), nil)
	}
	contentType := resp.Header.Get("Content-Type")
	if !Accepted(contentType) {
		return Encoded{}, imgErr(KindURL, ErrorUnsupportedType, fmt.Sprintf("URL is not a supported image type (%q)", contentType), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, n.config.MaxBytes+1))
	if err != nil {
		return Encoded{}, imgErr(KindURL, ErrorFetchFailed, "reading image body failed", err)
	}
	if int64(len(data)) > n.config.MaxBytes {
		return Encoded{}, imgErr(KindURL, ErrorInvalidInput, "image is too large", nil)
	}
	return encode(data, baseMIME(contentType)), nil
}

func (n *Normalizer) fromPath(p string) (Encoded, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return Encoded{}, imgErr(KindPath, ErrorInvalidInput, "unable to read image file", err)
	}
	mime := sniff(data)
	if !Accepted(mime) {
		return Encoded{}, imgErr(KindPath, ErrorUnsupportedType, fmt.Sprintf("unsupported file type %q", mime), nil)
	}
	return encode(data, mime), nil
}

func (n *Normalizer) fromBase64(s string) (Encoded, error) {
	if s == "" {
		return Encoded{}, imgErr(KindBase64, ErrorInvalidInput, "empty image", nil)
	}
	data, err := decodeBase64(s)
	if err != nil {
		return Encoded{}, imgErr(KindBase64, ErrorInvalidEncoding, "invalid base64 image input", err)
	}
	// Re-encode so data: URL prefixes and unpadded input come out canonical.
	return encode(data, sniff(data)), nil
}

func encode(data []byte, mime string) Encoded {
	return Encoded{Base64: base64.StdEncoding.EncodeToString(data), MIMEType: mime}
}
