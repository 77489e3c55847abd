package models

import (
	"bytes"
	"encoding/base64"
	"image"
	"net/url"
	"strings"

	// Decoders for the formats accepted as question images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/hyperjump/tutor/internal/apperr"
)

// DefaultMaxImageBytes caps decoded inline images.
const DefaultMaxImageBytes = 5 << 20

// Image is an optional picture attached to a question: inline bytes or a remote reference.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

// IsReference reports whether the image is a remote URL rather than inline bytes.
func (img *Image) IsReference() bool {
	return img != nil && img.URL != "" && len(img.Data) == 0
}

// Validate checks that inline bytes decode as a supported image format and that
// references are absolute http(s) URLs. It fills MIMEType for inline images.
func (img *Image) Validate() error {
	if img == nil {
		return nil
	}
	if img.IsReference() {
		u, err := url.Parse(img.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperr.New(apperr.InvalidInput, "image", "image reference must be an absolute http(s) URL")
		}
		return nil
	}
	if len(img.Data) == 0 {
		return apperr.New(apperr.InvalidInput, "image", "image is empty")
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return &apperr.Error{Kind: apperr.InvalidInput, Op: "image", Message: "image could not be decoded", Err: err}
	}
	img.MIMEType = "image/" + format
	return nil
}

// DataURL returns the image as a data: URL, or the reference URL for remote images.
func (img *Image) DataURL() string {
	if img == nil {
		return ""
	}
	if img.IsReference() {
		return img.URL
	}
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// ParseImage converts the external image representation (base64, data: URL or http(s)
// reference) into an Image. An empty string yields nil. maxBytes <= 0 uses DefaultMaxImageBytes.
func ParseImage(raw string, maxBytes int) (*Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		img := &Image{URL: raw}
		if err := img.Validate(); err != nil {
			return nil, err
		}
		return img, nil
	}
	payload := raw
	if strings.HasPrefix(lower, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 || !strings.Contains(lower[:comma], ";base64") {
			return nil, apperr.New(apperr.InvalidInput, "image", "data URL must be base64 encoded")
		}
		payload = raw[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+3 {
		return nil, apperr.New(apperr.InvalidInput, "image", "image exceeds %d bytes", maxBytes)
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.InvalidInput, Op: "image", Message: "image is not valid base64", Err: err}
	}
	if len(data) > maxBytes {
		return nil, apperr.New(apperr.InvalidInput, "image", "image exceeds %d bytes", maxBytes)
	}
	img := &Image{Data: data}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if alt, altErr := base64.RawStdEncoding.DecodeString(s); altErr == nil {
		return alt, nil
	}
	if alt, altErr := base64.URLEncoding.DecodeString(s); altErr == nil {
		return alt, nil
	}
	return nil, err
}

// Query is a single incoming question with an optional image.
type Query struct {
	Question string `json:"question"`
	Image    *Image `json:"-"`
}

// Validate trims the question and rejects empty questions and undecodable images.
func (q *Query) Validate() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return apperr.New(apperr.InvalidInput, "query", "question cannot be empty")
	}
	return q.Image.Validate()
}
