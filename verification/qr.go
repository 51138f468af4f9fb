package verification

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"net/url"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pkg/errors"
)

const defaultQRSize = 256

// QRCoder turns a Handoff into the link the phone opens and its QR image.
type QRCoder struct {
	baseURL string
	size    int
}

func NewQRCoder(mobileBaseURL string, size int) (*QRCoder, error) {
	if _, err := url.Parse(mobileBaseURL); err != nil || mobileBaseURL == "" {
		return nil, errors.Errorf("[NewQRCoder] invalid mobile base url %q", mobileBaseURL)
	}
	if size <= 0 {
		size = defaultQRSize
	}
	return &QRCoder{baseURL: mobileBaseURL, size: size}, nil
}

// Link returns the mobile URL carrying both halves of the handoff secret.
func (q *QRCoder) Link(h Handoff) string {
	u, _ := url.Parse(q.baseURL)
	values := u.Query()
	values.Set("sessionId", h.SessionID)
	values.Set("token", h.SessionToken)
	u.RawQuery = values.Encode()
	return u.String()
}

// DataURL renders content as a PNG QR code data URL.
func (q *QRCoder) DataURL(content string) (string, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return "", errors.Wrap(err, "[QRCoder DataURL] encode")
	}
	scaled, err := barcode.Scale(code, q.size, q.size)
	if err != nil {
		return "", errors.Wrap(err, "[QRCoder DataURL] scale")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", errors.Wrap(err, "[QRCoder DataURL] png")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
