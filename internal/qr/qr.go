package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered image edge in pixels.
const DefaultSize = 256

// PNG renders a credential payload as a QR code image. Payloads are short
// JSON strings, comfortably inside medium error-correction capacity.
func PNG(value string, size int) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("encode qr: empty payload")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(value, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
