package pickup

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QR renders token as a PNG QR code of size x size pixels.
func QR(token string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
