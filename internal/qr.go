package internal

import (
	"errors"
	"github.com/skip2/go-qrcode"
)

const defaultQrSize = 320

// RenderQr renders a QR hash as a PNG image for display at the checkout.
func RenderQr(hash string, size int) ([]byte, error) {
	if hash == "" {
		return nil, errors.New("empty qr hash")
	}
	if size <= 0 {
		size = defaultQrSize
	}
	return qrcode.Encode(hash, qrcode.Medium, size)
}
