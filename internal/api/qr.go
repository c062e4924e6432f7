package api

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// qrDataURI renders a link as a PNG QR code wrapped in a data URI, ready to
// drop into an <img> tag.
func qrDataURI(link string) (string, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
