package staging

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomLE = []byte{0xFF, 0xFE}
	bomBE = []byte{0xFE, 0xFF}
)

// decodeUTF16 converts BOM-marked UTF-16 content to UTF-8. Content without
// a UTF-16 byte order mark is returned unchanged.
func decodeUTF16(data []byte) ([]byte, bool, error) {
	if !bytes.HasPrefix(data, bomLE) && !bytes.HasPrefix(data, bomBE) {
		return data, false, nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
