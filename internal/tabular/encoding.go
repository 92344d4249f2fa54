package tabular

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectAndDecode 识别导出文件编码并转换为 UTF-8
//
// 带 BOM 的 UTF-8/UTF-16 去掉 BOM 后解码；无 BOM 且是合法 UTF-8 的原样返回；
// 其余按 Windows-1252 解码（旧系统的字符串存储编码）。
func DetectAndDecode(data []byte) ([]byte, string, error) {
	var (
		dec  *encoding.Decoder
		name string
	)

	switch {
	case len(data) == 0:
		return data, "utf-8", nil
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], "utf-8-bom", nil
	case bytes.HasPrefix(data, bomUTF16LE):
		dec, name = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder(), "utf-16le"
	case bytes.HasPrefix(data, bomUTF16BE):
		dec, name = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder(), "utf-16be"
	case utf8.Valid(data):
		return data, "utf-8", nil
	default:
		dec, name = charmap.Windows1252.NewDecoder(), "windows-1252"
	}

	out, err := dec.Bytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", name, err)
	}
	return out, name, nil
}
