package testutil

import "encoding/base64"

// 图像测试夹具：只保证文件头可被 http.DetectContentType 识别，
// variant 用于构造字节不同的图像。

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	gifHeader  = []byte("GIF89a\x01\x00\x01\x00")
	webpHeader = []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
)

func withVariant(header []byte, variant byte) []byte {
	out := make([]byte, 0, len(header)+8)
	out = append(out, header...)
	return append(out, 0x00, 0x01, 0x02, 0x03, variant, 0xAE, 0x42, 0x60)
}

// PNGBytes returns a small PNG-signed payload.
func PNGBytes(variant byte) []byte { return withVariant(pngHeader, variant) }

// JPEGBytes returns a small JPEG-signed payload.
func JPEGBytes(variant byte) []byte { return withVariant(jpegHeader, variant) }

// GIFBytes returns a small GIF-signed payload.
func GIFBytes(variant byte) []byte { return withVariant(gifHeader, variant) }

// WebPBytes returns a small WebP-signed payload.
func WebPBytes(variant byte) []byte { return withVariant(webpHeader, variant) }

// Base64 encodes data with standard base64.
func Base64(data []byte) string { return base64.StdEncoding.EncodeToString(data) }
