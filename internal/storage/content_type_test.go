package storage

import (
	"bytes"
	"io"
	"testing"
)

func TestDetectContentType(t *testing.T) {
	jpegMagic := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 32)...)

	tests := []struct {
		name     string
		provided string
		filename string
		data     []byte
		want     string
	}{
		{"provided type wins", "image/png", "photo.jpg", nil, "image/png"},
		{"extension lookup", "", "reports/photo.jpg", nil, "image/jpeg"},
		{"sniffed from content", "", "blob", jpegMagic, "image/jpeg"},
		{"fallback", "", "blob", nil, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data io.Reader
			if tt.data != nil {
				data = bytes.NewReader(tt.data)
			}
			if got := DetectContentType(tt.provided, tt.filename, data); got != tt.want {
				t.Errorf("DetectContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsAllowedImageType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/jpeg", true},
		{"image/jpg", true},
		{"image/png", true},
		{"IMAGE/JPEG", true},
		{"image/jpeg; charset=utf-8", true},
		{"image/webp", false},
		{"image/heic", false},
		{"application/pdf", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsAllowedImageType(tt.contentType); got != tt.want {
			t.Errorf("IsAllowedImageType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
