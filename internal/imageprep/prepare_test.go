package imageprep

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"
)

// encodeJPEG renders a flat test image to JPEG bytes.
func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 100, G: 120, B: 140, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareKeepsSmallImages(t *testing.T) {
	src := encodeJPEG(t, 800, 600)

	prepared, err := Prepare(bytes.NewReader(src), time.Now(), 10.776, 106.700)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	if prepared.Width != 800 || prepared.Height != 600 {
		t.Errorf("dimensions = %dx%d, want 800x600 (no upscaling)", prepared.Width, prepared.Height)
	}
	if len(prepared.JPEG) == 0 {
		t.Error("prepared JPEG is empty")
	}
}

func TestPrepareCapsLargeImages(t *testing.T) {
	src := encodeJPEG(t, 4096, 3072)

	prepared, err := Prepare(bytes.NewReader(src), time.Now(), 10.776, 106.700)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	if prepared.Width != MaxDimension {
		t.Errorf("longer dimension = %d, want %d", prepared.Width, MaxDimension)
	}
	// 4:3 aspect ratio preserved
	if prepared.Height != MaxDimension*3/4 {
		t.Errorf("height = %d, want %d (aspect ratio preserved)", prepared.Height, MaxDimension*3/4)
	}
}

func TestPrepareCapsPortraitImages(t *testing.T) {
	src := encodeJPEG(t, 1500, 4000)

	prepared, err := Prepare(bytes.NewReader(src), time.Now(), 10.776, 106.700)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	if prepared.Height != MaxDimension {
		t.Errorf("longer dimension = %d, want %d", prepared.Height, MaxDimension)
	}
	if prepared.Width >= prepared.Height {
		t.Errorf("portrait orientation lost: %dx%d", prepared.Width, prepared.Height)
	}
}

func TestPrepareOutputDecodes(t *testing.T) {
	src := encodeJPEG(t, 640, 480)

	prepared, err := Prepare(bytes.NewReader(src), time.Now(), 10.776, 106.700)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(prepared.JPEG))
	if err != nil {
		t.Fatalf("prepared output is not valid JPEG: %v", err)
	}
	if decoded.Bounds().Dx() != prepared.Width || decoded.Bounds().Dy() != prepared.Height {
		t.Errorf("encoded dimensions %v disagree with reported %dx%d",
			decoded.Bounds(), prepared.Width, prepared.Height)
	}
}

func TestPrepareWatermarkChangesPixels(t *testing.T) {
	src := encodeJPEG(t, 800, 600)

	prepared, err := Prepare(bytes.NewReader(src), time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC), 10.776, 106.700)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}

	// The bottom-left corner carries the watermark block; it must differ
	// from the flat source color. Sample inside the block.
	nrgba, ok := prepared.Image.(*image.NRGBA)
	if !ok {
		t.Fatalf("prepared image type %T, want *image.NRGBA", prepared.Image)
	}
	px := nrgba.NRGBAAt(5, 595)
	if px.R == 100 && px.G == 120 && px.B == 140 {
		t.Error("bottom-left corner unchanged; watermark not drawn")
	}
}

func TestPrepareRejectsGarbage(t *testing.T) {
	_, err := Prepare(bytes.NewReader([]byte("not an image")), time.Now(), 0, 0)
	if err == nil {
		t.Fatal("Prepare() should fail on undecodable input")
	}
}
