// Package imageprep normalizes submitted photos before they enter the
// validation pipeline: it caps their size and stamps a provenance watermark
// (app name, capture time, coordinates) into the bottom-left corner.
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// MaxDimension caps the longer side of a prepared image in pixels.
	// Images already under the cap pass through unchanged.
	MaxDimension = 2048

	// AppLabel is the first watermark line identifying the app.
	AppLabel = "DrainGuard HCM"

	// JPEGQuality is the encode quality for prepared images.
	JPEGQuality = 85

	// fontScale sizes the watermark text relative to image width.
	fontScale = 0.025
)

// hcmLocation is the civil time zone all watermark timestamps are rendered in.
var hcmLocation = loadHCMLocation()

func loadHCMLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		// Containers without tzdata still get the right offset.
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

// watermarkFont is parsed once; Go Regular ships with the x/image module so
// preparation never depends on system fonts.
var watermarkFont = mustParseFont()

func mustParseFont() *opentype.Font {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		panic(fmt.Sprintf("imageprep: parse embedded font: %v", err))
	}
	return f
}

// Prepared is the output of Prepare: the normalized image plus its JPEG
// encoding, ready for fingerprinting and upload.
type Prepared struct {
	Image  image.Image
	JPEG   []byte
	Width  int
	Height int
}

// Prepare decodes, resizes and watermarks a submitted photo.
//
// This is a deterministic transform of (image, capturedAt, lat, lon): the same
// inputs always produce the same dimensions and watermark placement. The only
// error path is an undecodable source image, which is fatal to the submission.
func Prepare(src io.Reader, capturedAt time.Time, lat, lon float64) (*Prepared, error) {
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	// Fit scales down so the longer dimension equals the cap, preserving
	// aspect ratio; under-cap images keep their dimensions.
	img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)

	stamped := watermark(img, capturedAt, lat, lon)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, stamped, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode prepared image: %w", err)
	}

	bounds := stamped.Bounds()
	return &Prepared{
		Image:  stamped,
		JPEG:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// watermark draws the provenance block into the bottom-left corner: a
// semi-transparent background with the app label, localized timestamp and
// coordinates at 6 decimal places.
func watermark(img image.Image, capturedAt time.Time, lat, lon float64) image.Image {
	bounds := img.Bounds()
	canvas := image.NewNRGBA(bounds)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Src)

	lines := []string{
		AppLabel,
		capturedAt.In(hcmLocation).Format("2006-01-02 15:04:05"),
		fmt.Sprintf("%.6f, %.6f", lat, lon),
	}

	fontSize := float64(bounds.Dx()) * fontScale
	if fontSize < 10 {
		fontSize = 10
	}

	face, err := opentype.NewFace(watermarkFont, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		// Face creation only fails on invalid options; fall back to the
		// unstamped image rather than failing the submission.
		return canvas
	}
	defer face.Close()

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
	}

	padding := int(fontSize / 2)
	lineHeight := int(fontSize * 1.3)

	maxWidth := 0
	for _, line := range lines {
		if w := drawer.MeasureString(line).Ceil(); w > maxWidth {
			maxWidth = w
		}
	}

	blockHeight := lineHeight*len(lines) + padding*2
	blockWidth := maxWidth + padding*2
	if blockWidth > bounds.Dx() {
		blockWidth = bounds.Dx()
	}

	blockTop := bounds.Max.Y - blockHeight
	background := image.Rect(bounds.Min.X, blockTop, bounds.Min.X+blockWidth, bounds.Max.Y)
	draw.Draw(canvas, background, image.NewUniform(color.NRGBA{A: 150}), image.Point{}, draw.Over)

	ascent := face.Metrics().Ascent.Ceil()
	for i, line := range lines {
		drawer.Dot = fixed.P(bounds.Min.X+padding, blockTop+padding+ascent+i*lineHeight)
		drawer.DrawString(line)
	}

	return canvas
}
