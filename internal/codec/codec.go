package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrNilHandle is returned when verification is asked about a handle that was never decoded
	ErrNilHandle = errors.New("codec: nil image handle")

	// ErrDimensionMismatch indicates the pixel data disagrees with the header
	ErrDimensionMismatch = errors.New("codec: decoded dimensions do not match header")
)

// Config is the header-only view of an encoded image
type Config struct {
	Width  int
	Height int
	Format string
}

// Handle is a decoded image. Verifying it does not invalidate it.
type Handle struct {
	img    image.Image
	format string
	header Config
}

// Image returns the decoded pixels
func (h *Handle) Image() image.Image { return h.img }

// Format returns the registered decoder name, e.g. "png"
func (h *Handle) Format() string { return h.format }

// Width returns the decoded width in pixels
func (h *Handle) Width() int { return h.img.Bounds().Dx() }

// Height returns the decoded height in pixels
func (h *Handle) Height() int { return h.img.Bounds().Dy() }

// Channels reports the number of color channels of the decoded color model
func (h *Handle) Channels() int {
	return channelsOf(h.img.ColorModel())
}

// Codec decodes raw upload bytes
type Codec interface {
	// Probe reads only the header
	Probe(data []byte) (Config, error)
	// Decode fully decodes the payload
	Decode(data []byte) (*Handle, error)
	// VerifyIntegrity checks that a decoded handle is structurally sound
	VerifyIntegrity(h *Handle) error
}

type stdCodec struct{}

// New returns a codec backed by the image format registry (jpeg, png, bmp, tiff, webp)
func New() Codec {
	return stdCodec{}
}

// Probe reports the header dimensions. A PNG or JPEG header that declares a zero width
// or height is returned as such, although the registry decoders refuse it.
func (stdCodec) Probe(data []byte) (Config, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if header, ok := rawHeader(data); ok && (header.Width == 0 || header.Height == 0) {
			return header, nil
		}
		return Config{}, err
	}
	return Config{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// rawHeader reads width and height straight from a PNG IHDR chunk or a JPEG SOF segment
func rawHeader(data []byte) (Config, bool) {
	switch {
	case bytes.HasPrefix(data, pngSignature):
		if len(data) < 24 || string(data[12:16]) != "IHDR" {
			return Config{}, false
		}
		return Config{
			Width:  int(binary.BigEndian.Uint32(data[16:20])),
			Height: int(binary.BigEndian.Uint32(data[20:24])),
			Format: "png",
		}, true
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		return jpegFrameHeader(data)
	}
	return Config{}, false
}

func jpegFrameHeader(data []byte) (Config, bool) {
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return Config{}, false
		}
		marker := data[i+1]
		switch {
		case marker == 0xFF:
			i++
			continue
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD8):
			i += 2
			continue
		case marker == 0xD9 || marker == 0xDA:
			return Config{}, false
		}

		length := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if isStartOfFrame(marker) {
			if i+9 > len(data) {
				return Config{}, false
			}
			return Config{
				Height: int(binary.BigEndian.Uint16(data[i+5 : i+7])),
				Width:  int(binary.BigEndian.Uint16(data[i+7 : i+9])),
				Format: "jpeg",
			}, true
		}
		if length < 2 {
			return Config{}, false
		}
		i += 2 + length
	}
	return Config{}, false
}

// isStartOfFrame matches SOF0..SOF15 except DHT (C4), JPG (C8) and DAC (CC)
func isStartOfFrame(marker byte) bool {
	return marker >= 0xC0 && marker <= 0xCF && marker != 0xC4 && marker != 0xC8 && marker != 0xCC
}

func (c stdCodec) Decode(data []byte) (*Handle, error) {
	header, err := c.Probe(data)
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return &Handle{img: img, format: format, header: header}, nil
}

func (stdCodec) VerifyIntegrity(h *Handle) error {
	if h == nil || h.img == nil {
		return ErrNilHandle
	}
	bounds := h.img.Bounds()
	if bounds.Dx() != h.header.Width || bounds.Dy() != h.header.Height {
		return fmt.Errorf("%w: header %dx%d, decoded %dx%d", ErrDimensionMismatch,
			h.header.Width, h.header.Height, bounds.Dx(), bounds.Dy())
	}
	return nil
}

func channelsOf(model color.Model) int {
	switch model {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return 1
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model, color.CMYKModel:
		return 4
	default:
		return 3
	}
}
