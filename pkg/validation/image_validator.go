package validation

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/anime-shed/vision-guard-go/internal/codec"
)

const (
	// MaxDimension bounds width and height to keep decompression bombs out
	MaxDimension = 10000

	minPayloadSize = 12
)

// imageSignatures lists the magic bytes accepted before decoding
var imageSignatures = []struct {
	format    string
	signature []byte
}{
	{"jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"png", []byte{0x89, 0x50, 0x4E, 0x47}},
	{"bmp", []byte{0x42, 0x4D}},
	{"webp", []byte{0x52, 0x49, 0x46, 0x46}},
	{"tiff", []byte{0x49, 0x49, 0x2A, 0x00}},
	{"tiff", []byte{0x4D, 0x4D, 0x00, 0x2A}},
}

// ValidatedImage is the output of a fully successful validation run
type ValidatedImage struct {
	Image    image.Image
	Width    int
	Height   int
	Channels int
	Format   string
	Filename string
}

// ImageValidator runs the ordered upload checks. It holds no mutable state and is
// safe for concurrent use.
type ImageValidator struct {
	codec        codec.Codec
	maxDimension int
}

// NewImageValidator creates a validator backed by the given codec
func NewImageValidator(c codec.Codec) *ImageValidator {
	if c == nil {
		c = codec.New()
	}
	return &ImageValidator{
		codec:        c,
		maxDimension: MaxDimension,
	}
}

// Validate runs extension, size, signature and decode checks in that order and stops at
// the first failure, returned as a *Rejection.
func (v *ImageValidator) Validate(filename string, data []byte, maxSize int64, allowedExtensions []string) (*ValidatedImage, error) {
	if err := v.checkExtension(filename, allowedExtensions); err != nil {
		return nil, err
	}
	if err := v.checkSize(filename, data, maxSize); err != nil {
		return nil, err
	}
	if err := v.checkSignature(filename, data); err != nil {
		return nil, err
	}
	return v.decode(filename, data)
}

func (v *ImageValidator) checkExtension(filename string, allowed []string) error {
	idx := strings.LastIndex(filename, ".")
	if filename == "" || idx < 0 {
		return &Rejection{
			Reason:   BadExtension,
			Message:  "file must have an extension",
			Filename: filename,
			Allowed:  allowed,
		}
	}

	extension := strings.ToLower(filename[idx+1:])
	for _, candidate := range allowed {
		if strings.ToLower(strings.TrimPrefix(candidate, ".")) == extension {
			return nil
		}
	}

	return &Rejection{
		Reason:    BadExtension,
		Message:   fmt.Sprintf("file extension '.%s' is not allowed", extension),
		Filename:  filename,
		Extension: extension,
		Allowed:   allowed,
	}
}

func (v *ImageValidator) checkSize(filename string, data []byte, maxSize int64) error {
	size := int64(len(data))
	if size > maxSize {
		return &Rejection{
			Reason:   TooLarge,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", size, maxSize),
			Filename: filename,
			Size:     size,
			Limit:    maxSize,
		}
	}
	return nil
}

func (v *ImageValidator) checkSignature(filename string, data []byte) error {
	if len(data) < minPayloadSize {
		return &Rejection{
			Reason:   UndecodableContent,
			Message:  "file is too small to be a valid image",
			Filename: filename,
			Size:     int64(len(data)),
		}
	}

	for _, entry := range imageSignatures {
		if bytes.HasPrefix(data, entry.signature) {
			return nil
		}
	}

	return &Rejection{
		Reason:   BadSignature,
		Message:  "file does not appear to be a valid image (invalid magic number)",
		Filename: filename,
	}
}

func (v *ImageValidator) decode(filename string, data []byte) (*ValidatedImage, error) {
	// The header alone is enough to refuse oversized images before pixels are allocated.
	header, err := v.codec.Probe(data)
	if err != nil {
		return nil, undecodable(filename, err)
	}
	if rejection := v.checkDimensions(filename, header.Width, header.Height); rejection != nil {
		return nil, rejection
	}

	handle, err := v.codec.Decode(data)
	if err != nil {
		return nil, undecodable(filename, err)
	}
	if err := v.codec.VerifyIntegrity(handle); err != nil {
		return nil, undecodable(filename, err)
	}
	if rejection := v.checkDimensions(filename, handle.Width(), handle.Height()); rejection != nil {
		return nil, rejection
	}

	return &ValidatedImage{
		Image:    handle.Image(),
		Width:    handle.Width(),
		Height:   handle.Height(),
		Channels: handle.Channels(),
		Format:   handle.Format(),
		Filename: filename,
	}, nil
}

func (v *ImageValidator) checkDimensions(filename string, width, height int) *Rejection {
	if width <= 0 || height <= 0 {
		return &Rejection{
			Reason:   DimensionTooSmall,
			Message:  "image has invalid dimensions",
			Filename: filename,
			Width:    width,
			Height:   height,
		}
	}
	if width > v.maxDimension || height > v.maxDimension {
		return &Rejection{
			Reason:   DimensionTooLarge,
			Message:  fmt.Sprintf("image dimensions exceed maximum %dx%d", v.maxDimension, v.maxDimension),
			Filename: filename,
			Width:    width,
			Height:   height,
			Limit:    int64(v.maxDimension),
		}
	}
	return nil
}

func undecodable(filename string, err error) *Rejection {
	return &Rejection{
		Reason:   UndecodableContent,
		Message:  "invalid image content",
		Filename: filename,
		Cause:    err,
	}
}
