package validation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"testing"

	"github.com/anime-shed/vision-guard-go/internal/codec"
)

var defaultExtensions = []string{"jpg", "jpeg", "png", "bmp", "webp"}

const defaultMaxSize = 10 * 1024 * 1024

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func expectReason(t *testing.T, err error, want RejectionReason) *Rejection {
	t.Helper()
	var rejection *Rejection
	if !errors.As(err, &rejection) {
		t.Fatalf("Expected *Rejection with reason %s, got %v", want, err)
	}
	if rejection.Reason != want {
		t.Fatalf("Expected reason %s, got %s (%v)", want, rejection.Reason, rejection)
	}
	return rejection
}

func TestValidate_ValidImages(t *testing.T) {
	v := NewImageValidator(nil)
	sizes := [][2]int{{1, 1}, {64, 48}, {MaxDimension, 1}, {1, MaxDimension}}

	for _, size := range sizes {
		data := pngBytes(t, size[0], size[1])
		img, err := v.Validate("photo.PNG", data, defaultMaxSize, defaultExtensions)
		if err != nil {
			t.Fatalf("Expected %dx%d to validate, got: %v", size[0], size[1], err)
		}
		if img.Width != size[0] || img.Height != size[1] {
			t.Errorf("Expected %dx%d, got %dx%d", size[0], size[1], img.Width, img.Height)
		}
		if img.Format != "png" || img.Filename != "photo.PNG" || img.Channels != 1 {
			t.Errorf("Unexpected validated image metadata: %+v", img)
		}
	}
}

func TestValidate_ShortPayloadsAreUndecodable(t *testing.T) {
	v := NewImageValidator(nil)
	full := pngBytes(t, 4, 4)

	for n := 0; n < minPayloadSize; n++ {
		_, err := v.Validate("tiny.png", full[:n], defaultMaxSize, defaultExtensions)
		expectReason(t, err, UndecodableContent)
	}

	// Even twelve bytes of garbage reach the signature stage instead.
	_, err := v.Validate("tiny.png", bytes.Repeat([]byte{0x00}, minPayloadSize), defaultMaxSize, defaultExtensions)
	expectReason(t, err, BadSignature)
}

func TestValidate_StageOrdering(t *testing.T) {
	v := NewImageValidator(nil)
	data := pngBytes(t, 8, 8)

	t.Run("png bytes with disallowed jpg extension", func(t *testing.T) {
		_, err := v.Validate("photo.jpg", data, defaultMaxSize, []string{"png"})
		r := expectReason(t, err, BadExtension)
		if r.Extension != "jpg" {
			t.Errorf("Expected extension jpg, got %s", r.Extension)
		}
	})

	t.Run("extension before size", func(t *testing.T) {
		_, err := v.Validate("photo.gif", data, 4, defaultExtensions)
		expectReason(t, err, BadExtension)
	})

	t.Run("size before short payload", func(t *testing.T) {
		_, err := v.Validate("photo.png", []byte{0x89, 0x50}, 1, defaultExtensions)
		expectReason(t, err, TooLarge)
	})

	t.Run("signature before decode", func(t *testing.T) {
		gif := append([]byte("GIF89a"), make([]byte, 32)...)
		_, err := v.Validate("photo.png", gif, defaultMaxSize, defaultExtensions)
		expectReason(t, err, BadSignature)
	})
}

func TestValidate_ExtensionRules(t *testing.T) {
	v := NewImageValidator(nil)
	data := pngBytes(t, 2, 2)

	tests := []struct {
		name     string
		filename string
		allowed  []string
		wantErr  bool
	}{
		{"no extension", "photo", defaultExtensions, true},
		{"empty name", "", defaultExtensions, true},
		{"trailing dot", "photo.", defaultExtensions, true},
		{"upper case suffix", "PHOTO.PNG", defaultExtensions, false},
		{"dotted allow-list entry", "photo.png", []string{".PNG"}, false},
		{"double extension uses last", "photo.png.exe", defaultExtensions, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.filename, data, defaultMaxSize, tt.allowed)
			if tt.wantErr {
				expectReason(t, err, BadExtension)
				return
			}
			if err != nil {
				t.Errorf("Expected success, got: %v", err)
			}
		})
	}
}

func TestValidate_TooLargeDetails(t *testing.T) {
	v := NewImageValidator(nil)
	data := pngBytes(t, 16, 16)

	_, err := v.Validate("photo.png", data, 10, defaultExtensions)
	r := expectReason(t, err, TooLarge)
	if r.Size != int64(len(data)) || r.Limit != 10 {
		t.Errorf("Expected size=%d limit=10, got size=%d limit=%d", len(data), r.Size, r.Limit)
	}

	details := r.Details()
	if details["max_size"] != int64(10) {
		t.Errorf("Expected max_size detail, got %v", details)
	}
}

func TestValidate_DimensionTooLarge(t *testing.T) {
	v := NewImageValidator(nil)

	_, err := v.Validate("wide.png", pngBytes(t, MaxDimension+1, 1), defaultMaxSize, defaultExtensions)
	r := expectReason(t, err, DimensionTooLarge)
	if r.Width != MaxDimension+1 || r.Height != 1 {
		t.Errorf("Expected %dx1, got %dx%d", MaxDimension+1, r.Width, r.Height)
	}
}

func TestValidate_ZeroDimensionPNG(t *testing.T) {
	v := NewImageValidator(nil)

	for _, dims := range [][2]uint32{{0, 4}, {4, 0}} {
		data := pngBytes(t, 4, 4)
		binary.BigEndian.PutUint32(data[16:20], dims[0])
		binary.BigEndian.PutUint32(data[20:24], dims[1])
		binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

		_, err := v.Validate("empty.png", data, defaultMaxSize, defaultExtensions)
		r := expectReason(t, err, DimensionTooSmall)
		if r.Width != int(dims[0]) || r.Height != int(dims[1]) {
			t.Errorf("Expected %dx%d in rejection, got %dx%d", dims[0], dims[1], r.Width, r.Height)
		}
	}
}

func TestValidate_CorruptContent(t *testing.T) {
	v := NewImageValidator(nil)
	data := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0xAB}, 64)...)

	_, err := v.Validate("broken.png", data, defaultMaxSize, defaultExtensions)
	r := expectReason(t, err, UndecodableContent)
	if r.Cause == nil {
		t.Error("Expected decoder error to be attached")
	}
	if _, ok := r.Details()["error"]; !ok {
		t.Error("Expected error detail to be present")
	}
}

// stubCodec lets tests drive the decode stage directly
type stubCodec struct {
	probe     codec.Config
	probeErr  error
	decodeErr error
	verifyErr error
	real      codec.Codec
}

func (s stubCodec) Probe(data []byte) (codec.Config, error) {
	return s.probe, s.probeErr
}

func (s stubCodec) Decode(data []byte) (*codec.Handle, error) {
	if s.decodeErr != nil {
		return nil, s.decodeErr
	}
	return s.real.Decode(data)
}

func (s stubCodec) VerifyIntegrity(h *codec.Handle) error {
	return s.verifyErr
}

func TestValidate_DecodeStageWithStubCodec(t *testing.T) {
	data := pngBytes(t, 3, 3)
	verifyErr := errors.New("crc mismatch")

	tests := []struct {
		name  string
		codec stubCodec
		want  RejectionReason
	}{
		{"zero width header", stubCodec{probe: codec.Config{Width: 0, Height: 5}}, DimensionTooSmall},
		{"zero height header", stubCodec{probe: codec.Config{Width: 5, Height: 0}}, DimensionTooSmall},
		{"huge header", stubCodec{probe: codec.Config{Width: 5, Height: 20000}}, DimensionTooLarge},
		{"probe failure", stubCodec{probeErr: errors.New("unknown format")}, UndecodableContent},
		{"decode failure", stubCodec{probe: codec.Config{Width: 3, Height: 3}, decodeErr: errors.New("eof")}, UndecodableContent},
		{"integrity failure", stubCodec{probe: codec.Config{Width: 3, Height: 3}, verifyErr: verifyErr}, UndecodableContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.codec.real = codec.New()
			v := NewImageValidator(tt.codec)
			_, err := v.Validate("photo.png", data, defaultMaxSize, defaultExtensions)
			expectReason(t, err, tt.want)
		})
	}

	v := NewImageValidator(stubCodec{probe: codec.Config{Width: 3, Height: 3}, verifyErr: verifyErr, real: codec.New()})
	_, err := v.Validate("photo.png", data, defaultMaxSize, defaultExtensions)
	if !errors.Is(err, verifyErr) {
		t.Errorf("Expected rejection to wrap the integrity error, got %v", err)
	}
}

func TestReasonOf(t *testing.T) {
	if _, ok := ReasonOf(errors.New("plain")); ok {
		t.Error("Expected plain error to carry no reason")
	}
	reason, ok := ReasonOf(&Rejection{Reason: TooLarge})
	if !ok || reason != TooLarge {
		t.Errorf("Expected too_large, got %s", reason)
	}
}
