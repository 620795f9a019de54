package encoder

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	// header decoders for DecodeConfig
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"media-variants/internal/variant"
)

var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// verifyOutput checks that path holds a plausible file of the given format.
func verifyOutput(path string, key variant.FormatKey) error {
	if err := nonEmpty(path); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch key {
	case variant.FormatWebP, variant.FormatPoster:
		_, format, err := image.DecodeConfig(f)
		if err != nil {
			return fmt.Errorf("output is not a readable image: %w", err)
		}
		want := "webp"
		if key == variant.FormatPoster {
			want = "jpeg"
		}
		if format != want {
			return fmt.Errorf("output is %s, expected %s", format, want)
		}

	case variant.FormatAVIF:
		head := make([]byte, 12)
		if _, err := io.ReadFull(f, head); err != nil {
			return fmt.Errorf("output too short: %w", err)
		}
		if !bytes.Equal(head[4:8], []byte("ftyp")) {
			return fmt.Errorf("output has no ftyp box")
		}
		switch string(head[8:12]) {
		case "avif", "avis", "mif1", "msf1":
		default:
			return fmt.Errorf("unexpected brand %q", head[8:12])
		}

	case variant.FormatWebmVP9, variant.FormatWebmAV1:
		head := make([]byte, 4)
		if _, err := io.ReadFull(f, head); err != nil {
			return fmt.Errorf("output too short: %w", err)
		}
		if !bytes.Equal(head, ebmlMagic) {
			return fmt.Errorf("output is not a matroska/webm file")
		}
	}
	return nil
}
