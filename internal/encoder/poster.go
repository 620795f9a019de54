package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"

	"media-variants/internal/logging"
	"media-variants/internal/variant"

	"github.com/disintegration/imaging"
)

// posterBackend grabs one frame with ffmpeg and writes it as JPEG.
type posterBackend struct{ a *Adapter }

func (b *posterBackend) name() string { return "ffmpeg/poster" }

func (b *posterBackend) available() error {
	_, err := b.a.ffmpeg()
	return err
}

func (b *posterBackend) encode(ctx context.Context, src, out string, spec variant.TargetFormatSpec) (string, string, error) {
	bin, err := b.a.ffmpeg()
	if err != nil {
		return "", "", err
	}

	frame := func(seek bool) []string {
		args := []string{"-hide_banner", "-nostdin", "-i", src}
		if seek {
			args = append(args, "-ss", "00:00:01")
		}
		return append(args, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")
	}

	args := frame(true)
	stdout, stderr, err := b.a.run(ctx, bin, args)
	if err != nil || len(stdout) == 0 {
		// clips shorter than a second have no frame at 1s
		logging.Debug("Poster frame at 1s failed for %s: %v, retrying at 0s", src, err)
		args = frame(false)
		stdout, stderr, err = b.a.run(ctx, bin, args)
	}
	command := commandLine(bin, args)
	if err != nil {
		return command, stderr, fmt.Errorf("ffmpeg exited: %w", err)
	}
	if len(stdout) == 0 {
		return command, stderr, fmt.Errorf("ffmpeg produced no frame")
	}

	img, _, err := image.Decode(bytes.NewReader(stdout))
	if err != nil {
		return command, stderr, fmt.Errorf("decode frame: %w", err)
	}

	if spec.MaxWidth > 0 && img.Bounds().Dx() > spec.MaxWidth {
		img = imaging.Resize(img, spec.MaxWidth, 0, imaging.Lanczos)
	}

	f, err := os.OpenFile(out, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return command, stderr, err
	}
	quality := variant.ClampQuality(variant.FormatPoster, spec.Quality)
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		_ = f.Close()
		return command, stderr, fmt.Errorf("encode jpeg: %w", err)
	}
	if err := f.Close(); err != nil {
		return command, stderr, err
	}
	return command, stderr, nil
}
