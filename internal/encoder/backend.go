package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"media-variants/internal/filesystem"
	"media-variants/internal/variant"
)

type backend interface {
	name() string
	// available reports why the backend cannot run at all.
	available() error
	// encode writes the derivative to out and returns the command line and
	// tool output.
	encode(ctx context.Context, src, out string, spec variant.TargetFormatSpec) (command, output string, err error)
}

func execRunner(ctx context.Context, bin string, args []string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

func commandLine(bin string, args []string) string {
	return strings.Join(append([]string{bin}, args...), " ")
}

// ffmpegBackend drives one ffmpeg encoder.
type ffmpegBackend struct {
	a     *Adapter
	codec string
	// still encodes a single image rather than a video stream
	still bool
}

func (b *ffmpegBackend) name() string { return "ffmpeg/" + b.codec }

func (b *ffmpegBackend) available() error {
	if _, err := b.a.ffmpeg(); err != nil {
		return err
	}
	if !b.a.hasEncoder(b.codec) {
		return fmt.Errorf("encoder %s not compiled in", b.codec)
	}
	return nil
}

func (b *ffmpegBackend) encode(ctx context.Context, src, out string, spec variant.TargetFormatSpec) (string, string, error) {
	bin, err := b.a.ffmpeg()
	if err != nil {
		return "", "", err
	}

	args := b.args(src, out, spec)
	command := commandLine(bin, args)
	_, stderr, err := b.a.run(ctx, bin, args)
	if err != nil {
		return command, stderr, fmt.Errorf("ffmpeg exited: %w", err)
	}
	return command, stderr, nil
}

func (b *ffmpegBackend) args(src, out string, spec variant.TargetFormatSpec) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", src}

	if spec.MaxWidth > 0 {
		args = append(args, "-vf", scaleFilter(spec.MaxWidth))
	}

	q := variant.ClampQuality(spec.Key, spec.Quality)
	switch b.codec {
	case "libvpx-vp9":
		bitrate := spec.Bitrate
		if bitrate == "" {
			bitrate = "0"
		}
		args = append(args,
			"-map", "0:v:0", "-map", "0:a:0?",
			"-c:v", "libvpx-vp9", "-crf", strconv.Itoa(q), "-b:v", bitrate,
			"-row-mt", "1", "-deadline", "good", "-cpu-used", "4",
			"-c:a", "libopus", "-b:a", "96k",
			"-f", "webm",
		)
	case "libsvtav1":
		args = append(args,
			"-map", "0:v:0", "-map", "0:a:0?",
			"-c:v", "libsvtav1", "-crf", strconv.Itoa(q), "-preset", "8",
		)
		if spec.Bitrate != "" {
			args = append(args, "-maxrate", spec.Bitrate, "-bufsize", spec.Bitrate)
		}
		args = append(args, "-c:a", "libopus", "-b:a", "96k", "-f", "webm")
	case "libaom-av1":
		if b.still {
			args = append(args,
				"-frames:v", "1", "-c:v", "libaom-av1", "-still-picture", "1",
				"-crf", strconv.Itoa(avifQuantizer(q)), "-cpu-used", "6",
				"-f", "avif",
			)
			break
		}
		bitrate := spec.Bitrate
		if bitrate == "" {
			bitrate = "0"
		}
		args = append(args,
			"-map", "0:v:0", "-map", "0:a:0?",
			"-c:v", "libaom-av1", "-crf", strconv.Itoa(q), "-b:v", bitrate,
			"-cpu-used", "6", "-row-mt", "1",
			"-c:a", "libopus", "-b:a", "96k",
			"-f", "webm",
		)
	case "libwebp":
		args = append(args,
			"-frames:v", "1", "-c:v", "libwebp", "-quality", strconv.Itoa(q),
			"-f", "webp",
		)
	}
	return append(args, out)
}

// scaleFilter caps the width at maxWidth without upscaling; -2 keeps the
// aspect ratio with an even height.
func scaleFilter(maxWidth int) string {
	return fmt.Sprintf("scale='min(%d,iw)':-2", maxWidth)
}

// avifQuantizer maps a 0-100 quality to the 0-63 AV1 quantizer scale,
// where lower is better.
func avifQuantizer(quality int) int {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return 63 - quality*63/100
}

type cwebpBackend struct{ a *Adapter }

func (b *cwebpBackend) name() string { return "cwebp" }

func (b *cwebpBackend) available() error {
	_, err := b.a.resolve(b.a.cwebpName())
	return err
}

func (b *cwebpBackend) encode(ctx context.Context, src, out string, spec variant.TargetFormatSpec) (string, string, error) {
	bin, err := b.a.resolve(b.a.cwebpName())
	if err != nil {
		return "", "", err
	}

	args := []string{"-quiet", "-metadata", "none", "-q", strconv.Itoa(variant.ClampQuality(spec.Key, spec.Quality))}
	if spec.MaxWidth > 0 {
		if w, _, err := imageSize(src); err == nil && w > spec.MaxWidth {
			args = append(args, "-resize", strconv.Itoa(spec.MaxWidth), "0")
		}
	}
	args = append(args, src, "-o", out)

	command := commandLine(bin, args)
	_, stderr, err := b.a.run(ctx, bin, args)
	if err != nil {
		return command, stderr, fmt.Errorf("cwebp exited: %w", err)
	}
	return command, stderr, nil
}

type avifencBackend struct{ a *Adapter }

func (b *avifencBackend) name() string { return "avifenc" }

func (b *avifencBackend) available() error {
	_, err := b.a.resolve(b.a.avifencName())
	return err
}

func (b *avifencBackend) encode(ctx context.Context, src, out string, spec variant.TargetFormatSpec) (string, string, error) {
	bin, err := b.a.resolve(b.a.avifencName())
	if err != nil {
		return "", "", err
	}

	// avifenc cannot resize
	if spec.MaxWidth > 0 {
		w, _, err := imageSize(src)
		if err != nil {
			return "", "", fmt.Errorf("read source size: %w", err)
		}
		if w > spec.MaxWidth {
			return "", "", fmt.Errorf("cannot scale %dpx source to %dpx", w, spec.MaxWidth)
		}
	}

	qz := strconv.Itoa(avifQuantizer(variant.ClampQuality(spec.Key, spec.Quality)))
	args := []string{"--min", qz, "--max", qz, "--speed", "6", "--ignore-exif", src, out}

	command := commandLine(bin, args)
	stdout, stderr, err := b.a.run(ctx, bin, args)
	output := strings.TrimSpace(string(stdout) + "\n" + stderr)
	if err != nil {
		return command, output, fmt.Errorf("avifenc exited: %w", err)
	}
	return command, output, nil
}

func imageSize(path string) (int, int, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

var errEmptyOutput = errors.New("backend produced an empty file")

func nonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errEmptyOutput
	}
	return nil
}
