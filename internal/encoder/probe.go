package encoder

import (
	"context"
	"fmt"

	"media-variants/internal/mediatypes"

	"github.com/goccy/go-json"
)

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe returns the pixel dimensions of a source file. Images are read from
// their header; videos go through ffprobe next to the configured ffmpeg.
func (a *Adapter) Probe(ctx context.Context, path string, kind mediatypes.Kind) (int, int, error) {
	if kind == mediatypes.KindImage {
		return imageSize(path)
	}
	if kind != mediatypes.KindVideo {
		return 0, 0, fmt.Errorf("cannot probe %s files", kind)
	}

	bin, err := a.resolve(ffprobeName(a.ffmpegName()))
	if err != nil {
		return 0, 0, err
	}

	stdout, stderr, err := a.run(ctx, bin, []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe error: %w - %s", err, stderr)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			return s.Width, s.Height, nil
		}
	}
	return 0, 0, fmt.Errorf("no video stream in %s", path)
}

// ffprobeName derives the ffprobe binary from the ffmpeg one, so a custom
// encoder_binary_path like /opt/ffmpeg/bin/ffmpeg finds its sibling.
func ffprobeName(ffmpeg string) string {
	const suffix = "ffmpeg"
	if len(ffmpeg) >= len(suffix) && ffmpeg[len(ffmpeg)-len(suffix):] == suffix {
		return ffmpeg[:len(ffmpeg)-len(suffix)] + "ffprobe"
	}
	return "ffprobe"
}
