package encoder

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"media-variants/internal/filesystem"
	"media-variants/internal/logging"
	"media-variants/internal/mediatypes"
	"media-variants/internal/metrics"
	"media-variants/internal/variant"
)

// Request describes one encode.
type Request struct {
	Source string
	Dest   string
	Spec   variant.TargetFormatSpec
}

// Result reports the outcome of an encode. Output is already truncated for
// storage; Command is the last command attempted.
type Result struct {
	Success            bool
	Output             string
	Command            string
	Backend            string
	EnvironmentFailure bool
}

// Options configures backend availability.
type Options struct {
	FFmpegPath  string
	CwebpPath   string
	AvifencPath string
	ExecEnabled bool
	VipsEnabled bool
	// Timeout bounds a single backend invocation; 0 disables it.
	Timeout time.Duration
}

// EnvironmentError reports a missing capability that retrying cannot fix.
type EnvironmentError struct {
	Command string
	Reason  string
}

func (e *EnvironmentError) Error() string {
	return e.Reason
}

// Runner executes a command and returns its stdout and stderr.
type Runner func(ctx context.Context, bin string, args []string) (stdout []byte, stderr string, err error)

// Adapter is the encoder front end used by the orchestrator.
type Adapter struct {
	opts      Options
	run       Runner
	lookPath  func(string) (string, error)
	vipsReady func() bool
	chains    map[variant.FormatKey][]backend

	encodersOnce sync.Once
	encoders     map[string]bool
}

// New builds an Adapter with the default backend chains.
func New(opts Options) *Adapter {
	a := &Adapter{
		opts:     opts,
		run:      execRunner,
		lookPath: exec.LookPath,
		vipsReady: func() bool {
			return opts.VipsEnabled && IsVipsAvailable()
		},
	}
	a.chains = map[variant.FormatKey][]backend{
		variant.FormatAVIF: {
			&vipsBackend{a: a},
			&avifencBackend{a: a},
			&ffmpegBackend{a: a, codec: "libaom-av1", still: true},
		},
		variant.FormatWebP: {
			&vipsBackend{a: a},
			&cwebpBackend{a: a},
			&ffmpegBackend{a: a, codec: "libwebp", still: true},
		},
		variant.FormatWebmVP9: {
			&ffmpegBackend{a: a, codec: "libvpx-vp9"},
		},
		variant.FormatWebmAV1: {
			&ffmpegBackend{a: a, codec: "libsvtav1"},
			&ffmpegBackend{a: a, codec: "libaom-av1"},
		},
		variant.FormatPoster: {
			&posterBackend{a: a},
		},
	}
	return a
}

// Encode tries each backend for the requested format in order and returns on
// the first verified output. The destination is only replaced on success.
func (a *Adapter) Encode(ctx context.Context, req Request) Result {
	key := req.Spec.Key
	chain := a.chains[key]
	if len(chain) == 0 {
		return Result{
			Output:             fmt.Sprintf("[environment] no backend for format %q", key),
			EnvironmentFailure: true,
		}
	}

	var (
		diags   []string
		res     Result
		envOnly = true
	)

	for _, b := range chain {
		name := b.name()
		if err := b.available(); err != nil {
			diags = append(diags, fmt.Sprintf("[environment] %s: %v", name, err))
			metrics.EncodeAttemptsTotal.WithLabelValues(string(key), family(name), "unavailable").Inc()
			continue
		}
		envOnly = false

		command, output, err := a.attempt(ctx, b, req)
		res.Command = command
		res.Backend = name
		if err == nil {
			logging.Debug("Encoded %s -> %s with %s", req.Source, req.Dest, name)
			return Result{
				Success: true,
				Output:  variant.TruncateOutput(output),
				Command: command,
				Backend: name,
			}
		}

		diag := fmt.Sprintf("[encode] %s: %v", name, err)
		if output = strings.TrimSpace(output); output != "" {
			diag += "\n" + output
		}
		diags = append(diags, diag)
		logging.Debug("Backend %s failed for %s: %v", name, req.Source, err)

		if ctx.Err() != nil {
			break
		}
	}

	res.Output = variant.TruncateOutput(strings.Join(diags, "\n"))
	res.EnvironmentFailure = envOnly
	return res
}

func (a *Adapter) attempt(ctx context.Context, b backend, req Request) (string, string, error) {
	key := req.Spec.Key
	start := time.Now()

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	tmp, err := filesystem.TempSibling(req.Dest)
	if err != nil {
		metrics.EncodeAttemptsTotal.WithLabelValues(string(key), family(b.name()), "failure").Inc()
		return "", "", err
	}

	command, output, err := b.encode(ctx, req.Source, tmp, req.Spec)
	if err == nil {
		err = verifyOutput(tmp, key)
	}
	if err == nil {
		err = filesystem.Commit(tmp, req.Dest)
	}

	metrics.EncodeDuration.WithLabelValues(string(key), family(b.name())).Observe(time.Since(start).Seconds())
	if err != nil {
		filesystem.Discard(tmp)
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", err, ctx.Err())
		}
		metrics.EncodeAttemptsTotal.WithLabelValues(string(key), family(b.name()), "failure").Inc()
		return command, output, err
	}
	metrics.EncodeAttemptsTotal.WithLabelValues(string(key), family(b.name()), "success").Inc()
	return command, output, nil
}

// Preflight checks the run-level preconditions for a source kind. A non-nil
// result is always an *EnvironmentError.
func (a *Adapter) Preflight(kind mediatypes.Kind) error {
	switch kind {
	case mediatypes.KindVideo:
		if !a.opts.ExecEnabled {
			return &EnvironmentError{Reason: "subprocess execution is disabled"}
		}
		if _, err := a.ffmpeg(); err != nil {
			return &EnvironmentError{Command: a.ffmpegName(), Reason: err.Error()}
		}
		return nil

	case mediatypes.KindImage:
		if a.vipsReady() {
			return nil
		}
		if !a.opts.ExecEnabled {
			return &EnvironmentError{Reason: "libvips unavailable and subprocess execution is disabled"}
		}
		for _, bin := range []string{a.cwebpName(), a.avifencName(), a.ffmpegName()} {
			if _, err := a.lookPath(bin); err == nil {
				return nil
			}
		}
		return &EnvironmentError{
			Command: a.ffmpegName(),
			Reason:  "libvips unavailable and none of cwebp, avifenc, ffmpeg found",
		}
	}
	return &EnvironmentError{Reason: fmt.Sprintf("no encoders for %s sources", kind)}
}

func (a *Adapter) ffmpegName() string {
	if a.opts.FFmpegPath != "" {
		return a.opts.FFmpegPath
	}
	return "ffmpeg"
}

func (a *Adapter) cwebpName() string {
	if a.opts.CwebpPath != "" {
		return a.opts.CwebpPath
	}
	return "cwebp"
}

func (a *Adapter) avifencName() string {
	if a.opts.AvifencPath != "" {
		return a.opts.AvifencPath
	}
	return "avifenc"
}

// ffmpeg resolves the ffmpeg binary.
func (a *Adapter) ffmpeg() (string, error) {
	return a.resolve(a.ffmpegName())
}

func (a *Adapter) resolve(bin string) (string, error) {
	if !a.opts.ExecEnabled {
		return "", errors.New("subprocess execution is disabled")
	}
	p, err := a.lookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%s not found", bin)
	}
	return p, nil
}

// hasEncoder reports whether ffmpeg was built with the named encoder. When
// the probe itself fails every encoder is assumed present and the encode
// attempt reports the real error.
func (a *Adapter) hasEncoder(name string) bool {
	a.encodersOnce.Do(func() {
		bin, err := a.ffmpeg()
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		out, _, err := a.run(ctx, bin, []string{"-hide_banner", "-encoders"})
		if err != nil {
			logging.Warn("Failed to list ffmpeg encoders: %v", err)
			return
		}
		a.encoders = parseEncoders(string(out))
	})
	if a.encoders == nil {
		return true
	}
	return a.encoders[name]
}

// parseEncoders reads `ffmpeg -encoders` output, whose rows look like
// " V....D libvpx-vp9           libvpx VP9".
func parseEncoders(out string) map[string]bool {
	found := make(map[string]bool)
	inList := false
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 1 && fields[0] == "------" {
			inList = true
			continue
		}
		if inList && len(fields) >= 2 {
			found[fields[1]] = true
		}
	}
	return found
}

func family(backendName string) string {
	if i := strings.IndexByte(backendName, '/'); i >= 0 {
		return backendName[:i]
	}
	return backendName
}
