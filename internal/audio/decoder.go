package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const pcmChunkSize = 4096

// FFmpegDecoder decodes audio files to raw PCM through an external ffmpeg
// process, one child process per stream
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegDecoder locates ffmpeg and ffprobe in PATH
func NewFFmpegDecoder() (*FFmpegDecoder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &FFmpegDecoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

// decodeArgs builds the ffmpeg argument list for a PCM stream matching the
// output's format. The seek flag goes before -i so ffmpeg seeks on the input
// instead of decoding up to the start position.
func decodeArgs(path string, output Output, startMs int64) []string {
	var args []string
	if startMs > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", float64(startMs)/1000.0))
	}
	return append(args,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(output.Channels()),
		"-ar", strconv.Itoa(output.SampleRate()),
		"-nostdin",
		"-loglevel", "quiet",
		"-",
	)
}

// DecodeFrom streams a file as signed 16-bit little-endian PCM into the
// output, starting at the given position. Blocks until the stream ends, the
// context is cancelled, or the child process fails.
func (d *FFmpegDecoder) DecodeFrom(ctx context.Context, path string, output Output, startMs int64) error {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, decodeArgs(path, output, startMs)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Kill and reap the child on every exit path
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
	}()

	if err := pumpPCM(ctx, stdout, output); err != nil {
		return err
	}
	return cmd.Wait()
}

// pumpPCM copies decoded audio from the child's stdout to the output device
// until EOF or cancellation
func pumpPCM(ctx context.Context, src io.Reader, output Output) error {
	buf := make([]byte, pcmChunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := output.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write to output: %w", err)
			}
		}
		if readErr != nil {
			return nil
		}
	}
}

// Duration asks ffprobe for the length of an audio file
func (d *FFmpegDecoder) Duration(path string) (time.Duration, error) {
	cmd := exec.Command(d.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Close releases decoder resources
func (d *FFmpegDecoder) Close() error {
	return nil
}
