package derive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/podscope/pkg/domain"
)

// WhisperOptions configures the local transcription engine
type WhisperOptions struct {
	FFmpeg        string // ffmpeg binary, default "ffmpeg"
	Binary        string // whisper.cpp cli binary, default "whisper-cli"
	Model         string // path to the ggml model file
	ModelURL      string // where to download a missing model from, empty disables the download
	Fetcher       ModelFetcher
	CPUPercent    int    // share of cpu threads used by whisper, 1-100, default 80
	Language      string // default "en", "auto" to detect
	InitialPrompt string
	TempDir       string
}

// Whisper transcribes audio with a local whisper.cpp build. Audio is first converted to 16kHz
// mono wav by ffmpeg, the format whisper.cpp expects.
type Whisper struct {
	WhisperOptions
	modelMu sync.Mutex
}

// NewWhisper makes a Whisper with defaults applied
func NewWhisper(opts WhisperOptions) *Whisper {
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.Binary == "" {
		opts.Binary = "whisper-cli"
	}
	if opts.CPUPercent <= 0 || opts.CPUPercent > 100 {
		opts.CPUPercent = 80
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	return &Whisper{WhisperOptions: opts}
}

// Threads is the number of threads given to whisper
func (w *Whisper) Threads() int {
	return max(runtime.NumCPU()*w.CPUPercent/100, 1)
}

// Available checks that binaries are installed and the model is in place or can be downloaded
func (w *Whisper) Available() error {
	for _, bin := range []string{w.FFmpeg, w.Binary} {
		if _, err := exec.LookPath(bin); err != nil {
			return domain.NewStageError(domain.StageDerive, domain.CodeEngineUnavailable, fmt.Errorf("%s not found: %w", bin, err))
		}
	}
	if _, err := os.Stat(w.Model); err != nil {
		if errors.Is(err, fs.ErrNotExist) && w.ModelURL != "" && w.Fetcher != nil {
			return nil // fetched on first use
		}
		return domain.NewStageError(domain.StageDerive, domain.CodeEngineUnavailable, fmt.Errorf("whisper model: %w", err))
	}
	return nil
}

// ensureModel downloads a missing model once, concurrent transcriptions wait for it
func (w *Whisper) ensureModel(ctx context.Context) error {
	w.modelMu.Lock()
	defer w.modelMu.Unlock()
	return EnsureModel(ctx, w.Model, w.ModelURL, w.Fetcher)
}

// Transcribe returns the transcript of the audio file
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := w.Available(); err != nil {
		return "", err
	}
	if err := w.ensureModel(ctx); err != nil {
		return "", err
	}
	if _, err := os.Stat(audioPath); errors.Is(err, fs.ErrNotExist) {
		return "", domain.StageErrorf(domain.StageDerive, domain.CodeInconsistent, "audio file %s is missing", audioPath)
	}

	tmp, err := os.MkdirTemp(w.TempDir, "podscope-whisper-")
	if err != nil {
		return "", domain.LocalError(domain.StageDerive, err)
	}
	defer os.RemoveAll(tmp)

	start := time.Now()
	wav := filepath.Join(tmp, "audio.wav")
	if out, err := w.run(ctx, w.FFmpeg, "-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", audioPath, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", wav); err != nil {
		return "", domain.NewStageError(domain.StageDerive, domain.CodeBadInput,
			fmt.Errorf("decode %s: %w: %s", filepath.Base(audioPath), err, lastLine(out)))
	}

	base := filepath.Join(tmp, "transcript")
	args := []string{"-m", w.Model, "-f", wav, "-t", strconv.Itoa(w.Threads()), "-l", w.Language, "-nt", "-np", "-otxt", "-of", base}
	if w.InitialPrompt != "" {
		args = append(args, "--prompt", w.InitialPrompt)
	}
	if out, err := w.run(ctx, w.Binary, args...); err != nil {
		return "", domain.NewStageError(domain.StageDerive, domain.CodeEngineUnavailable,
			fmt.Errorf("transcribe %s: %w: %s", filepath.Base(audioPath), err, lastLine(out)))
	}

	data, err := os.ReadFile(base + ".txt") //nolint:gosec // temp dir we own
	if err != nil {
		return "", domain.NewStageError(domain.StageDerive, domain.CodeEngineUnavailable, fmt.Errorf("read transcript: %w", err))
	}
	lgr.Printf("[INFO] transcribed %s in %v, %d threads", filepath.Base(audioPath), time.Since(start).Round(time.Second), w.Threads())
	return joinLines(string(data)), nil
}

func (w *Whisper) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec // binaries come from config
	var out bytes.Buffer
	cmd.Stdout, cmd.Stderr = &out, &out
	err := cmd.Run()
	return out.Bytes(), err
}

// joinLines merges the per-segment lines whisper writes into running text
func joinLines(s string) string {
	lines := strings.Split(s, "\n")
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " ")
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
