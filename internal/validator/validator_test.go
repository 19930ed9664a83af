package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/waveframe/internal/errs"
	"github.com/waveframe/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

// fakeProbe returns canned structural metadata without running ffprobe.
type fakeProbe struct {
	info ProbeInfo
	err  *errs.Error
}

func (f fakeProbe) Probe(_ context.Context, _ string) (ProbeInfo, *errs.Error) {
	return f.info, f.err
}

func writeAudio(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestValidateAcceptsGoodFile(t *testing.T) {
	path := writeAudio(t, "song.mp3", 2048)
	v := &Validator{probe: fakeProbe{info: ProbeInfo{
		DurationSeconds: 5.0,
		SampleRate:      44100,
		Bitrate:         192,
		Tags:            map[string]string{"title": "Song"},
	}}}

	res := v.Validate(context.Background(), path)
	if !res.IsValid {
		t.Fatalf("expected valid, got %v", res.Err)
	}
	if res.Audio.SizeBytes != 2048 {
		t.Errorf("size = %d, want actual file size 2048", res.Audio.SizeBytes)
	}
	if res.Audio.DurationSeconds != 5.0 {
		t.Errorf("duration = %f", res.Audio.DurationSeconds)
	}
	if !res.Audio.IsValid {
		t.Error("audio model should be marked valid")
	}
	if res.Audio.Metadata["title"] != "Song" {
		t.Errorf("metadata = %v", res.Audio.Metadata)
	}
}

func TestValidateMissingFile(t *testing.T) {
	v := &Validator{probe: fakeProbe{}}
	res := v.Validate(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"))
	if res.IsValid {
		t.Fatal("expected invalid")
	}
	if res.Err.Code != errs.CodeFileNotFound {
		t.Fatalf("code = %s, want FILE_NOT_FOUND", res.Err.Code)
	}
	if res.Message() == "" {
		t.Error("invalid result must carry a user-presentable message")
	}
}

func TestValidateRejectsUnknownExtensionBeforeProbe(t *testing.T) {
	path := writeAudio(t, "document.txt", 10)
	probeCalled := false
	v := &Validator{probe: probeFunc(func() (ProbeInfo, *errs.Error) {
		probeCalled = true
		return ProbeInfo{}, nil
	})}

	res := v.Validate(context.Background(), path)
	if res.IsValid || res.Err.Code != errs.CodeFileInvalidFormat {
		t.Fatalf("res = %+v, want FILE_INVALID_FORMAT", res.Err)
	}
	if probeCalled {
		t.Error("probe should be short-circuited by the extension check")
	}
}

type probeFunc func() (ProbeInfo, *errs.Error)

func (f probeFunc) Probe(context.Context, string) (ProbeInfo, *errs.Error) { return f() }

func TestValidateCorruptedFile(t *testing.T) {
	path := writeAudio(t, "broken.mp3", 100)
	v := &Validator{probe: fakeProbe{err: errs.New(errs.CodeFileCorrupted, "file could not be decoded")}}

	res := v.Validate(context.Background(), path)
	if res.IsValid || res.Err.Code != errs.CodeFileCorrupted {
		t.Fatalf("res = %+v, want FILE_CORRUPTED", res.Err)
	}
}

func TestValidateNoAudioStream(t *testing.T) {
	path := writeAudio(t, "mislabeled.mp3", 100)
	v := &Validator{probe: fakeProbe{err: errs.New(errs.CodeFileInvalidFormat, "no audio stream found")}}

	res := v.Validate(context.Background(), path)
	if res.IsValid || res.Err.Code != errs.CodeFileInvalidFormat {
		t.Fatalf("res = %+v, want FILE_INVALID_FORMAT", res.Err)
	}
}

func TestValidateZeroDuration(t *testing.T) {
	path := writeAudio(t, "silent.mp3", 100)
	v := &Validator{probe: fakeProbe{info: ProbeInfo{DurationSeconds: 0}}}

	res := v.Validate(context.Background(), path)
	if res.IsValid || res.Err.Code != errs.CodeFileCorrupted {
		t.Fatalf("res = %+v, want FILE_CORRUPTED for zero duration", res.Err)
	}
}

func TestValidateRejectsDirectory(t *testing.T) {
	v := &Validator{probe: fakeProbe{}}
	res := v.Validate(context.Background(), t.TempDir())
	if res.IsValid || res.Err.Code != errs.CodeFileInvalidFormat {
		t.Fatalf("res = %+v, want FILE_INVALID_FORMAT for directory", res.Err)
	}
}
