package metadata

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"legato/pkg/models"
)

func defaultFormats() []string {
	return []string{".mp3", ".flac", ".wav", ".m4a"}
}

// writeWAV writes a minimal PCM wav file carrying the given amount of sample
// data. Mono, 16-bit, 8 kHz, so 16000 bytes of payload is one second.
func writeWAV(t *testing.T, path string, pcmBytes int) {
	t.Helper()
	var buf bytes.Buffer
	payload := make([]byte, pcmBytes)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+pcmBytes))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // pcm
	binary.Write(&buf, binary.LittleEndian, uint16(1))     // mono
	binary.Write(&buf, binary.LittleEndian, uint32(8000))  // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(16000)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))     // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))    // bit depth
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(pcmBytes))
	buf.Write(payload)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write wav file: %v", err)
	}
}

func TestIsAudioFile(t *testing.T) {
	e := NewExtractor(defaultFormats())
	for _, p := range []string{"/m/a.mp3", "/m/b.FLAC", "/m/c.wav"} {
		if !e.IsAudioFile(p) {
			t.Errorf("Expected %s recognized as audio", p)
		}
	}
	for _, p := range []string{"/m/notes.txt", "/m/clip.mkv", "/m/noext"} {
		if e.IsAudioFile(p) {
			t.Errorf("Expected %s rejected", p)
		}
	}
}

func TestGetContentType(t *testing.T) {
	e := NewExtractor(defaultFormats())
	cases := map[string]string{
		"/m/a.mp3":  "audio/mpeg",
		"/m/b.flac": "audio/flac",
		"/m/c.wav":  "audio/wav",
		"/m/d.m4a":  "audio/mp4",
		"/m/e.xyz":  "application/octet-stream",
	}
	for path, want := range cases {
		if got := e.GetContentType(path); got != want {
			t.Errorf("Expected %q for %s, got %q", want, path, got)
		}
	}
}

func TestFillSkipsNonAudio(t *testing.T) {
	e := NewExtractor(defaultFormats())
	f := models.MediaFile{Title: "untouched"}
	if err := e.Fill("/m/notes.txt", &f); err != nil {
		t.Fatalf("Failed to fill: %v", err)
	}
	if f.Title != "untouched" {
		t.Errorf("Expected non-audio file left alone, got %+v", f)
	}
}

func TestFillUntaggedFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Midnight Sonata.mp3")
	if err := os.WriteFile(path, []byte("not a real mp3 stream"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	e := NewExtractor(defaultFormats())
	var f models.MediaFile
	if err := e.Fill(path, &f); err != nil {
		t.Fatalf("Failed to fill: %v", err)
	}
	if f.Title != "Midnight Sonata" {
		t.Errorf("Expected title from filename, got %q", f.Title)
	}
	if f.Artist != "Unknown Artist" || f.Album != "Unknown Album" {
		t.Errorf("Expected placeholder tags, got %+v", f)
	}
}

func TestFillWAVDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	writeWAV(t, path, 16000)

	e := NewExtractor(defaultFormats())
	var f models.MediaFile
	if err := e.Fill(path, &f); err != nil {
		t.Fatalf("Failed to fill: %v", err)
	}
	if f.DurationMs != 1000 {
		t.Errorf("Expected one second of audio, got %d ms", f.DurationMs)
	}
	if f.MimeType != "audio/wav" {
		t.Errorf("Expected wav mime type, got %q", f.MimeType)
	}
}

func TestFillMissingFile(t *testing.T) {
	e := NewExtractor(defaultFormats())
	var f models.MediaFile
	if err := e.Fill(filepath.Join(t.TempDir(), "gone.mp3"), &f); err == nil {
		t.Error("Expected a missing file to fail")
	}
}
