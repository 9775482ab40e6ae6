package audio

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// captureCommand builds the platform recorder process that streams raw
// s16le PCM to stdout. arecord on Linux, sox or ffmpeg elsewhere.
func captureCommand(sampleRate, channels int, device string) (*exec.Cmd, error) {
	rate := strconv.Itoa(sampleRate)
	ch := strconv.Itoa(channels)

	switch runtime.GOOS {
	case "linux":
		if _, err := exec.LookPath("arecord"); err == nil {
			args := []string{"-q", "-f", "S16_LE", "-r", rate, "-c", ch, "-t", "raw"}
			if dev := resolveALSADevice(device); dev != "" {
				args = append(args, "-D", dev)
			}
			return exec.Command("arecord", args...), nil
		}
		if _, err := exec.LookPath("sox"); err == nil {
			return soxCommand(rate, ch), nil
		}
		return nil, fmt.Errorf("no capture tool found: install arecord (alsa-utils) or sox")

	case "darwin":
		if _, err := exec.LookPath("sox"); err == nil {
			return soxCommand(rate, ch), nil
		}
		if _, err := exec.LookPath("ffmpeg"); err == nil {
			input := ":0"
			if idx, err := strconv.Atoi(strings.TrimSpace(device)); err == nil {
				input = fmt.Sprintf(":%d", idx)
			}
			return exec.Command("ffmpeg",
				"-hide_banner", "-loglevel", "error",
				"-f", "avfoundation", "-i", input,
				"-ar", rate, "-ac", ch, "-f", "s16le", "-"), nil
		}
		return nil, fmt.Errorf("no capture tool found: install sox (brew install sox) or ffmpeg")

	case "windows":
		if _, err := exec.LookPath("ffmpeg"); err == nil {
			input := "audio=Microphone"
			if d := strings.TrimSpace(device); d != "" {
				input = "audio=" + d
			}
			return exec.Command("ffmpeg",
				"-hide_banner", "-loglevel", "error",
				"-f", "dshow", "-i", input,
				"-ar", rate, "-ac", ch, "-f", "s16le", "-"), nil
		}
		return nil, fmt.Errorf("no capture tool found: install ffmpeg")
	}

	return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
}

func soxCommand(rate, ch string) *exec.Cmd {
	return exec.Command("sox", "-q", "-d",
		"-r", rate, "-c", ch, "-b", "16", "-e", "signed-integer",
		"-t", "raw", "-")
}

// resolveALSADevice maps the configured selector to an ALSA device string.
// A bare number selects a card index; a name substring is matched against
// `arecord -l`; anything with a colon is passed through verbatim.
func resolveALSADevice(selector string) string {
	s := strings.TrimSpace(selector)
	if s == "" {
		return ""
	}
	if strings.Contains(s, ":") {
		return s
	}
	if idx, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("plughw:%d", idx)
	}
	for _, d := range ListDevices() {
		if strings.Contains(strings.ToLower(d.Name), strings.ToLower(s)) {
			return fmt.Sprintf("plughw:%d", d.Index)
		}
	}
	// Unmatched substring: fall back to the default device.
	return ""
}

// Device describes one capture device as reported by the platform.
type Device struct {
	Index int
	Name  string
}

var alsaCardRe = regexp.MustCompile(`^card (\d+): [^\[]*\[([^\]]+)\]`)

// ListDevices enumerates capture devices. Best-effort: on platforms without
// a usable enumerator it returns an empty list and the default device is used.
func ListDevices() []Device {
	if runtime.GOOS != "linux" {
		return nil
	}
	out, err := exec.Command("arecord", "-l").Output()
	if err != nil {
		return nil
	}
	return parseALSACards(string(out))
}

func parseALSACards(out string) []Device {
	var devices []Device
	seen := make(map[int]bool)
	for _, line := range strings.Split(out, "\n") {
		m := alsaCardRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || seen[idx] {
			continue
		}
		seen[idx] = true
		devices = append(devices, Device{Index: idx, Name: strings.TrimSpace(m[2])})
	}
	return devices
}

// frameReader reads fixed-size PCM frames from the capture stdout.
type frameReader struct {
	r        *bufio.Reader
	buf      []byte
	channels int
}

func newFrameReader(r io.Reader, sampleRate, channels, frameMs int) *frameReader {
	samples := sampleRate * frameMs / 1000
	return &frameReader{
		r:        bufio.NewReaderSize(r, samples*channels*2*4),
		buf:      make([]byte, samples*channels*2),
		channels: channels,
	}
}

// next blocks until a full frame of raw bytes is available and returns the
// mono samples. A short read at stream end returns the underlying error.
func (fr *frameReader) next() ([]int16, error) {
	if _, err := io.ReadFull(fr.r, fr.buf); err != nil {
		return nil, err
	}
	return downmix(fr.buf, fr.channels), nil
}
