package config

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Header is the robot metadata a script declares in its leading comments:
//
//	# start_position: 15.50 8.50 45
//	# left_wheel: A
//	# right_wheel: B
//	# wheel_diameter: 56
//	# wheel_track: 112
type Header struct {
	StartPosition   Pose
	LeftWheel       string
	RightWheel      string
	WheelDiameterMM float64
	WheelTrackMM    float64
}

// DefaultHeader returns the metadata of a new script.
func DefaultHeader() Header {
	return Header{
		StartPosition:   Pose{X: 15.5, Y: 8.5, Theta: 45},
		LeftWheel:       "A",
		RightWheel:      "B",
		WheelDiameterMM: 56,
		WheelTrackMM:    112,
	}
}

var (
	startPattern  = regexp.MustCompile(`^(-?\d+(?:\.\d+)?) (-?\d+(?:\.\d+)?) (-?\d+(?:\.\d+)?)`)
	wheelPattern  = regexp.MustCompile(`[A-Fa-f]`)
	lengthPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ParseHeader reads the metadata comments from a script. Missing or malformed entries keep their
// defaults; the first occurrence of each entry wins.
func ParseHeader(r io.Reader) (Header, error) {
	h := DefaultHeader()
	seen := map[string]bool{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := headerEntry(scanner.Text())
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		switch key {
		case "start_position":
			if m := startPattern.FindStringSubmatch(value); m != nil {
				h.StartPosition = Pose{X: mustFloat(m[1]), Y: mustFloat(m[2]), Theta: mustFloat(m[3])}
			}
		case "left_wheel":
			if m := wheelPattern.FindString(value); m != "" {
				h.LeftWheel = strings.ToUpper(m)
			}
		case "right_wheel":
			if m := wheelPattern.FindString(value); m != "" {
				h.RightWheel = strings.ToUpper(m)
			}
		case "wheel_diameter":
			if m := lengthPattern.FindString(value); m != "" {
				h.WheelDiameterMM = mustFloat(m)
			}
		case "wheel_track":
			if m := lengthPattern.FindString(value); m != "" {
				h.WheelTrackMM = mustFloat(m)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Header{}, errors.Wrap(err, "failed to read script")
	}
	return h, nil
}

// ReadHeader parses the metadata of the script at path.
func ReadHeader(path string) (Header, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ParseHeader(f)
}

// headerEntry splits a "# key: value" line.
func headerEntry(line string) (string, string, bool) {
	rest, ok := strings.CutPrefix(line, "# ")
	if !ok {
		return "", "", false
	}
	key, value, ok := strings.Cut(rest, ": ")
	if !ok {
		return "", "", false
	}
	return key, value, true
}

// mustFloat parses a string the patterns above already matched as a number.
func mustFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		panic(err)
	}
	return v
}
