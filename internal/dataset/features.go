package dataset

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const defaultImageGrid = 16

// extractFeatures decodes an image and samples a grid x grid lattice of
// grayscale intensities in [0, 1].
func extractFeatures(raw []byte, grid int) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("empty image")
	}
	features := make([]float64, grid*grid)
	stepX := float64(width) / float64(grid)
	stepY := float64(height) / float64(grid)
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			px := bounds.Min.X + int(math.Min(float64(width-1), float64(gx)*stepX))
			py := bounds.Min.Y + int(math.Min(float64(height-1), float64(gy)*stepY))
			r, g, b, _ := img.At(px, py).RGBA()
			features[gy*grid+gx] = (float64(r) + float64(g) + float64(b)) / (3 * 65535.0)
		}
	}
	return features, nil
}

// parseFeatures reads whitespace or comma separated floats.
func parseFeatures(payload []byte) ([]float64, error) {
	fields := strings.FieldsFunc(string(payload), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, errors.New("no values")
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", i)
		}
		out[i] = v
	}
	return out, nil
}

func formatFeatures(features []float64) []byte {
	var buf bytes.Buffer
	for i, v := range features {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
