package dataset

import (
	"image"
	_ "image/gif"  // デコーダ登録
	_ "image/jpeg" //   〃
	_ "image/png"  //   〃
	"os"

	"golang.org/x/image/draw"
)

// LoadGrayImage decodes path and scales it to rows x cols grayscale with
// bilinear interpolation. Pixels are in [0, 1], row-major.
func LoadGrayImage(path string, rows, cols int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	dst := image.NewGray(image.Rect(0, 0, cols, rows))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	pixels := make([]float32, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			pixels[y*cols+x] = float32(dst.GrayAt(x, y).Y) / 255.0
		}
	}
	return pixels, nil
}
