package onnx

import (
	"image"

	"github.com/disintegration/imaging"
)

// ToCHW resizes img to size x size and lays it out as planar RGB scaled to [0, 1]
func ToCHW(img image.Image, size int) []float32 {
	resized := imaging.Resize(img, size, size, imaging.Linear)

	channelSize := size * size
	buffer := make([]float32, channelSize*3)

	for y := 0; y < size; y++ {
		offset := y * size
		for x := 0; x < size; x++ {
			i := offset + x
			p := resized.Pix[y*resized.Stride+x*4 : y*resized.Stride+x*4+3]
			buffer[i] = float32(p[0]) / 255.0
			buffer[channelSize+i] = float32(p[1]) / 255.0
			buffer[channelSize*2+i] = float32(p[2]) / 255.0
		}
	}
	return buffer
}
