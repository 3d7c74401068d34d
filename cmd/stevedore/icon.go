//go:build uifrontend

package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

var (
	iconReady   = color.NRGBA{R: 0x1d, G: 0x63, B: 0xed, A: 255}
	iconLoading = color.NRGBA{R: 0x8a, G: 0x8a, B: 0x8a, A: 255}
)

// generateTrayIcon draws a 32x32 PNG: a stack of three containers on a hull.
// Grey while starting, blue when the engine is up.
func generateTrayIcon(ready bool) []byte {
	const size = 32
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	fill := iconLoading
	if ready {
		fill = iconReady
	}

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if isInShip(x, y) {
				img.SetNRGBA(x, y, fill)
			}
		}
	}

	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

// isInShip reports whether pixel (x, y) is part of the icon.
//
// Geometry (32x32 canvas):
//
//	Containers: rows 7-12 (one, centered) and 13-18 (two side by side),
//	            with a one-pixel gap between boxes
//	Hull:       rows 20-26, a trapezoid narrowing towards the keel
func isInShip(x, y int) bool {
	switch {
	case y >= 7 && y <= 12:
		return x >= 11 && x <= 20
	case y >= 13 && y <= 18:
		return (x >= 5 && x <= 14) || (x >= 17 && x <= 26)
	case y >= 20 && y <= 26:
		inset := (y - 20) / 2
		return x >= 2+inset && x <= 29-inset
	}
	return false
}
