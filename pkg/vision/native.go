package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sort"
	"sync"
)

var (
	enginesMu sync.RWMutex
	engines   = map[string]func() Engine{
		"native": func() Engine { return NewNativeEngine() },
	}
)

// RegisterEngine makes an engine constructor available to EngineByName.
func RegisterEngine(name string, ctor func() Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = ctor
}

// EngineByName returns a new engine registered under name. An empty name
// selects the native engine.
func EngineByName(name string) (Engine, error) {
	if name == "" {
		name = "native"
	}
	enginesMu.RLock()
	ctor, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown detection engine %q (available: %v)", name, EngineNames())
	}
	return ctor(), nil
}

// EngineNames lists the registered engines.
func EngineNames() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NativeEngine runs the threshold, dilate and outer-blob pipeline in pure Go.
type NativeEngine struct{}

// NewNativeEngine creates the pure Go engine.
func NewNativeEngine() *NativeEngine { return &NativeEngine{} }

// Name implements Engine.
func (e *NativeEngine) Name() string { return "native" }

// Ready implements Engine. The native engine has nothing to load.
func (e *NativeEngine) Ready() bool { return true }

// Detect implements Engine.
func (e *NativeEngine) Detect(ctx context.Context, img image.Image, p Params) ([]image.Rectangle, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	mask := Binarize(Intensity(img, p.Channel), p.Threshold)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Margin > 0 {
		mask = Dilate(mask, w, h, p.Margin)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return OuterBoxes(ctx, mask, w, h)
}

// HasAlpha reports whether img carries an alpha channel.
func HasAlpha(img image.Image) bool {
	if pal, ok := img.(*image.Paletted); ok {
		for _, c := range pal.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	}
	switch img.ColorModel() {
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model,
		color.AlphaModel, color.Alpha16Model:
		return true
	}
	return false
}

// Intensity returns the 8-bit field that gets thresholded, row-major with
// img.Bounds().Min at index 0.
func Intensity(img image.Image, ch Channel) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)

	useAlpha := ch == ChannelAlpha || (ch == ChannelAuto && HasAlpha(img))

	switch m := img.(type) {
	case *image.NRGBA:
		if useAlpha {
			for y := 0; y < h; y++ {
				row := m.Pix[y*m.Stride:]
				for x := 0; x < w; x++ {
					out[y*w+x] = row[x*4+3]
				}
			}
			return out
		}
	case *image.RGBA:
		if useAlpha {
			for y := 0; y < h; y++ {
				row := m.Pix[y*m.Stride:]
				for x := 0; x < w; x++ {
					out[y*w+x] = row[x*4+3]
				}
			}
			return out
		}
	case *image.Gray:
		if !useAlpha {
			for y := 0; y < h; y++ {
				copy(out[y*w:(y+1)*w], m.Pix[y*m.Stride:y*m.Stride+w])
			}
			return out
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if useAlpha {
				_, _, _, a := c.RGBA()
				out[y*w+x] = uint8(a >> 8)
			} else {
				out[y*w+x] = color.GrayModel.Convert(c).(color.Gray).Y
			}
		}
	}
	return out
}

// Binarize marks every value strictly above threshold.
func Binarize(field []uint8, threshold int) []bool {
	mask := make([]bool, len(field))
	for i, v := range field {
		mask[i] = int(v) > threshold
	}
	return mask
}

// Dilate grows mask with a square kernel of side 2*margin+1. Pixels outside
// the image never contribute.
func Dilate(mask []bool, w, h, margin int) []bool {
	if margin <= 0 {
		return mask
	}
	tmp := make([]bool, len(mask))
	out := make([]bool, len(mask))
	counts := make([]int, max(w, h)+1)

	for y := 0; y < h; y++ {
		row := mask[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			counts[x+1] = counts[x]
			if row[x] {
				counts[x+1]++
			}
		}
		for x := 0; x < w; x++ {
			lo, hi := max(0, x-margin), min(w, x+margin+1)
			tmp[y*w+x] = counts[hi]-counts[lo] > 0
		}
	}

	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			counts[y+1] = counts[y]
			if tmp[y*w+x] {
				counts[y+1]++
			}
		}
		for y := 0; y < h; y++ {
			lo, hi := max(0, y-margin), min(h, y+margin+1)
			out[y*w+x] = counts[hi]-counts[lo] > 0
		}
	}
	return out
}

// OuterBoxes labels 8-connected foreground blobs and returns the bounding box
// of every blob that is not enclosed in a hole of another blob. Background is
// treated as 4-connected, so a diagonal chain of pixels closes a hole. Boxes
// come out in raster order of each blob's first pixel.
func OuterBoxes(ctx context.Context, mask []bool, w, h int) ([]image.Rectangle, error) {
	if w <= 0 || h <= 0 || len(mask) != w*h {
		return nil, nil
	}

	labels := make([]int32, w*h)
	var boxes []image.Rectangle
	stack := make([]int, 0, 256)

	for y := 0; y < h; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for x := 0; x < w; x++ {
			i := y*w + x
			if !mask[i] || labels[i] != 0 {
				continue
			}
			label := int32(len(boxes) + 1)
			box := image.Rect(x, y, x+1, y+1)
			labels[i] = label
			stack = append(stack[:0], i)
			for len(stack) > 0 {
				j := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				jx, jy := j%w, j/w
				box = box.Union(image.Rect(jx, jy, jx+1, jy+1))
				for dy := -1; dy <= 1; dy++ {
					ny := jy + dy
					if ny < 0 || ny >= h {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						nx := jx + dx
						if nx < 0 || nx >= w {
							continue
						}
						k := ny*w + nx
						if mask[k] && labels[k] == 0 {
							labels[k] = label
							stack = append(stack, k)
						}
					}
				}
			}
			boxes = append(boxes, box)
		}
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	outside := exteriorBackground(mask, w, h)
	outer := make([]bool, len(boxes)+1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			l := labels[i]
			if l == 0 || outer[l] {
				continue
			}
			if x == 0 || y == 0 || x == w-1 || y == h-1 ||
				outside[i-1] || outside[i+1] || outside[i-w] || outside[i+w] {
				outer[l] = true
			}
		}
	}

	out := make([]image.Rectangle, 0, len(boxes))
	for i, b := range boxes {
		if outer[i+1] {
			out = append(out, b)
		}
	}
	return out, nil
}

// exteriorBackground floods 4-connected background from the image border.
func exteriorBackground(mask []bool, w, h int) []bool {
	seen := make([]bool, len(mask))
	var stack []int
	push := func(i int) {
		if !mask[i] && !seen[i] {
			seen[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}
	return seen
}
