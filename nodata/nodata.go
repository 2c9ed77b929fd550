// Package nodata identifies the nodata pixels of an image from a target
// colour and rewrites their colour.
package nodata

import (
	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/raster"
)

// Manager identifies as nodata the pixels whose samples are all within
// Tolerance of Target. With TouchEdges only the target pixels connected to
// the border of the image through other target pixels are nodata, the
// remaining target pixels being data.
//
// Nodata pixels take the NewNodata colour and target pixels holding data the
// NewData colour. Nil colours default to Target.
type Manager struct {
	Target     []float32
	Tolerance  float32
	TouchEdges bool
	NewData    []float32
	NewNodata  []float32
}

func (m *Manager) check(channels int) error {
	if len(m.Target) != channels {
		return errs.Configf("target has %d values, image has %d channels", len(m.Target), channels)
	}
	if m.NewData != nil && len(m.NewData) != channels {
		return errs.Configf("data colour has %d values, image has %d channels", len(m.NewData), channels)
	}
	if m.NewNodata != nil && len(m.NewNodata) != channels {
		return errs.Configf("nodata colour has %d values, image has %d channels", len(m.NewNodata), channels)
	}
	if m.Tolerance < 0 {
		return errs.Configf("tolerance must be positive, got %g", m.Tolerance)
	}
	return nil
}

func (m *Manager) isTarget(px []float32) bool {
	for c, v := range px {
		d := v - m.Target[c]
		if d > m.Tolerance || -d > m.Tolerance {
			return false
		}
	}
	return true
}

// Identify returns, for each pixel of img, whether it is nodata, and whether
// it has the target colour.
func (m *Manager) Identify(img *raster.Memory) (nodata, target []bool, err error) {
	info := img.Info()
	if err := m.check(info.Channels); err != nil {
		return nil, nil, err
	}
	w, h, nc := info.Width, info.Height, info.Channels
	data := img.Data()
	target = make([]bool, w*h)
	for i := range target {
		target[i] = m.isTarget(data[i*nc : (i+1)*nc])
	}
	if !m.TouchEdges {
		return target, target, nil
	}
	nodata = make([]bool, w*h)
	var queue []int
	push := func(i int) {
		if target[i] && !nodata[i] {
			nodata[i] = true
			queue = append(queue, i)
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
	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
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
	return nodata, target, nil
}

func same(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Process rewrites the colours of img in place and returns its mask (255 on
// data). changed tells whether a sample of img was modified.
func (m *Manager) Process(img *raster.Memory) (mask *raster.Memory, changed bool, err error) {
	nodata, target, err := m.Identify(img)
	if err != nil {
		return nil, false, err
	}
	info := img.Info()
	nc := info.Channels
	newData, newNodata := m.NewData, m.NewNodata
	if newData == nil {
		newData = m.Target
	}
	if newNodata == nil {
		newNodata = m.Target
	}
	mask = raster.Fill(info.MaskInfo(), 255)
	mdata := mask.Data()
	data := img.Data()
	for i, nd := range nodata {
		px := data[i*nc : (i+1)*nc]
		switch {
		case nd:
			mdata[i] = 0
			if !same(px, newNodata) {
				copy(px, newNodata)
				changed = true
			}
		case target[i]:
			if !same(px, newData) {
				copy(px, newData)
				changed = true
			}
		}
	}
	return mask, changed, nil
}
