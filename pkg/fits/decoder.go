package fits

// streamDecoder convolves rows as they arrive. It holds only
// KernelDim()*f input rows, where f is 2 for demosaiced input.
type streamDecoder struct {
	g       Geometry
	weights []float32
	cfa     [12]float32

	kdim     int
	f        int
	width    int
	height   int
	bufRows  int
	buf      []float32
	start    int
	rowStep  int
	outPlane int

	plane    int
	planes   int
	rowCount int
	outY     int
	emitted  int

	out      []float32
	negative bool
}

func newStreamDecoder(g Geometry, cfa CFA, out []float32) *streamDecoder {
	d := &streamDecoder{
		g:       g,
		weights: gaussianWeights(g.Size, g.Stride),
		kdim:    g.KernelDim(),
		f:       1,
		width:   g.In.Width,
		height:  g.In.Height,
		planes:  g.In.Channels,
		out:     out,
	}
	if g.CFA {
		d.f = 2
		d.cfa = cfa.Matrix()
	}
	d.bufRows = d.kdim * d.f
	d.buf = make([]float32, d.bufRows*d.width)
	d.start = d.bufRows - 1
	d.rowStep = g.Stride * d.f
	d.outPlane = g.Out.Width * g.Out.Height
	return d
}

// done reports whether every output row has been produced.
func (d *streamDecoder) done() bool {
	return d.emitted >= d.g.Out.Height*d.planes
}

// push consumes the next input row.
func (d *streamDecoder) push(row []float32) {
	if d.done() {
		return
	}
	for _, v := range row {
		if v < 0 {
			d.negative = true
			break
		}
	}
	slot := d.rowCount % d.bufRows
	copy(d.buf[slot*d.width:(slot+1)*d.width], row)

	if d.rowCount >= d.start && (d.rowCount-d.start)%d.rowStep == 0 && d.outY < d.g.Out.Height {
		// The window begins at the oldest buffered row.
		first := (d.rowCount + 1) % d.bufRows
		if d.g.CFA {
			d.emitCFA(first)
		} else {
			d.emitMono(first)
		}
		d.outY++
		d.emitted++
	}

	d.rowCount++
	if d.rowCount >= d.height {
		d.plane++
		d.rowCount = 0
		d.outY = 0
	}
}

func (d *streamDecoder) bufRow(first, y int) []float32 {
	slot := (first + y) % d.bufRows
	return d.buf[slot*d.width : (slot+1)*d.width]
}

func (d *streamDecoder) emitMono(first int) {
	ow := d.g.Out.Width
	dst := d.out[d.plane*d.outPlane+d.outY*ow:]
	for ox := 0; ox < ow; ox++ {
		x0 := ox * d.g.Stride
		var sum float32
		for ky := 0; ky < d.kdim; ky++ {
			src := d.bufRow(first, ky)
			w := d.weights[ky*d.kdim:]
			for kx := 0; kx < d.kdim; kx++ {
				sum += w[kx] * src[x0+kx]
			}
		}
		dst[ox] = sum
	}
}

func (d *streamDecoder) emitCFA(first int) {
	ow := d.g.Out.Width
	m := &d.cfa
	base := d.outY * ow
	for ox := 0; ox < ow; ox++ {
		x0 := ox * d.g.Stride
		var rsum, gsum, bsum float32
		for ky := 0; ky < d.kdim; ky++ {
			top := d.bufRow(first, 2*ky)
			bottom := d.bufRow(first, 2*ky+1)
			for kx := 0; kx < d.kdim; kx++ {
				w := d.weights[ky*d.kdim+kx]
				c := 2 * (x0 + kx)
				tl, tr := w*top[c], w*top[c+1]
				bl, br := w*bottom[c], w*bottom[c+1]
				rsum += tl*m[0] + tr*m[1] + bl*m[2] + br*m[3]
				gsum += tl*m[4] + tr*m[5] + bl*m[6] + br*m[7]
				bsum += tl*m[8] + tr*m[9] + bl*m[10] + br*m[11]
			}
		}
		d.out[base+ox] = rsum
		d.out[d.outPlane+base+ox] = gsum
		d.out[2*d.outPlane+base+ox] = bsum
	}
}
