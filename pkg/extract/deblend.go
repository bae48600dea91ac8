package extract

import "math"

// deblend splits a connected component into sources by rethresholding it at
// exponentially spaced levels between the detection threshold and its peak.
// A branch becomes a separate source when it holds more than
// DeblendContrast of the component flux.
func (d *detector) deblend(pixels []int) [][]int {
	t0 := d.threshold
	peak := t0
	for _, i := range pixels {
		peak = math.Max(peak, float64(d.conv[i]))
	}
	if peak <= t0 {
		return [][]int{pixels}
	}

	n := d.p.DeblendThresholds
	levels := make([]float64, n-1)
	for i := range levels {
		f := float64(i+1) / float64(n)
		if t0 > 0 {
			levels[i] = t0 * math.Pow(peak/t0, f)
		} else {
			levels[i] = t0 + (peak-t0)*f
		}
	}
	return d.split(pixels, levels, d.branchFlux(pixels))
}

func (d *detector) split(pixels []int, levels []float64, total float64) [][]int {
	for l, t := range levels {
		var branches [][]int
		for _, sub := range d.components(pixels, t) {
			if len(sub) >= d.p.MinArea && d.branchFlux(sub) > d.p.DeblendContrast*total {
				branches = append(branches, sub)
			}
		}
		if len(branches) < 2 {
			continue
		}
		var seeds [][]int
		for _, b := range branches {
			seeds = append(seeds, d.split(b, levels[l+1:], total)...)
		}
		return d.assign(pixels, seeds)
	}
	return [][]int{pixels}
}

func (d *detector) branchFlux(pixels []int) float64 {
	var flux float64
	for _, i := range pixels {
		flux += math.Max(float64(d.conv[i])-d.threshold, 0)
	}
	return flux
}

// components returns the 8-connected subsets of pixels whose filtered
// value exceeds t.
func (d *detector) components(pixels []int, t float64) [][]int {
	width, height := d.img.Width, d.img.Height
	open := make(map[int]bool, len(pixels))
	for _, i := range pixels {
		if float64(d.conv[i]) > t {
			open[i] = true
		}
	}

	var out [][]int
	var stack []int
	for _, start := range pixels {
		if !open[start] {
			continue
		}
		delete(open, start)
		group := []int{}
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			group = append(group, i)
			px, py := i%width, i/width
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= width || ny >= height {
						continue
					}
					j := ny*width + nx
					if open[j] {
						delete(open, j)
						stack = append(stack, j)
					}
				}
			}
		}
		out = append(out, group)
	}
	return out
}

// assign distributes the pixels of a component between seeds. Pixels not
// already in a seed go to the seed with the nearest flux-weighted centroid.
func (d *detector) assign(pixels []int, seeds [][]int) [][]int {
	width := d.img.Width
	owner := make(map[int]int, len(pixels))
	cx := make([]float64, len(seeds))
	cy := make([]float64, len(seeds))
	groups := make([][]int, len(seeds))
	for s, seed := range seeds {
		var sum float64
		for _, i := range seed {
			owner[i] = s
			w := math.Max(float64(d.conv[i]), 1e-12)
			cx[s] += w * float64(i%width)
			cy[s] += w * float64(i/width)
			sum += w
		}
		cx[s] /= sum
		cy[s] /= sum
	}

	for _, i := range pixels {
		s, ok := owner[i]
		if !ok {
			x, y := float64(i%width), float64(i/width)
			best := math.Inf(1)
			for k := range seeds {
				if r := (x-cx[k])*(x-cx[k]) + (y-cy[k])*(y-cy[k]); r < best {
					best, s = r, k
				}
			}
		}
		groups[s] = append(groups[s], i)
	}
	return groups
}
