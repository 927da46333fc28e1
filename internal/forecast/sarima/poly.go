package sarima

// Lag polynomials are stored as coefficient slices with c[0] == 1, so that
// c[k] multiplies B^k.

// polyMul multiplies two lag polynomials.
func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

// arPoly builds 1 - c1*B^s - c2*B^2s - ...
func arPoly(coefs []float64, s int) []float64 {
	p := make([]float64, len(coefs)*s+1)
	p[0] = 1
	for i, c := range coefs {
		p[(i+1)*s] = -c
	}
	return p
}

// maPoly builds 1 + c1*B^s + c2*B^2s + ...
func maPoly(coefs []float64, s int) []float64 {
	p := make([]float64, len(coefs)*s+1)
	p[0] = 1
	for i, c := range coefs {
		p[(i+1)*s] = c
	}
	return p
}

// diffPoly builds (1 - B^s)^n.
func diffPoly(n, s int) []float64 {
	p := []float64{1}
	step := make([]float64, s+1)
	step[0] = 1
	step[s] = -1
	for i := 0; i < n; i++ {
		p = polyMul(p, step)
	}
	return p
}
