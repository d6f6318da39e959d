// Package spline implements EvalSpline(json, t): a weighted cubic-Bezier
// keyframe track evaluator over a small JSON keyframe array.
package spline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Keyframe is one entry of the spline JSON array: a time/value pair with
// in/out tangents and weights controlling the cubic Bezier handles.
type Keyframe struct {
	T  float64 `json:"t"`
	V  float64 `json:"v"`
	TI float64 `json:"ti"`
	TO float64 `json:"to"`
	WI float64 `json:"wi"`
	WO float64 `json:"wo"`
}

// Eval parses jsonSrc as a []Keyframe and evaluates the track at t,
// clamping t to the track's [first.T, last.T] range. Within a segment the
// value is found by solving for the Bezier parameter u whose time
// component matches t (Newton's method, refined over 8 iterations from an
// initial 12-sample bracket), then evaluating the value component at u.
func Eval(jsonSrc string, t float64) (float64, error) {
	var frames []Keyframe
	if err := json.Unmarshal([]byte(jsonSrc), &frames); err != nil {
		return 0, fmt.Errorf("spline: invalid keyframe json: %w", err)
	}
	if len(frames) == 0 {
		return 0, errors.New("spline: empty keyframe array")
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].T < frames[j].T })

	if t <= frames[0].T {
		return frames[0].V, nil
	}
	last := len(frames) - 1
	if t >= frames[last].T {
		return frames[last].V, nil
	}

	for i := 0; i < last; i++ {
		a, b := frames[i], frames[i+1]
		if t >= a.T && t <= b.T {
			return evalSegment(a, b, t), nil
		}
	}
	return frames[last].V, nil
}

// segment control points for the weighted cubic Bezier between a and b:
// the out-tangent/weight of a and the in-tangent/weight of b each pull
// one third of the span toward their respective handle.
func segmentControlPoints(a, b Keyframe) (p0, p1, p2, p3 [2]float64) {
	dt := b.T - a.T
	p0 = [2]float64{a.T, a.V}
	p3 = [2]float64{b.T, b.V}
	p1 = [2]float64{a.T + a.WO*dt/3, a.V + a.TO*a.WO*dt/3}
	p2 = [2]float64{b.T - b.WI*dt/3, b.V - b.TI*b.WI*dt/3}
	return
}

func bezierComponent(p0, p1, p2, p3, u float64) float64 {
	mu := 1 - u
	return mu*mu*mu*p0 + 3*mu*mu*u*p1 + 3*mu*u*u*p2 + u*u*u*p3
}

func bezierDerivative(p0, p1, p2, p3, u float64) float64 {
	mu := 1 - u
	return 3*mu*mu*(p1-p0) + 6*mu*u*(p2-p1) + 3*u*u*(p3-p2)
}

const (
	sampleCount      = 12
	newtonIterations = 8
)

func evalSegment(a, b Keyframe, t float64) float64 {
	p0, p1, p2, p3 := segmentControlPoints(a, b)

	// Initial bracket: sample the time component across u in [0,1] and
	// pick the sample closest to t as the Newton seed.
	bestU := 0.0
	bestDist := math.MaxFloat64
	for i := 0; i <= sampleCount; i++ {
		u := float64(i) / float64(sampleCount)
		tu := bezierComponent(p0[0], p1[0], p2[0], p3[0], u)
		dist := tu - t
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			bestU = u
		}
	}

	u := bestU
	for i := 0; i < newtonIterations; i++ {
		tu := bezierComponent(p0[0], p1[0], p2[0], p3[0], u)
		deriv := bezierDerivative(p0[0], p1[0], p2[0], p3[0], u)
		if deriv == 0 {
			break
		}
		u -= (tu - t) / deriv
		if u < 0 {
			u = 0
		}
		if u > 1 {
			u = 1
		}
	}

	return bezierComponent(p0[1], p1[1], p2[1], p3[1], u)
}
