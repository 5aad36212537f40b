package client

import "math"

// NormalizeAngle 将角度规约到 [-π, π)
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// ShortestAngle 从 from 转到 to 的最短有符号角度差
func ShortestAngle(from, to float64) float64 {
	return NormalizeAngle(to - from)
}
