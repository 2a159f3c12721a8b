package timer

import "math"

// FramePeriods returns the millisecond wait before each frame of a one-second
// cycle at the given frame rate.
//
// Integer millisecond timers cannot express most frame periods exactly
// (1000/30 = 33.33ms), so the base period round(1000/fps) is corrected by one
// millisecond on the frames closest to evenly spaced marks across the cycle.
// The returned periods always sum to exactly 1000ms.
//
// Returns nil when framesPerSecond is less than one.
func FramePeriods(framesPerSecond int) []int {
	if framesPerSecond < 1 {
		return nil
	}

	periods := make([]int, framesPerSecond)
	for i := range periods {
		periods[i] = FramePeriod(framesPerSecond, i)
	}

	return periods
}

// FramePeriod returns the millisecond wait before frame frameIndex of a
// one-second cycle at the given frame rate.
func FramePeriod(framesPerSecond, frameIndex int) int {
	base := int(math.RoundToEven(1000.0 / float64(framesPerSecond)))
	deficit := 1000 - base*framesPerSecond

	if deficit == 0 || frameIndex == 0 {
		return base
	}

	adjust := 1
	if deficit < 0 {
		adjust = -1
	}

	if frameIndex == framesPerSecond-1 {
		return base + adjust
	}

	interval := float64(framesPerSecond) / math.Abs(float64(deficit))
	prev := markDistance(frameIndex-1, interval)
	cur := markDistance(frameIndex, interval)
	next := markDistance(frameIndex+1, interval)

	if cur <= prev && cur < next {
		return base + adjust
	}

	return base
}

// markDistance is the circular distance from frame index to the nearest
// multiple of interval.
func markDistance(frameIndex int, interval float64) float64 {
	ahead := math.Mod(float64(frameIndex+1), interval)
	behind := interval - ahead

	return min(ahead, behind)
}
