package confidence

import "testing"

func TestLidar(t *testing.T) {
	cases := []struct {
		name     string
		distance float64
		want     float64
		tol      float64
	}{
		{"below zero", -1, 0, 1e-9},
		{"sweet spot", 2, 0.98, 1e-9},
		{"past edge", 20, 0, 1e-9},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Lidar(c.distance, 0.3, 10, 15)
			if diff := got - c.want; diff > c.tol || diff < -c.tol {
				t.Errorf("Lidar(%v) = %v, want %v", c.distance, got, c.want)
			}
		})
	}
}

func TestNeuralHardCap(t *testing.T) {
	if got := Neural(150, 1, 100, 150); got != 0 {
		t.Errorf("Neural at hard cap = %v, want 0", got)
	}
	if got := Neural(50, 1, 100, 150); got != 0.85 {
		t.Errorf("Neural within calib domain = %v, want 0.85", got)
	}
}

func TestGPSAccuracyTierMonotoneNonIncreasing(t *testing.T) {
	samples := []float64{0, 4, 9, 24, 49, 99, 150}
	prev := GPSAccuracyTier(samples[0])
	for _, a := range samples[1:] {
		cur := GPSAccuracyTier(a)
		if cur > prev {
			t.Errorf("GPSAccuracyTier not monotone non-increasing: f(%v)=%v > prior %v", a, cur, prev)
		}
		prev = cur
	}
}

func TestCalibrationAgeDecay(t *testing.T) {
	if got := CalibrationAgeDecay(0); got != 1.0 {
		t.Errorf("fresh decay = %v, want 1.0", got)
	}
	fresh := CalibrationAgeDecay(1)
	stale := CalibrationAgeDecay(1000)
	if stale >= fresh {
		t.Errorf("decay should fall with age: fresh=%v stale=%v", fresh, stale)
	}
	if stale < 0.29 || stale > 0.35 {
		t.Errorf("stale decay should approach ~0.3 floor, got %v", stale)
	}
}

func TestDemZeroOutsideBand(t *testing.T) {
	if got := Dem(10, 5, 5, 0, 20, 2000); got != 0 {
		t.Errorf("Dem below min band = %v, want 0", got)
	}
	if got := Dem(3000, 5, 5, 0, 20, 2000); got != 0 {
		t.Errorf("Dem above max band = %v, want 0", got)
	}
}
