package canopy

import "testing"

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		input, want int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{5, 8},
		{128, 128},
		{129, 256},
		{1000, 1024},
	}
	for _, tt := range tests {
		if got := nextPowerOfTwo(tt.input); got != tt.want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestPoolAcquireReturnsPow2(t *testing.T) {
	var pool renderTexturePool
	img := pool.Acquire(100, 50)
	defer pool.Release(img)

	b := img.Bounds()
	if b.Dx() != 128 || b.Dy() != 64 {
		t.Errorf("size = %dx%d, want 128x64", b.Dx(), b.Dy())
	}
}

func TestPoolReleaseAndReacquire(t *testing.T) {
	var pool renderTexturePool
	img1 := pool.Acquire(64, 64)
	pool.Release(img1)
	if pool.idle() != 1 {
		t.Errorf("idle = %d, want 1", pool.idle())
	}

	img2 := pool.Acquire(60, 33)
	if img1 != img2 {
		t.Error("a request rounding to the same size should reuse the released image")
	}
	if pool.created != 1 || pool.idle() != 0 {
		t.Errorf("created/idle = %d/%d, want 1/0", pool.created, pool.idle())
	}
	pool.Release(img2)
}

func TestPoolDifferentSizes(t *testing.T) {
	var pool renderTexturePool
	a := pool.Acquire(32, 32)
	pool.Release(a)
	b := pool.Acquire(64, 64)
	if a == b {
		t.Error("different sizes should return different images")
	}
	pool.Release(b)
}

func TestPoolReleaseNil(t *testing.T) {
	var pool renderTexturePool
	pool.Release(nil)
	if pool.idle() != 0 {
		t.Error("releasing nil should not add to the pool")
	}
}
