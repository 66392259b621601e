package cluster

import "time"

// testOption adapts a plain function to ClusterOption, mirroring the
// teacher's TestOption helper used to reach otherwise-private fields from
// _test.go files in the same package.
type testOption struct {
	fn func(*Cluster)
}

func (o testOption) apply(c *Cluster) { o.fn(c) }

// fixedClock is a manually-advanced clock for deterministic tests, used in
// place of sleeping to exercise SPEC_FULL.md's end-to-end scenarios which
// are phrased in terms of an exact now (e.g. now=1_000_000ms).
type fixedClock struct {
	t time.Time
}

func newFixedClock(unixMilli int64) *fixedClock {
	return &fixedClock{t: time.UnixMilli(unixMilli)}
}

func (f *fixedClock) Now() time.Time { return f.t }

func (f *fixedClock) Set(unixMilli int64) { f.t = time.UnixMilli(unixMilli) }

func (f *fixedClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

// withFixedClock pins the cluster's clock to t.Now, letting the test advance
// time deterministically.
func withFixedClock(t *fixedClock) ClusterOption {
	return testOption{fn: func(c *Cluster) { c.now = t.Now }}
}
