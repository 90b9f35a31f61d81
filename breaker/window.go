package breaker

// slidingWindow 固定容量的环形采样窗口, 记录最近 size 次调用的成败。
// 并发安全由使用方保证。
type slidingWindow struct {
	size     int
	samples  []bool
	index    int
	count    int
	failures int
}

func newSlidingWindow(size int) *slidingWindow {
	return &slidingWindow{
		size:    size,
		samples: make([]bool, size),
	}
}

// record 写入一次调用结果, 窗口满时覆盖最旧的样本。
func (w *slidingWindow) record(success bool) {
	if w.count == w.size {
		// 被覆盖的旧样本若是失败, 先从计数中移除
		if !w.samples[w.index] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.samples[w.index] = success
	if !success {
		w.failures++
	}
	w.index = (w.index + 1) % w.size
}

func (w *slidingWindow) total() int {
	return w.count
}

func (w *slidingWindow) failureRate() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.count)
}

func (w *slidingWindow) reset() {
	w.index = 0
	w.count = 0
	w.failures = 0
}
