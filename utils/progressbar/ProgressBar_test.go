package progressbar

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestProgressBarRender(t *testing.T) {
	tests := []struct {
		current    float64
		elapsed    time.Duration
		wantFilled int
		wantSuffix string
	}{
		{0, 0, 0, "| [0.00% | elapsed: 0s]"},
		{5, 2 * time.Second, 5, "| [50.00% | elapsed: 2s]"},
		{10, 7 * time.Second, 10, "| [100.00% | elapsed: 7s]"},
	}

	pbar := NewProgressBar(10, 10, time.Second, false)
	for _, test := range tests {
		bar := pbar.render(test.current, test.elapsed)

		if !strings.HasPrefix(bar, "|") {
			t.Errorf("rendered bar does not start with a border: %v", bar)
		}
		if !strings.HasSuffix(bar, test.wantSuffix) {
			t.Errorf("unexpected bar suffix at progress %v \n\twant(%v)"+
				"\n\thave(%v)", test.current, test.wantSuffix, bar)
		}

		filled := strings.Count(bar, "█")
		if filled != test.wantFilled {
			t.Errorf("unexpected number of filled cells at progress %v "+
				"\n\twant(%v)\n\thave(%v)", test.current, test.wantFilled,
				filled)
		}
		if blank := strings.Count(bar, " "); blank+filled < 10 {
			t.Errorf("bar body narrower than the configured width at "+
				"progress %v: %v", test.current, bar)
		}
	}
}

func TestProgressBarRenderWidth(t *testing.T) {
	for _, width := range []int{1, 25, 40} {
		pbar := NewProgressBar(width, 100, time.Second, false)
		bar := pbar.render(100, 0)

		if filled := strings.Count(bar, "█"); filled != width {
			t.Errorf("full bar of width %v has wrong fill \n\twant(%v)"+
				"\n\thave(%v)", width, width, filled)
		}
	}
}

func TestProgressBarCloseTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic on double close")
		}
	}()

	pbar := NewProgressBar(10, 10, time.Second, false)
	pbar.Display()
	pbar.Close()
	pbar.Close()
}

func ExampleProgressBar() {
	pbar := NewProgressBar(4, 2, time.Second, false)
	fmt.Println(pbar.render(1, 3*time.Second))
	// Output:
	// |██  | [50.00% | elapsed: 3s]
}
