package outcome

import (
	"errors"
	"testing"
)

func TestOutcome(t *testing.T) {
	t.Parallel()

	ok := OK("real")
	if ok.Degraded || ok.Reason != "" || ok.Get() != "real" {
		t.Errorf("OK() = %+v", ok)
	}

	cause := errors.New("dial tcp: timeout")
	fb := Fallback([]string{"placeholder"}, "http_request", cause)
	if !fb.Degraded || fb.Reason != "http_request" || !errors.Is(fb.Err, cause) {
		t.Errorf("Fallback() = %+v", fb)
	}
	if got := fb.Get(); len(got) != 1 || got[0] != "placeholder" {
		t.Errorf("Get() = %v", got)
	}
}
