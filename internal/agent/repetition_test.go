package agent

import "testing"

func TestRepetitionDetectorIgnoresShortContent(t *testing.T) {
	d := &repetitionDetector{}
	for i := 0; i < 5; i++ {
		if d.observe("ok") {
			t.Fatal("short content must never trigger repetition detection")
		}
	}
}

func TestRepetitionDetectorTriggersOnThirdRepeat(t *testing.T) {
	d := &repetitionDetector{}
	msg := "this is a sufficiently long repeated assistant message"

	if d.observe(msg) {
		t.Fatal("first occurrence must not trigger")
	}
	if d.observe(msg) {
		t.Fatal("second occurrence (count=1 prior) must not trigger")
	}
	if !d.observe(msg) {
		t.Fatal("third occurrence (count=2 prior) must trigger")
	}
}

func TestRepetitionDetectorWindowBounded(t *testing.T) {
	d := &repetitionDetector{}
	long := "alpha message that is long enough to fingerprint"
	d.observe(long)
	d.observe("bravo message that is long enough to fingerprint too")
	d.observe("charlie message that is long enough to fingerprint too")
	d.observe("delta message that is long enough to fingerprint too")

	if len(d.recent) != repetitionWindow {
		t.Fatalf("window len = %d, want %d", len(d.recent), repetitionWindow)
	}
	if d.observe(long) {
		t.Fatal("alpha should have fallen out of the bounded window")
	}
}

func TestFingerprintTruncatesLongContent(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	fp := fingerprintOf(string(long))
	if len(fp) != maxFingerprintLen {
		t.Fatalf("fingerprint len = %d, want %d", len(fp), maxFingerprintLen)
	}
}
