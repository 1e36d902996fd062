package cpLog

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// TestSub tests the propagation of sub module names.
func TestSub(t *testing.T) {
	for _, test := range []struct {
		existing string
		new      string
		want     string
	}{
		{existing: "", new: "", want: ""},
		{existing: "existing", new: "", want: "existing"},
		{existing: "", new: "new", want: "new"},
		{existing: "existing", new: "new", want: "existing/new"},
	} {
		if got := sub(test.existing, test.new); got != test.want {
			t.Errorf("sub(%q, %q) = %q, want %q", test.existing, test.new, got, test.want)
		}
	}
}

// TestShouldOutput tests the comparison of the verbosity level of a logger vs. that of a message.
func TestShouldOutput(t *testing.T) {
	levels := []string{DebugLevel, InfoLevel, WarnLevel, ErrorLevel}
	for loggerLevel := -1; loggerLevel <= 3; loggerLevel++ {
		for i, messageLevel := range levels {
			want := i >= loggerLevel
			if got := shouldOutput(loggerLevel, messageLevel); got != want {
				t.Errorf("shouldOutput(%d, %q) = %v, want %v", loggerLevel, messageLevel, got, want)
			}
		}
	}
}

// TestWriterSubMods tests that modules appear correctly and that writes stay line-atomic across
// subbed loggers.
func TestWriterSubMods(t *testing.T) {
	var buf bytes.Buffer
	l := Writer(&buf, "", InfoLevel, false)
	a := l.Sub("sub_a")
	b := a.Sub("sub_b")

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			l.Infof("info from no_module")
			l.Debugf("debug")
		}()
		go func() {
			defer wg.Done()
			a.Infof("info from sub_a")
		}()
		go func() {
			defer wg.Done()
			b.Warnf("warn from sub_b")
		}()
	}
	wg.Wait()

	allowed := []string{
		"[ " + InfoLevel + "] info from no_module",
		"[sub_a " + InfoLevel + "] info from sub_a",
		"[sub_a/sub_b " + WarnLevel + "] warn from sub_b",
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 600)
	for _, line := range lines {
		matched := false
		for _, suffix := range allowed {
			if strings.HasSuffix(line, suffix) {
				matched = true
			}
		}
		assert.Truef(t, matched, "unexpected line %q", line)
	}
}

func TestZerologSub(t *testing.T) {
	var buf bytes.Buffer
	log := Zerolog(zerolog.New(&buf)).Sub("Client").Sub("API")
	log.Infof("hello %s", "world")
	assert.Contains(t, buf.String(), `"sublogger":"Client/API"`)
	assert.Contains(t, buf.String(), `"message":"hello world"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}
