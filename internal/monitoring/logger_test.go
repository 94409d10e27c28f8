package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("sampler: %d ticks", 3)
	assert.Equal(t, "sampler: 3 ticks", got)

	got = ""
	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("muted") })
	assert.Empty(t, got, "no-op logger must not reach the previous logger")
}

func TestLogf_Default(t *testing.T) {
	assert.NotNil(t, Logf)
}
