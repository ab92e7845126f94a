package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type failingCloser struct{ closed bool }

func (c *failingCloser) Close() error {
	c.closed = true
	return errors.New("boom")
}

func TestSetAndOr(t *testing.T) {
	t.Cleanup(func() { Set(nil) })

	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	Set(l)
	assert.Same(t, l, Get())
	assert.Same(t, l, Or(nil))

	other := logrus.New()
	assert.Same(t, other, Or(other))

	CloseAndLogError(&failingCloser{}, "archive")
	assert.Contains(t, buf.String(), "failed to close archive")
}

func TestCloseAndLogErrorNil(t *testing.T) {
	assert.NotPanics(t, func() { CloseAndLogError(nil, "nothing") })

	c := &failingCloser{}
	CloseAndLogError(c, "thing")
	assert.True(t, c.closed)
}
