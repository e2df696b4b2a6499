package main

import (
	"io"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupLogging(t *testing.T) {
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	setupLogging(true)
	assert.Equal(t, io.Discard, log.Writer())

	setupLogging(false)
	assert.Equal(t, os.Stderr, log.Writer())
}
