package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"WARN":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"":      logrus.InfoLevel,
		"bogus": logrus.InfoLevel,
	}
	for in, want := range cases {
		t.Setenv("LOG_LEVEL", in)
		assert.Equal(t, want, LevelFromEnv(), "LOG_LEVEL=%q", in)
	}
}

func TestServiceHookAddsField(t *testing.T) {
	logger := Discard()
	logger.AddHook(serviceHook{service: "poster"})
	hook := test.NewLocal(logger)

	logger.Info("hello")
	logger.WithField("service", "other").Info("override")

	entries := hook.AllEntries()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "poster", entries[0].Data["service"])
		assert.Equal(t, "other", entries[1].Data["service"])
	}
}
