package commsdsl

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger(test *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(&out)
	logger.MinLevel = LevelWarning
	require.NoError(test, logger.Err())

	logger.Info("hidden")
	logger.WarningAt(Location{Doc: "a.xml", Line: 3}, "demo.X", "odd property")
	require.NoError(test, logger.Err())
	require.Equal(test, 1, logger.WarningCount())

	logger.ErrorAt(ResolutionError, Location{Doc: "a.xml", Line: 7}, "demo.Y", "field \"Z\" is not defined")
	err := logger.Err()
	require.Error(test, err)
	var errs *Errors
	require.True(test, errors.As(err, &errs))
	require.Len(test, errs.Reports, 1)
	require.True(test, errs.Has(ResolutionError))
	require.False(test, errs.Has(GenerationError))
	require.Equal(test, "a.xml:7: demo.Y: field \"Z\" is not defined", err.Error())
	require.Len(test, logger.Reports(), 3)

	text := out.String()
	require.NotContains(test, text, "hidden")
	require.Contains(test, text, "odd property")
	require.Contains(test, text, "kind=resolution")
}

func TestLoggerWarnAsErr(test *testing.T) {
	logger := NewSilentLogger()
	logger.WarnAsErr = true
	logger.Warning("unknown option")
	require.Error(test, logger.Err())
	require.Equal(test, 0, logger.WarningCount())
	require.Equal(test, 1, logger.ErrorCount())
}

func TestLoggerSourceContext(test *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(&out)
	logger.Context = 1
	logger.addSource("s.xml", []byte("line1\nline2\nline3\nline4"))
	logger.ErrorAt(SemanticValidationError, Location{Doc: "s.xml", Line: 2}, "", "bad")
	text := out.String()
	require.Contains(test, text, "line1")
	require.Contains(test, text, ">   2\tline2")
	require.Contains(test, text, "line3")
	require.NotContains(test, text, "line4")
}
