package commsdsl

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "COMMSDSL_LOG_LEVEL"
	EnvLogNoColor = "COMMSDSL_LOG_NOCOLOR"
)

type ErrorLevel int

const (
	LevelDebug ErrorLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelOff
)

func (lvl ErrorLevel) String() string {
	switch lvl {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "off"
}

// ErrorKind classifies a report by the pipeline stage that produced it.
type ErrorKind int

const (
	NoErrorKind ErrorKind = iota
	StructuralParseError
	SemanticValidationError
	ResolutionError
	ConfigurationWarning
	GenerationError
)

var errorKindNames = map[ErrorKind]string{
	NoErrorKind:             "",
	StructuralParseError:    "structure",
	SemanticValidationError: "semantic",
	ResolutionError:         "resolution",
	ConfigurationWarning:    "configuration",
	GenerationError:         "generation",
}

func (kind ErrorKind) String() string {
	return errorKindNames[kind]
}

// Location identifies the element of a schema document a report is about.
type Location struct {
	Doc  string
	Line int
}

func (loc Location) String() string {
	if loc.Doc == "" {
		return ""
	}
	if loc.Line <= 0 {
		return loc.Doc
	}
	return loc.Doc + ":" + strconv.Itoa(loc.Line)
}

type Report struct {
	Level ErrorLevel `json:"level"`
	Kind  ErrorKind  `json:"kind"`
	Loc   Location   `json:"loc,omitempty"`
	Path  string     `json:"path,omitempty"`
	Msg   string     `json:"msg"`
}

func (r *Report) String() string {
	var b strings.Builder
	if s := r.Loc.String(); s != "" {
		b.WriteString(s)
		b.WriteString(": ")
	}
	if r.Path != "" {
		b.WriteString(r.Path)
		b.WriteString(": ")
	}
	b.WriteString(r.Msg)
	return b.String()
}

// Errors is returned by the public entry points when any error level report was
// recorded.
type Errors struct {
	Reports []*Report
}

func (e *Errors) Error() string {
	switch len(e.Reports) {
	case 0:
		return "no errors"
	case 1:
		return e.Reports[0].String()
	}
	lines := make([]string, 0, len(e.Reports))
	for _, r := range e.Reports {
		lines = append(lines, r.String())
	}
	return fmt.Sprintf("%d errors:\n  %s", len(e.Reports), strings.Join(lines, "\n  "))
}

func (e *Errors) Has(kind ErrorKind) bool {
	for _, r := range e.Reports {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

// Logger is the single reporting sink shared by every phase. It is append only.
type Logger struct {
	MinLevel  ErrorLevel
	WarnAsErr bool
	// Context is the number of source lines printed around a located error, -1 disables it.
	Context int

	out      zerolog.Logger
	reports  []*Report
	errors   int
	warnings int
	sources  map[string][]string
}

func NewLogger(w io.Writer) *Logger {
	noColor := true
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		noColor = v
	}
	cw := zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      noColor,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
	l := &Logger{
		MinLevel: LevelInfo,
		Context:  -1,
		out:      zerolog.New(cw),
		sources:  make(map[string][]string),
	}
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		l.MinLevel = lvl
	}
	return l
}

// NewSilentLogger records reports without printing them.
func NewSilentLogger() *Logger {
	l := NewLogger(io.Discard)
	l.out = zerolog.Nop()
	return l
}

func parseLevel(raw string) (ErrorLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return LevelInfo, false
	case "trace", "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarning, true
	case "error":
		return LevelError, true
	case "off", "none", "disabled":
		return LevelOff, true
	}
	return LevelInfo, false
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func (l *Logger) addSource(doc string, src []byte) {
	l.sources[doc] = strings.Split(string(src), "\n")
}

func (l *Logger) Report(r *Report) {
	if r.Level == LevelWarning && l.WarnAsErr {
		r.Level = LevelError
	}
	l.reports = append(l.reports, r)
	switch r.Level {
	case LevelError:
		l.errors++
	case LevelWarning:
		l.warnings++
	}
	if r.Level < l.MinLevel {
		return
	}
	var ev *zerolog.Event
	switch r.Level {
	case LevelDebug:
		ev = l.out.Debug()
	case LevelInfo:
		ev = l.out.Info()
	case LevelWarning:
		ev = l.out.Warn()
	default:
		ev = l.out.Error()
	}
	if s := r.Loc.String(); s != "" {
		ev = ev.Str("at", s)
	}
	if r.Path != "" {
		ev = ev.Str("path", r.Path)
	}
	if r.Kind != NoErrorKind {
		ev = ev.Stringer("kind", r.Kind)
	}
	ev.Msg(r.Msg + l.sourceContext(r.Loc))
}

// sourceContext renders the lines around loc, the same way parse errors are
// annotated on the command line.
func (l *Logger) sourceContext(loc Location) string {
	if l.Context < 0 || loc.Line <= 0 {
		return ""
	}
	lines, ok := l.sources[loc.Doc]
	if !ok {
		return ""
	}
	line := loc.Line - 1
	begin := max(0, line-l.Context)
	end := min(len(lines), line+l.Context+1)
	var b strings.Builder
	for i := begin; i < end; i++ {
		mark := " "
		if i == line {
			mark = ">"
		}
		fmt.Fprintf(&b, "\n%s%4d\t%s", mark, i+1, lines[i])
	}
	return b.String()
}

func (l *Logger) Debug(msg string) {
	l.Report(&Report{Level: LevelDebug, Msg: msg})
}

func (l *Logger) Info(msg string) {
	l.Report(&Report{Level: LevelInfo, Msg: msg})
}

func (l *Logger) Warning(msg string) {
	l.Report(&Report{Level: LevelWarning, Kind: ConfigurationWarning, Msg: msg})
}

func (l *Logger) Error(msg string) {
	l.Report(&Report{Level: LevelError, Msg: msg})
}

func (l *Logger) ErrorAt(kind ErrorKind, loc Location, path, msg string) {
	l.Report(&Report{Level: LevelError, Kind: kind, Loc: loc, Path: path, Msg: msg})
}

func (l *Logger) WarningAt(loc Location, path, msg string) {
	l.Report(&Report{Level: LevelWarning, Kind: ConfigurationWarning, Loc: loc, Path: path, Msg: msg})
}

func (l *Logger) HadErrors() bool {
	return l.errors > 0
}

func (l *Logger) ErrorCount() int {
	return l.errors
}

func (l *Logger) WarningCount() int {
	return l.warnings
}

func (l *Logger) Reports() []*Report {
	return l.reports
}

// Err returns every error level report recorded so far, or nil.
func (l *Logger) Err() error {
	if l.errors == 0 {
		return nil
	}
	e := &Errors{}
	for _, r := range l.reports {
		if r.Level == LevelError {
			e.Reports = append(e.Reports, r)
		}
	}
	return e
}
