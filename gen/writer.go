package gen

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/boynton/commsdsl"
)

// Writer accumulates generated text and writes it to files. The first error
// sticks; later calls do nothing.
type Writer struct {
	Config  *commsdsl.Data
	OutDir  string
	Err     error
	Written []string

	logger *commsdsl.Logger
	buf    bytes.Buffer
	writer *bufio.Writer
}

func NewWriter(g *Generator) *Writer {
	return &Writer{Config: g.Config, OutDir: g.OutDir, logger: g.Logger}
}

func (w *Writer) Emit(s string) {
	if w.Err == nil && w.writer != nil {
		_, w.Err = w.writer.WriteString(s)
	}
}

func (w *Writer) Begin() {
	if w.Err != nil {
		return
	}
	w.buf.Reset()
	w.writer = bufio.NewWriter(&w.buf)
}

func (w *Writer) End() string {
	if w.Err != nil || w.writer == nil {
		return ""
	}
	w.writer.Flush()
	return w.buf.String()
}

// WriteFile writes content to rel under the output directory, creating
// directories as needed. Existing files are kept unless force-overwrite is set.
// The content goes to a temporary file that is renamed into place once
// complete, so a partial file is never visible at path.
func (w *Writer) WriteFile(rel string, content string) {
	if w.Err != nil {
		return
	}
	path := filepath.Join(w.OutDir, rel)
	if !w.Config.GetConfigBool("force-overwrite", true) && FileExists(path) {
		w.logger.Info("[" + path + " already exists, not overwriting]")
		return
	}
	if w.Err = os.MkdirAll(filepath.Dir(path), 0o755); w.Err != nil {
		return
	}
	if w.Err = writeAtomic(path, content); w.Err == nil {
		w.Written = append(w.Written, rel)
		w.logger.Debug("wrote " + path)
	}
}

func writeAtomic(path string, content string) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	writer := bufio.NewWriter(f)
	_, err = writer.WriteString(content)
	if err == nil {
		err = writer.Flush()
	}
	if err == nil {
		err = f.Chmod(0o644)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}

func (w *Writer) EmitTemplate(name string, tmplSource string, data interface{}, funcMap template.FuncMap) {
	if w.Err != nil {
		return
	}
	tmpl, err := template.New(name).Funcs(funcMap).Parse(tmplSource)
	if err != nil {
		w.Err = err
		return
	}
	var b bytes.Buffer
	if w.Err = tmpl.Execute(&b, data); w.Err != nil {
		return
	}
	w.Emit(b.String())
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const (
	placeholderPrefix = "#^#"
	placeholderSuffix = "#$#"
)

// ProcessTemplate replaces every #^#NAME#$# placeholder with its value from
// repl. Multi line values are indented to the column of the placeholder, and
// a line holding nothing but a placeholder with an empty value is dropped.
// Unknown placeholders are replaced with nothing.
func ProcessTemplate(templ string, repl map[string]string) string {
	var out strings.Builder
	lines := strings.Split(templ, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isPlaceholder(trimmed) && repl[placeholderName(trimmed)] == "" {
			continue
		}
		out.WriteString(replaceLine(line, repl))
		if i < len(lines)-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func isPlaceholder(s string) bool {
	return strings.HasPrefix(s, placeholderPrefix) && strings.HasSuffix(s, placeholderSuffix) &&
		strings.Count(s, placeholderPrefix) == 1 && len(s) > len(placeholderPrefix)+len(placeholderSuffix)
}

func placeholderName(s string) string {
	return s[len(placeholderPrefix) : len(s)-len(placeholderSuffix)]
}

func replaceLine(line string, repl map[string]string) string {
	var out strings.Builder
	for {
		start := strings.Index(line, placeholderPrefix)
		if start < 0 {
			out.WriteString(line)
			return out.String()
		}
		end := strings.Index(line[start+len(placeholderPrefix):], placeholderSuffix)
		if end < 0 {
			out.WriteString(line)
			return out.String()
		}
		end += start + len(placeholderPrefix)
		name := line[start+len(placeholderPrefix) : end]
		out.WriteString(line[:start])
		value := repl[name]
		if strings.Contains(value, "\n") {
			indent := strings.Repeat(" ", len(out.String())-strings.LastIndex(out.String(), "\n")-1)
			value = strings.ReplaceAll(value, "\n", "\n"+indent)
		}
		out.WriteString(value)
		line = line[end+len(placeholderSuffix):]
	}
}

// SortedKeys is used by backends that emit maps in a stable order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
