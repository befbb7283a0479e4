package gen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/boynton/commsdsl"
)

func parseProtocol(test *testing.T, body string) *commsdsl.Protocol {
	test.Helper()
	p := commsdsl.NewProtocol(commsdsl.NewSilentLogger())
	doc := `<schema name="demo" endian="big" version="3">` + body + `</schema>`
	require.NoError(test, p.ParseData("demo.xml", []byte(doc)))
	require.NoError(test, p.Validate())
	return p
}

// recorder is a Factory creating views for messages and fields only, logging
// every phase call.
type recorder struct {
	calls    []string
	failName string
}

type recElem struct {
	r    *recorder
	name string
}

func (e *recElem) Prepare() bool {
	e.r.calls = append(e.r.calls, "prepare "+e.name)
	return e.name != e.r.failName
}

func (e *recElem) Write() bool {
	e.r.calls = append(e.r.calls, "write "+e.name)
	return true
}

func (r *recorder) CreateSchema(g *Generator, s *commsdsl.Schema) Elem {
	return &recElem{r, "schema"}
}
func (r *recorder) CreateNamespace(g *Generator, ns *commsdsl.Namespace) Elem { return nil }
func (r *recorder) CreateInterface(g *Generator, i *commsdsl.Interface) Elem  { return nil }
func (r *recorder) CreateMessage(g *Generator, m *commsdsl.Message) Elem {
	return &recElem{r, m.Name}
}
func (r *recorder) CreateFrame(g *Generator, f *commsdsl.Frame) Elem { return nil }
func (r *recorder) CreateField(g *Generator, f commsdsl.Field) Elem {
	return &recElem{r, f.Common().Name}
}
func (r *recorder) CreateLayer(g *Generator, l *commsdsl.Layer) Elem { return nil }

const orderSchema = `
<message name="Msg" id="1">
  <bundle name="b">
    <int name="x" type="uint8"/>
  </bundle>
  <int name="y" type="uint8"/>
</message>`

func TestGeneratorOrder(test *testing.T) {
	p := parseProtocol(test, orderSchema)
	r := &recorder{}
	g := NewGenerator(p, r, nil, test.TempDir())
	require.NoError(test, g.Generate())
	expected := []string{
		"prepare x", "prepare b", "prepare y", "prepare Msg", "prepare schema",
		"write schema", "write Msg", "write b", "write x", "write y",
	}
	require.Empty(test, cmp.Diff(expected, r.calls))
	require.Equal(test, 5, g.Count())
	require.NotNil(test, g.ElemOf(p.FindMessage("Msg")))
	require.Nil(test, g.ElemOf(p.CurrentSchema().Root))
}

func TestGeneratorPrepareFailure(test *testing.T) {
	p := parseProtocol(test, orderSchema)
	r := &recorder{failName: "b"}
	g := NewGenerator(p, r, nil, test.TempDir())
	err := g.Generate()
	require.Error(test, err)
	var errs *commsdsl.Errors
	require.ErrorAs(test, err, &errs)
	require.True(test, errs.Has(commsdsl.GenerationError))
	for _, call := range r.calls {
		require.NotContains(test, call, "write")
	}
}

func TestGeneratorErrorf(test *testing.T) {
	p := parseProtocol(test, orderSchema)
	g := NewGenerator(p, &recorder{}, nil, "")
	require.False(test, g.Errorf(p.FindMessage("Msg"), "cannot render %s", "Msg"))
	reports := p.Logger().Reports()
	last := reports[len(reports)-1]
	require.Equal(test, commsdsl.GenerationError, last.Kind)
	require.Equal(test, "Msg", last.Path)
	require.Equal(test, "cannot render Msg", last.Msg)
}

func TestProcessTemplate(test *testing.T) {
	templ := `class #^#NAME#$#
{
    #^#BODY#$#
    #^#EMPTY#$#
    int x = #^#VALUE#$#;
};`
	out := ProcessTemplate(templ, map[string]string{
		"NAME":  "Foo",
		"BODY":  "void a();\nvoid b();",
		"VALUE": "5",
	})
	expected := `class Foo
{
    void a();
    void b();
    int x = 5;
};`
	require.Equal(test, expected, out)
	require.Equal(test, "a  b", ProcessTemplate("a #^#MISSING#$# b", nil))
}

func TestWriter(test *testing.T) {
	p := parseProtocol(test, orderSchema)
	dir := test.TempDir()
	g := NewGenerator(p, &recorder{}, nil, dir)
	w := NewWriter(g)
	w.WriteFile("a/b.h", "one")
	require.NoError(test, w.Err)
	data, err := os.ReadFile(filepath.Join(dir, "a", "b.h"))
	require.NoError(test, err)
	require.Equal(test, "one", string(data))

	config := commsdsl.NewData()
	config.Put("force-overwrite", false)
	g = NewGenerator(p, &recorder{}, config, dir)
	w = NewWriter(g)
	w.WriteFile("a/b.h", "two")
	require.NoError(test, w.Err)
	require.Empty(test, w.Written)
	data, err = os.ReadFile(filepath.Join(dir, "a", "b.h"))
	require.NoError(test, err)
	require.Equal(test, "one", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "a"))
	require.NoError(test, err)
	require.Len(test, entries, 1)
	require.Equal(test, "b.h", entries[0].Name())

	w = NewWriter(NewGenerator(p, &recorder{}, nil, dir))
	w.WriteFile("a", "three")
	require.Error(test, w.Err)
	require.Empty(test, w.Written)
	entries, err = os.ReadDir(dir)
	require.NoError(test, err)
	require.Len(test, entries, 1)
}

func TestNames(test *testing.T) {
	require.Equal(test, "MsgStatus", ClassName("msg_status"))
	require.Equal(test, "Status", ClassName("status"))
	require.Equal(test, "msgStatus", AccessName("msg_status"))
	require.Equal(test, "status", AccessName("Status"))
	require.Equal(test, "msg_status", SnakeName("MsgStatus"))
	require.Equal(test, "MSG_STATUS", ConstName("MsgStatus"))
	require.Equal(test, "demo/sub/inner", NamespacePath("demo", "sub.inner"))
	require.Equal(test, "demo", NamespacePath("demo", ""))
}
