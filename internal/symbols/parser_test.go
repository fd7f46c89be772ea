package symbols

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"levelup/internal/cpp"
)

const unexpandedIndex = `<?xml version="1.0" encoding="UTF-8"?>
<doxygenindex>
  <compound refid="a_8cpp" kind="file"><name>a.cpp</name></compound>
  <compound refid="classWidget" kind="class"><name>Widget</name></compound>
</doxygenindex>
`

const unexpandedFile = `<?xml version="1.0" encoding="UTF-8"?>
<doxygen>
<compounddef id="a_8cpp" kind="file">
<compoundname>a.cpp</compoundname>
<sectiondef kind="func">
<memberdef kind="function" id="a_8cpp_1add">
<type>MYINT</type>
<definition>MYINT add</definition>
<argsstring>(int a, int b)</argsstring>
<name>add</name>
<param><type>int</type><declname>a</declname></param>
<param><type>int</type><declname>b</declname></param>
<references refid="a_8cpp_1helper">helper</references>
<location file="src/a.cpp" line="3" bodystart="4" bodyend="6"/>
</memberdef>
<memberdef kind="enum" id="a_8cpp_1color">
<type></type>
<name>Color</name>
<enumvalue><name>Red</name><initializer>= 1</initializer></enumvalue>
<enumvalue><name>Blue</name><initializer></initializer></enumvalue>
<location file="src/a.cpp" line="10" bodystart="10" bodyend="13"/>
</memberdef>
</sectiondef>
</compounddef>
</doxygen>
`

const unexpandedClass = `<?xml version="1.0" encoding="UTF-8"?>
<doxygen>
<compounddef id="classWidget" kind="class">
<compoundname>Widget</compoundname>
<basecompoundref>Shape</basecompoundref>
<location file="src/widget.h" line="5" bodystart="5" bodyend="30"/>
<sectiondef kind="public-func">
<memberdef kind="function" id="classWidget_1bar">
<type>void</type>
<definition>void Widget::bar</definition>
<argsstring>()</argsstring>
<name>bar</name>
<location file="src/widget.h" line="21" bodystart="21" bodyend="21"/>
</memberdef>
</sectiondef>
</compounddef>
</doxygen>
`

const expandedIndex = `<?xml version="1.0" encoding="UTF-8"?>
<doxygenindex>
  <compound refid="a_8cpp" kind="file"><name>a.cpp</name></compound>
</doxygenindex>
`

const expandedFile = `<?xml version="1.0" encoding="UTF-8"?>
<doxygen>
<compounddef id="a_8cpp" kind="file">
<compoundname>a.cpp</compoundname>
<sectiondef kind="func">
<memberdef kind="function" id="a_8cpp_1add_other_id">
<type>int</type>
<definition>int add</definition>
<argsstring>(int a, int b)</argsstring>
<name>add</name>
<param><type>int</type><declname>a</declname></param>
<param><type>int</type><declname>b</declname></param>
<location file="src/a.cpp" line="3" bodystart="4" bodyend="6"/>
</memberdef>
</sectiondef>
</compounddef>
</doxygen>
`

func writeFixtures(t *testing.T) *XMLDirs {
	t.Helper()
	root := t.TempDir()
	unexp := filepath.Join(root, "xml_unexpanded")
	exp := filepath.Join(root, "xml_expanded")
	require.NoError(t, os.MkdirAll(unexp, 0755))
	require.NoError(t, os.MkdirAll(exp, 0755))

	files := map[string]string{
		filepath.Join(unexp, "index.xml"):       unexpandedIndex,
		filepath.Join(unexp, "a_8cpp.xml"):      unexpandedFile,
		filepath.Join(unexp, "classWidget.xml"): unexpandedClass,
		filepath.Join(exp, "index.xml"):         expandedIndex,
		filepath.Join(exp, "a_8cpp.xml"):        expandedFile,
	}
	for path, content := range files {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return &XMLDirs{Unexpanded: unexp, Expanded: exp}
}

func symbolByName(t *testing.T, syms []*Symbol, qualified string) *Symbol {
	t.Helper()
	for _, s := range syms {
		if s.QualifiedName == qualified {
			return s
		}
	}
	t.Fatalf("symbol %q not found", qualified)
	return nil
}

func TestParseAll(t *testing.T) {
	parser := NewParser(writeFixtures(t))
	syms, err := parser.ParseAll()
	require.NoError(t, err)

	add := symbolByName(t, syms, "add")
	require.Equal(t, KindFunction, add.Kind)
	require.Equal(t, "MYINT", add.ReturnType)
	require.Equal(t, "src/a.cpp", add.FilePath)
	require.Equal(t, 4, add.LineStart)
	require.Equal(t, 6, add.LineEnd)
	require.True(t, add.Calls["a_8cpp_1helper"], "call graph id should be recorded")

	wantParams := []cpp.Param{{Type: "int", Name: "a"}, {Type: "int", Name: "b"}}
	if diff := cmp.Diff(wantParams, add.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	widget := symbolByName(t, syms, "Widget")
	require.Equal(t, KindClass, widget.Kind)
	require.Equal(t, []string{"Shape"}, widget.BaseClasses)

	bar := symbolByName(t, syms, "Widget::bar")
	require.True(t, bar.IsMember)
	require.Equal(t, "Widget", bar.ClassName)
	require.Equal(t, "void", bar.ReturnType)

	color := symbolByName(t, syms, "Color")
	require.Equal(t, KindEnum, color.Kind)
	wantValues := []EnumValue{{Name: "Red", Value: "= 1"}, {Name: "Blue", Value: ""}}
	if diff := cmp.Diff(wantValues, color.EnumValues); diff != "" {
		t.Errorf("enum values mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAllMergesExpandedByLocation(t *testing.T) {
	parser := NewParser(writeFixtures(t))
	syms, err := parser.ParseAll()
	require.NoError(t, err)

	// The expanded run used a different Doxygen id for add; the merge keys
	// on (qualified name, file, line).
	add := symbolByName(t, syms, "add")
	require.Equal(t, "MYINT", add.ReturnType, "unexpanded spelling kept")
	require.Equal(t, "int", add.ReturnTypeExpanded, "expanded spelling merged")
	require.Len(t, add.ParamsExpanded, 2)
}

func TestParseAllMissingIndex(t *testing.T) {
	parser := NewParser(&XMLDirs{Unexpanded: t.TempDir()})
	_, err := parser.ParseAll()
	require.Error(t, err)
}
