package symbols

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"levelup/internal/cpp"
	"levelup/internal/logging"
)

// Parser extracts symbols from Doxygen XML. Two runs feed it: unexpanded
// XML defines the symbols, the macro-expanded XML is merged in afterwards.
// Doxygen ids are not stable across runs, so expanded data is matched by
// (qualified name, file, line) instead.
type Parser struct {
	unexpandedDir string
	expandedDir   string
}

// NewParser creates a parser over the XML directories of a Runner.Run.
func NewParser(dirs *XMLDirs) *Parser {
	return &Parser{unexpandedDir: dirs.Unexpanded, expandedDir: dirs.Expanded}
}

// flatText collects all character data of an element, including text nested
// inside <ref> children, preserving order.
type flatText struct {
	Text string
}

func (f *flatText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name == start.Name {
				f.Text = strings.TrimSpace(sb.String())
				return nil
			}
		}
	}
}

type doxIndex struct {
	Compounds []doxIndexCompound `xml:"compound"`
}

type doxIndexCompound struct {
	RefID string `xml:"refid,attr"`
	Kind  string `xml:"kind,attr"`
}

type doxCompoundFile struct {
	Compounds []doxCompoundDef `xml:"compounddef"`
}

type doxCompoundDef struct {
	ID       string       `xml:"id,attr"`
	Kind     string       `xml:"kind,attr"`
	Name     string       `xml:"compoundname"`
	Bases    []flatText   `xml:"basecompoundref"`
	Location *doxLocation `xml:"location"`
	Sections []doxSection `xml:"sectiondef"`
}

type doxSection struct {
	Kind    string      `xml:"kind,attr"`
	Members []doxMember `xml:"memberdef"`
}

type doxMember struct {
	ID           string         `xml:"id,attr"`
	Kind         string         `xml:"kind,attr"`
	Type         flatText       `xml:"type"`
	Name         string         `xml:"name"`
	Definition   string         `xml:"definition"`
	ArgsString   string         `xml:"argsstring"`
	Params       []doxParam     `xml:"param"`
	EnumValues   []doxEnumValue `xml:"enumvalue"`
	Location     *doxLocation   `xml:"location"`
	References   []doxRef       `xml:"references"`
	ReferencedBy []doxRef       `xml:"referencedby"`
}

type doxParam struct {
	Type     flatText `xml:"type"`
	DeclName string   `xml:"declname"`
}

type doxEnumValue struct {
	Name        string   `xml:"name"`
	Initializer flatText `xml:"initializer"`
}

type doxRef struct {
	RefID string `xml:"refid,attr"`
	Name  string `xml:",chardata"`
}

type doxLocation struct {
	File      string `xml:"file,attr"`
	Line      int    `xml:"line,attr"`
	BodyStart int    `xml:"bodystart,attr"`
	BodyEnd   int    `xml:"bodyend,attr"`
}

// mergeKey identifies a function across the two Doxygen runs.
type mergeKey struct {
	qualifiedName string
	file          string
	line          int
}

// ParseAll reads both XML trees and returns the merged symbol list.
func (p *Parser) ParseAll() ([]*Symbol, error) {
	var out []*Symbol
	byKey := make(map[mergeKey]*Symbol)

	if err := p.walk(p.unexpandedDir, func(def *doxCompoundDef) {
		out = append(out, p.collect(def, byKey)...)
	}); err != nil {
		return nil, err
	}

	if p.expandedDir != "" {
		if err := p.walk(p.expandedDir, func(def *doxCompoundDef) {
			p.mergeExpanded(def, byKey)
		}); err != nil {
			// Expanded data enriches but is not required.
			logging.Get(logging.CategorySymbols).Warn("Expanded Doxygen parse failed: %v", err)
		}
	}

	logging.Symbols("Parsed %d symbols from Doxygen XML", len(out))
	return out, nil
}

// walk visits every relevant compound file referenced by index.xml.
func (p *Parser) walk(dir string, visit func(*doxCompoundDef)) error {
	indexPath := filepath.Join(dir, "index.xml")
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return fmt.Errorf("doxygen index.xml not found at %s: %w", indexPath, err)
	}

	var idx doxIndex
	if err := xml.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("failed to parse %s: %w", indexPath, err)
	}

	for _, c := range idx.Compounds {
		switch c.Kind {
		case "file", "class", "struct", "namespace":
		default:
			continue
		}
		compoundPath := filepath.Join(dir, c.RefID+".xml")
		cdata, err := os.ReadFile(compoundPath)
		if err != nil {
			logging.SymbolsDebug("Skipping unreadable compound %s: %v", compoundPath, err)
			continue
		}
		var cf doxCompoundFile
		if err := xml.Unmarshal(cdata, &cf); err != nil {
			logging.SymbolsDebug("Skipping malformed compound %s: %v", compoundPath, err)
			continue
		}
		for i := range cf.Compounds {
			visit(&cf.Compounds[i])
		}
	}
	return nil
}

// collect builds symbols from one unexpanded compound definition.
func (p *Parser) collect(def *doxCompoundDef, byKey map[mergeKey]*Symbol) []*Symbol {
	var out []*Symbol

	// Class/struct compounds are symbols themselves.
	if def.Kind == "class" || def.Kind == "struct" {
		s := &Symbol{
			Kind:          KindClass,
			Name:          unqualify(def.Name),
			QualifiedName: def.Name,
			DoxygenID:     def.ID,
		}
		if def.Kind == "struct" {
			s.Kind = KindStruct
		}
		for _, b := range def.Bases {
			s.BaseClasses = append(s.BaseClasses, b.Text)
		}
		if def.Location != nil {
			s.FilePath = def.Location.File
			s.LineStart = lineOf(def.Location)
			s.LineEnd = def.Location.BodyEnd
		}
		out = append(out, s)
	}

	for _, sec := range def.Sections {
		for i := range sec.Members {
			m := &sec.Members[i]
			switch m.Kind {
			case "function":
				s := p.functionSymbol(def, m)
				out = append(out, s)
				byKey[keyOf(s)] = s
			case "enum":
				out = append(out, p.enumSymbol(def, m))
			}
		}
	}
	return out
}

func (p *Parser) functionSymbol(def *doxCompoundDef, m *doxMember) *Symbol {
	s := NewFunction()
	s.Name = m.Name
	s.QualifiedName = qualify(def, m.Name)
	s.DoxygenID = m.ID
	s.ReturnType = m.Type.Text
	s.Prototype = strings.TrimSpace(m.Definition + m.ArgsString)

	for _, prm := range m.Params {
		s.Params = append(s.Params, cpp.Param{Type: prm.Type.Text, Name: prm.DeclName})
	}

	if def.Kind == "class" || def.Kind == "struct" {
		s.IsMember = true
		s.ClassName = def.Name
	}

	for _, r := range m.References {
		s.Calls[r.RefID] = true
	}
	for _, r := range m.ReferencedBy {
		s.CalledBy[r.RefID] = true
	}

	if m.Location != nil {
		s.FilePath = m.Location.File
		s.LineStart = lineOf(m.Location)
		s.LineEnd = m.Location.BodyEnd
		if s.LineEnd == 0 {
			s.LineEnd = s.LineStart
		}
	}
	return s
}

func (p *Parser) enumSymbol(def *doxCompoundDef, m *doxMember) *Symbol {
	s := &Symbol{
		Kind:          KindEnum,
		Name:          m.Name,
		QualifiedName: qualify(def, m.Name),
		DoxygenID:     m.ID,
	}
	for _, ev := range m.EnumValues {
		s.EnumValues = append(s.EnumValues, EnumValue{Name: ev.Name, Value: ev.Initializer.Text})
	}
	if m.Location != nil {
		s.FilePath = m.Location.File
		s.LineStart = lineOf(m.Location)
		s.LineEnd = m.Location.BodyEnd
	}
	return s
}

// mergeExpanded folds macro-expanded return types and parameter lists into
// symbols collected from the unexpanded run.
func (p *Parser) mergeExpanded(def *doxCompoundDef, byKey map[mergeKey]*Symbol) {
	for _, sec := range def.Sections {
		for i := range sec.Members {
			m := &sec.Members[i]
			if m.Kind != "function" || m.Location == nil {
				continue
			}
			key := mergeKey{
				qualifiedName: qualify(def, m.Name),
				file:          m.Location.File,
				line:          lineOf(m.Location),
			}
			s, ok := byKey[key]
			if !ok {
				continue
			}
			s.ReturnTypeExpanded = m.Type.Text
			s.ParamsExpanded = nil
			for _, prm := range m.Params {
				s.ParamsExpanded = append(s.ParamsExpanded, cpp.Param{Type: prm.Type.Text, Name: prm.DeclName})
			}
		}
	}
}

func qualify(def *doxCompoundDef, name string) string {
	if def.Kind == "file" {
		return name
	}
	return def.Name + "::" + name
}

func unqualify(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}

func keyOf(s *Symbol) mergeKey {
	return mergeKey{qualifiedName: s.QualifiedName, file: s.FilePath, line: s.LineStart}
}

// lineOf prefers the body start over the declaration line; Doxygen reports
// both and edits operate on the definition.
func lineOf(loc *doxLocation) int {
	if loc.BodyStart > 0 {
		return loc.BodyStart
	}
	return loc.Line
}
