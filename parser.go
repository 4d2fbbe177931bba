package olevba

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"www.velocidex.com/golang/olevba/expressions"
	"www.velocidex.com/golang/olevba/scanner"
)

// MacroSource is one module of VBA source code. Container is the file
// (or embedded file) holding the project.
type MacroSource struct {
	Container  string `json:"container"`
	StreamPath string `json:"stream_path"`
	Filename   string `json:"filename"`
	Code       string `json:"code"`

	Module *VBAModule `json:"-"`
}

type analysisKey struct {
	include_decoded bool
	deobfuscate     bool
}

// VBAParser finds and analyzes the VBA macros of a document. Containers
// embedded in the document (an OLE project inside a zip package, an
// ActiveMime blob inside XML or MHTML) are parsed by nested parsers.
type VBAParser struct {
	Filename string
	Type     ContainerType

	options *Options
	logger  logrus.FieldLogger
	depth   int

	ole        *OLEFile
	projects   []*VBAProject
	subparsers []*VBAParser

	// Source of a text container.
	text string

	modules      []*MacroSource
	form_strings []*FormString
	all_code     *string
	analysis     map[analysisKey]*scanner.Results
	closed       bool
}

// Open detects the container type of data and parses it. Unsupported
// input is an *UnsupportedFormatError.
func Open(data []byte, filename string, options *Options) (*VBAParser, error) {
	if options == nil {
		options = DefaultOptions()
	}
	return newParser(data, filename, options.normalize(), 0)
}

func OpenFile(filename string, options *Options) (*VBAParser, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Open(data, filename, options)
}

func newParser(
	data []byte, filename string,
	options *Options, depth int) (*VBAParser, error) {
	if depth > options.MaxDepth {
		return nil, formatErrorf("Container",
			"%v nested deeper than %d levels", filename, options.MaxDepth)
	}

	self := &VBAParser{
		Filename: filename,
		options:  options,
		logger:   options.Logger.WithField("file", filename),
		depth:    depth,
		analysis: make(map[analysisKey]*scanner.Results),
	}

	container_type, err := DetectContainer(data)
	if err != nil {
		return nil, &UnsupportedFormatError{Filename: filename}
	}

	self.logger.Debugf("Opening %v file", container_type)
	switch container_type {
	case TYPE_OLE:
		err = self.openOLE(data)
	case TYPE_OpenXML:
		err = self.openOpenXML(data)
	case TYPE_Word2003_XML:
		err = self.openWord2003XML(data)
	case TYPE_MHTML:
		err = self.openMHTML(data)
	case TYPE_TEXT:
		self.text = string(data)
	}

	if err != nil {
		self.Close()
		return nil, errors.Wrapf(err, "%v: %v container", filename, container_type)
	}

	self.Type = container_type
	return self, nil
}

func (self *VBAParser) openOLE(data []byte) error {
	ole, err := NewOLEFile(data, self.logger)
	if err != nil {
		return err
	}

	self.ole = ole
	self.projects = FindVBAProjects(ole)
	return nil
}

// openNested parses an embedded container, logging failures.
func (self *VBAParser) openNested(data []byte, filename string) {
	subparser, err := newParser(data, filename, self.options, self.depth+1)
	if err != nil {
		self.logger.WithFields(logrus.Fields{
			"embedded": filename,
			"error":    err,
		}).Info("Unable to parse embedded file")
		return
	}
	self.subparsers = append(self.subparsers, subparser)
}

// Subparsers returns the parsers of embedded containers.
func (self *VBAParser) Subparsers() []*VBAParser {
	return self.subparsers
}

func (self *VBAParser) HasMacros() bool {
	switch self.Type {
	case TYPE_TEXT:
		return true
	case TYPE_OLE:
		return len(self.projects) > 0
	}

	for _, subparser := range self.subparsers {
		if subparser.HasMacros() {
			return true
		}
	}
	return false
}

// ExtractModules returns the source of every module, depth first over
// embedded containers. Results are cached.
func (self *VBAParser) ExtractModules() []*MacroSource {
	if self.modules != nil {
		return self.modules
	}

	result := []*MacroSource{}
	if self.closed {
		return result
	}

	switch self.Type {
	case TYPE_TEXT:
		result = append(result, &MacroSource{
			Container: self.Filename,
			Filename:  self.Filename,
			Code:      self.text,
		})

	case TYPE_OLE:
		for _, project := range self.projects {
			modules, err := ExtractProjectModules(self.ole, project, self.logger)
			if err != nil {
				self.logger.WithFields(logrus.Fields{
					"project": project.Root,
					"error":   err,
				}).Warn("Unable to extract VBA project")
				continue
			}

			for _, module := range modules {
				result = append(result, &MacroSource{
					Container:  self.Filename,
					StreamPath: module.StreamPath,
					Filename:   module.Filename,
					Code:       module.Code,
					Module:     module,
				})
			}
		}

	default:
		for _, subparser := range self.subparsers {
			result = append(result, subparser.ExtractModules()...)
		}
	}

	self.modules = result
	return result
}

// ExtractFormStrings returns the printable strings of every VBA form.
func (self *VBAParser) ExtractFormStrings() []*FormString {
	if self.form_strings != nil {
		return self.form_strings
	}

	result := []*FormString{}
	if self.closed {
		return result
	}

	switch self.Type {
	case TYPE_TEXT:

	case TYPE_OLE:
		result = ExtractFormStrings(self.ole, self.Filename)

	default:
		for _, subparser := range self.subparsers {
			result = append(result, subparser.ExtractFormStrings()...)
		}
	}

	self.form_strings = result
	return result
}

// AllCode joins the source of every module and the form strings, each
// followed by a newline. A text container is used as is.
func (self *VBAParser) AllCode() string {
	if self.all_code != nil {
		return *self.all_code
	}

	result := ""
	if self.Type == TYPE_TEXT {
		result = self.text

	} else {
		builder := strings.Builder{}
		for _, module := range self.ExtractModules() {
			builder.WriteString(module.Code)
			builder.WriteString("\n")
		}

		for _, form_string := range self.ExtractFormStrings() {
			builder.WriteString(form_string.Value)
			builder.WriteString("\n")
		}
		result = builder.String()
	}

	self.all_code = &result
	return result
}

// Analyze scans all the code of the file at once. It returns nil when
// the file has no macros.
func (self *VBAParser) Analyze(include_decoded, deobfuscate bool) *scanner.Results {
	if !self.HasMacros() {
		return nil
	}

	key := analysisKey{include_decoded, deobfuscate}
	result, pres := self.analysis[key]
	if pres {
		return result
	}

	result = scanner.NewScanner(self.options.Rules, self.logger).Scan(
		self.AllCode(), include_decoded, deobfuscate)
	self.analysis[key] = result
	return result
}

// Summary gives the per category counts of Analyze.
func (self *VBAParser) Summary(include_decoded, deobfuscate bool) scanner.Summary {
	results := self.Analyze(include_decoded, deobfuscate)
	if results == nil {
		return scanner.Summary{}
	}
	return results.Summary()
}

// DeobfuscatedSource returns all the code with each printable VBA
// string expression replaced by its value.
func (self *VBAParser) DeobfuscatedSource() string {
	results := self.Analyze(false, true)
	if results == nil {
		return self.AllCode()
	}

	matches := []expressions.Match{}
	for _, finding := range results.ByType(scanner.VBA_STRING) {
		matches = append(matches, expressions.Match{
			Encoded: finding.Description,
			Decoded: finding.Keyword,
		})
	}

	return expressions.Reveal(self.AllCode(), matches)
}

// Flags renders the triage flags: the container tag followed by one
// letter per category found (M macros, A autoexec, S suspicious, I IOCs,
// H hex, B base64, D Dridex, V VBA expressions) or '-'.
func (self *VBAParser) Flags(include_decoded, deobfuscate bool) string {
	flags := []byte("--------")
	if self.HasMacros() {
		summary := self.Summary(include_decoded, deobfuscate)
		for i, present := range []bool{
			true,
			summary.AutoExec > 0,
			summary.Suspicious > 0,
			summary.IOCs > 0,
			summary.HexStrings > 0,
			summary.Base64Strings > 0,
			summary.DridexStrings > 0,
			summary.VBAStrings > 0,
		} {
			if present {
				flags[i] = "MASIHBDV"[i]
			}
		}
	}

	return TYPE2TAG[self.Type] + string(flags)
}

// Close releases the file data of this parser and all nested parsers.
func (self *VBAParser) Close() error {
	if self.closed {
		return nil
	}
	self.closed = true

	for _, subparser := range self.subparsers {
		subparser.Close()
	}

	self.ole = nil
	self.text = ""
	return nil
}

// ParseBuffer returns the VBA modules of a document held in memory.
func ParseBuffer(data []byte) ([]*VBAModule, error) {
	parser, err := Open(data, "", nil)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	return collectModules(parser), nil
}

// ParseFile returns the VBA modules of a document on disk.
func ParseFile(filename string) ([]*VBAModule, error) {
	parser, err := OpenFile(filename, nil)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	return collectModules(parser), nil
}

func collectModules(parser *VBAParser) []*VBAModule {
	result := []*VBAModule{}
	for _, source := range parser.ExtractModules() {
		if source.Module != nil {
			result = append(result, source.Module)
		}
	}
	return result
}
