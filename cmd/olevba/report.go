package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"www.velocidex.com/golang/olevba"
	"www.velocidex.com/golang/olevba/scanner"
)

const (
	TRIAGE_ERROR       = "!ERROR"
	TRIAGE_UNSUPPORTED = "?"
)

type fileReport struct {
	Filename    string
	Type        olevba.ContainerType
	Flags       string
	HasMacros   bool
	Macros      []*olevba.MacroSource
	FormStrings []*olevba.FormString
	Results     *scanner.Results
	Revealed    string
	Err         error
}

// analyzeInput does all the work for one file. The parser is closed
// before returning so the report holds no file data.
func analyzeInput(item *input, config *settings) *fileReport {
	report := &fileReport{Filename: item.filename}

	data, err := item.load()
	if err != nil {
		report.Err = err
		return report
	}

	parser, err := olevba.Open(data, item.filename, config.options)
	if err != nil {
		report.Err = err
		return report
	}
	defer parser.Close()

	report.Type = parser.Type
	report.HasMacros = parser.HasMacros()
	report.Flags = parser.Flags(config.include_decoded, config.deobfuscate)
	if !report.HasMacros {
		return report
	}

	report.Macros = parser.ExtractModules()
	report.FormStrings = parser.ExtractFormStrings()
	report.Results = parser.Analyze(config.include_decoded, config.deobfuscate)
	if config.reveal {
		report.Revealed = parser.DeobfuscatedSource()
	}

	return report
}

func (self *fileReport) triageFlags() string {
	if self.Err == nil {
		return self.Flags
	}

	unsupported := &olevba.UnsupportedFormatError{}
	if errors.As(self.Err, &unsupported) {
		return TRIAGE_UNSUPPORTED
	}
	return TRIAGE_ERROR
}

func printTriage(out io.Writer, reports []*fileReport) {
	fmt.Fprintf(out, "%-12s %s\n", "Flags", "Filename")
	fmt.Fprintf(out, "%-12s %s\n", strings.Repeat("-", 11), strings.Repeat("-", 31))

	for _, report := range reports {
		fmt.Fprintf(out, "%-12s %s\n", report.triageFlags(), report.Filename)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "(Flags: OpX=OpenXML, XML=Word2003XML, MHT=MHTML, TXT=Text, "+
		"M=Macros, A=Auto-executable, S=Suspicious keywords, I=IOCs, H=Hex strings, "+
		"B=Base64 strings, D=Dridex strings, V=VBA strings, ?=Unknown)")
}

// printableCell quotes values holding control characters so the table
// stays on one line per row.
func printableCell(value string) string {
	if scanner.IsPrintable(value) && !strings.ContainsAny(value, "\r\n\t\x0b\x0c") {
		return value
	}
	return strconv.Quote(value)
}

func printAnalysis(out io.Writer, results *scanner.Results) {
	if results == nil || len(results.Findings) == 0 {
		fmt.Fprintln(out, "No suspicious keyword or IOC found.")
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Type", "Keyword", "Description"})
	table.SetAutoFormatHeaders(false)
	table.SetColWidth(50)

	for _, finding := range results.Findings {
		table.Append([]string{
			string(finding.Type),
			printableCell(finding.Keyword),
			printableCell(finding.Description),
		})
	}
	table.Render()
}

func printDetailed(out io.Writer, report *fileReport, config *settings) {
	fmt.Fprintln(out, strings.Repeat("=", 79))
	fmt.Fprintf(out, "FILE: %s\n", report.Filename)

	if report.Err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", report.Err)
		return
	}

	fmt.Fprintf(out, "Type: %s\n", report.Type)
	if !report.HasMacros {
		fmt.Fprintln(out, "No VBA macros found.")
		return
	}

	if !config.analysis_only {
		for _, macro := range report.Macros {
			fmt.Fprintln(out, strings.Repeat("-", 79))
			fmt.Fprintf(out, "VBA MACRO %s \n", macro.Filename)
			fmt.Fprintf(out, "in file: %s - OLE stream: %q\n", macro.Container, macro.StreamPath)
			fmt.Fprintln(out, strings.Repeat("- ", 39))

			code := macro.Code
			if !config.show_attributes {
				code = olevba.FilterVBA(code)
			}

			if strings.TrimSpace(code) == "" {
				fmt.Fprintln(out, "(empty macro)")
			} else {
				fmt.Fprintln(out, code)
			}
		}

		for _, form_string := range report.FormStrings {
			fmt.Fprintln(out, strings.Repeat("-", 79))
			fmt.Fprintf(out, "VBA FORM STRING IN %q - OLE stream: %q\n",
				form_string.Container, form_string.StreamPath)
			fmt.Fprintln(out, strings.Repeat("- ", 39))
			fmt.Fprintln(out, form_string.Value)
		}
	}

	if !config.code_only {
		fmt.Fprintln(out, strings.Repeat("-", 79))
		printAnalysis(out, report.Results)
	}

	if config.reveal {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "MACRO SOURCE CODE WITH DEOBFUSCATED VBA STRINGS (EXPERIMENTAL):")
		fmt.Fprintln(out)
		fmt.Fprintln(out, report.Revealed)
	}
}

func reportToDict(report *fileReport, config *settings) *ordereddict.Dict {
	result := ordereddict.NewDict().Set("file", report.Filename)
	if report.Err != nil {
		return result.Set("type", "error").Set("error", report.Err.Error())
	}

	macros := []*ordereddict.Dict{}
	for _, macro := range report.Macros {
		code := macro.Code
		if !config.show_attributes {
			code = olevba.FilterVBA(code)
		}

		macros = append(macros, ordereddict.NewDict().
			Set("vba_filename", macro.Filename).
			Set("subfilename", macro.Container).
			Set("ole_stream", macro.StreamPath).
			Set("code", code))
	}

	var analysis []*scanner.Finding
	if report.Results != nil {
		analysis = report.Results.Findings
	}

	result.Set("type", string(report.Type)).
		Set("flags", report.Flags).
		Set("macros", macros).
		Set("analysis", analysis)

	if config.reveal {
		result.Set("deobfuscated", report.Revealed)
	}
	return result
}

func printJSON(out io.Writer, reports []*fileReport, config *settings) error {
	result := []*ordereddict.Dict{
		ordereddict.NewDict().
			Set("script_name", "olevba").
			Set("version", VERSION).
			Set("type", "MetaInformation"),
	}

	for _, report := range reports {
		result = append(result, reportToDict(report, config))
	}

	serialized, err := json.MarshalIndent(result, " ", " ")
	if err != nil {
		return err
	}

	fmt.Fprintln(out, string(serialized))
	return nil
}
