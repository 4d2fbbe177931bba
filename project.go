package olevba

import (
	"regexp"
	"strings"
)

const (
	MODULE_EXTENSION = "bas"
	CLASS_EXTENSION  = "cls"
	FORM_EXTENSION   = "frm"
	BINARY_EXTENSION = "bin"
)

// ModuleKind is the kind of a module as declared in the PROJECT stream.
type ModuleKind string

const (
	MODULE_UNKNOWN  ModuleKind = ""
	MODULE_DOCUMENT ModuleKind = "Document"
	MODULE_STANDARD ModuleKind = "Module"
	MODULE_CLASS    ModuleKind = "Class"
	MODULE_FORM     ModuleKind = "BaseClass"
)

func (self ModuleKind) Extension() string {
	switch self {
	case MODULE_STANDARD:
		return MODULE_EXTENSION
	case MODULE_CLASS, MODULE_DOCUMENT:
		return CLASS_EXTENSION
	case MODULE_FORM:
		return FORM_EXTENSION
	}
	return BINARY_EXTENSION
}

var (
	re_keyval = regexp.MustCompile("^([^=]+)=(.*)$")
)

// VBAProject locates one VBA project inside a compound file. Root is
// the storage holding the project with a trailing slash, or empty when
// the project lives at the root of the file.
type VBAProject struct {
	Root        string
	ProjectPath string
	DirPath     string
}

// FindVBAProjects returns every VBA project of the file. A VBA storage
// only counts when the PROJECT, VBA/_VBA_PROJECT and VBA/dir streams
// are all present.
func FindVBAProjects(ole *OLEFile) []*VBAProject {
	result := []*VBAProject{}

	for _, storage := range ole.ListStorages() {
		if !strings.EqualFold(storage.Name, "VBA") {
			continue
		}

		vba_root := ""
		if storage.Parent != nil && storage.Parent.Path != "" {
			vba_root = storage.Parent.Path + "/"
		}

		project_path := vba_root + "PROJECT"
		dir_path := vba_root + "VBA/dir"
		vba_project_path := vba_root + "VBA/_VBA_PROJECT"

		if !ole.Exists(project_path) ||
			!ole.Exists(dir_path) ||
			!ole.Exists(vba_project_path) {
			ole.logger.Debugf("Storage %v is missing VBA project streams", storage.Path)
			continue
		}

		ole.logger.Debugf("Found VBA project in %v", storage.Path)
		result = append(result, &VBAProject{
			Root:        vba_root,
			ProjectPath: project_path,
			DirPath:     dir_path,
		})
	}

	return result
}

// ProjectModules maps module names from the PROJECT stream to their
// kind. Lookups ignore case.
type ProjectModules map[string]ModuleKind

func (self ProjectModules) Get(name string) ModuleKind {
	return self[strings.ToLower(name)]
}

// ParseProjectStream reads the module declarations of the PROJECT
// stream (MS-OVBA 2.3.1).
func ParseProjectStream(data []byte) ProjectModules {
	result := make(ProjectModules)

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "[") {
			continue
		}

		m := re_keyval.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		value := m[2]
		switch ModuleKind(m[1]) {
		case MODULE_DOCUMENT:
			// Document=ThisDocument/&H00000000
			result[strings.ToLower(strings.Split(value, "/")[0])] = MODULE_DOCUMENT
		case MODULE_STANDARD, MODULE_CLASS, MODULE_FORM:
			result[strings.ToLower(value)] = ModuleKind(m[1])
		}
	}

	return result
}
