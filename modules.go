package olevba

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type VBAModule struct {
	Code       string
	ModuleName string
	StreamName string
	StreamPath string
	Filename   string
	Kind       ModuleKind

	// File extension matching Kind (bas, cls, frm or bin).
	Type string
}

// ExtractProjectModules reads the source code of every module of a
// project, in the order the dir stream declares them. Modules which
// fail to decode are logged and skipped.
func ExtractProjectModules(
	ole *OLEFile, project *VBAProject,
	logger logrus.FieldLogger) ([]*VBAModule, error) {
	logger = getLogger(logger)

	project_data, err := ole.OpenStream(project.ProjectPath)
	if err != nil {
		return nil, errors.Wrap(err, "missing PROJECT stream")
	}
	kinds := ParseProjectStream(project_data)

	compressed_dir, err := ole.OpenStream(project.DirPath)
	if err != nil {
		return nil, errors.Wrap(err, "missing dir stream")
	}

	dir_stream, err := DecompressStream(compressed_dir, logger)
	if err != nil {
		return nil, errors.Wrap(err, project.DirPath)
	}

	info, err := ParseDirStream(dir_stream, logger)
	if err != nil {
		return nil, errors.Wrap(err, project.DirPath)
	}
	Debug(logger, info)

	result := []*VBAModule{}
	for _, record := range info.Modules {
		module, err := extractModule(ole, project, info.CodePage, record, kinds, logger)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"module": record.Name,
				"stream": record.StreamName,
				"error":  err,
			}).Warn("Unable to extract module")
			continue
		}

		if module != nil {
			result = append(result, module)
		}
	}

	return result, nil
}

func extractModule(
	ole *OLEFile, project *VBAProject, codepage uint16,
	record *ModuleRecord, kinds ProjectModules,
	logger logrus.FieldLogger) (*VBAModule, error) {

	logger.Debugf("Project CodePage = %d (%v)", codepage, CodePageName(codepage))
	logger.Debugf("ModuleName = %v", record.Name)
	logger.Debugf("ModuleNameUnicode = %v", record.NameUnicode)
	logger.Debugf("StreamName = %v", record.StreamName)
	logger.Debugf("StreamNameUnicode = %v", record.StreamNameUnicode)
	logger.Debugf("TextOffset = %v", record.TextOffset)

	stream_path := project.Root + "VBA/" + record.StreamName
	code_data, err := ole.OpenStream(stream_path)
	if err != nil {
		return nil, err
	}

	logger.Debugf("length of code_data = %v", len(code_data))
	if int(record.TextOffset) >= len(code_data) {
		logger.Warnf("module stream %v has code data length 0", record.StreamName)
		return nil, nil
	}

	code, err := DecompressStream(code_data[record.TextOffset:], logger)
	if err != nil {
		return nil, errors.Wrap(err, stream_path)
	}

	kind := kinds.Get(record.Name)
	return &VBAModule{
		Code:       decodeCodePage(code, codepage),
		ModuleName: record.Name,
		StreamName: record.StreamName,
		StreamPath: stream_path,
		Filename:   record.Name + "." + kind.Extension(),
		Kind:       kind,
		Type:       kind.Extension(),
	}, nil
}
