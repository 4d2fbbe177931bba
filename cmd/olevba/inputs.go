package main

import (
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/alexmullins/zip"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"www.velocidex.com/golang/olevba"
)

// input is one document to analyze. Data is loaded by the worker so
// only the files being analyzed are held in memory.
type input struct {
	filename string
	load     func() ([]byte, error)
}

// expandFiles resolves the command line arguments into file names.
// Arguments may be glob patterns (including **). Directories are only
// walked with recursive set.
func expandFiles(
	patterns []string, recursive bool, logger logrus.FieldLogger) ([]string, error) {
	result := []string{}

	for _, pattern := range patterns {
		info, err := os.Stat(pattern)
		if err == nil && !info.IsDir() {
			result = append(result, pattern)
			continue
		}

		if err == nil && info.IsDir() {
			if !recursive {
				logger.Warnf("%v is a directory, use --recursive to analyze it", pattern)
				continue
			}
			pattern = filepath.Join(pattern, "**")
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, errors.Wrap(err, pattern)
		}

		// Report the missing file when analyzing it.
		if len(matches) == 0 {
			result = append(result, pattern)
			continue
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			result = append(result, match)
		}
	}

	return result, nil
}

func fileInputs(filenames []string) []*input {
	result := []*input{}
	for _, filename := range filenames {
		filename := filename
		result = append(result, &input{
			filename: filename,
			load: func() ([]byte, error) {
				data, err := os.ReadFile(filename)
				return data, errors.WithStack(err)
			},
		})
	}
	return result
}

func readZipMember(member *zip.File) ([]byte, error) {
	fd, err := member.Open()
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	return io.ReadAll(io.LimitReader(fd, olevba.MAX_ZIP_MEMBER_SIZE))
}

// matchMember checks the glob against the full member name and its
// base name so "*.doc" also selects members in folders.
func matchMember(glob, name string) (bool, error) {
	matched, err := doublestar.Match(glob, name)
	if err != nil || matched {
		return matched, err
	}
	return doublestar.Match(glob, path.Base(name))
}

// zipArchiveInputs lists the members of a zip archive, such as a
// password protected malware sample archive.
func zipArchiveInputs(filename, password, glob string) ([]*input, error) {
	reader, err := zip.OpenReader(filename)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	defer reader.Close()

	result := []*input{}
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}

		matched, err := matchMember(glob, member.Name)
		if err != nil {
			return nil, errors.Wrap(err, glob)
		}
		if !matched {
			continue
		}

		if member.IsEncrypted() {
			member.SetPassword(password)
		}

		data, err := readZipMember(member)
		if err != nil {
			err = errors.Wrap(err, member.Name)
		}

		result = append(result, &input{
			filename: filename + "/" + member.Name,
			load: func() ([]byte, error) {
				return data, err
			},
		})
	}

	return result, nil
}

func zipInputs(
	filenames []string, password, glob string,
	logger logrus.FieldLogger) []*input {
	result := []*input{}
	for _, filename := range filenames {
		members, err := zipArchiveInputs(filename, password, glob)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"file":  filename,
				"error": err,
			}).Error("Unable to open zip archive")

			result = append(result, &input{
				filename: filename,
				load: func() ([]byte, error) {
					return nil, err
				},
			})
			continue
		}
		result = append(result, members...)
	}
	return result
}
