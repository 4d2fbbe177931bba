package olevba

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	FREESECT      = 0xFFFFFFFF
	ENDOFCHAIN    = 0xFFFFFFFE
	FATSECT       = 0xFFFFFFFD
	DIFSECT       = 0xFFFFFFFC
	MAXREGSECT    = 0xFFFFFFFA
	NOSTREAM      = 0xFFFFFFFF
	OLE_SIGNATURE = "\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1"

	OLE_HEADER_SIZE    = 512
	DIRECTORY_SIZE     = 128
	MAX_SECTOR_SHIFT   = 16
	MAX_SECTORS        = 1 << 20
	MAX_DIRECTORY_SIZE = 1 << 16

	// Object types (MS-CFB 2.6.1)
	STGTY_EMPTY   = 0
	STGTY_STORAGE = 1
	STGTY_STREAM  = 2
	STGTY_ROOT    = 5
)

type OLEHeader struct {
	AbSig [8]byte
	Clid  [16]byte

	MinorVersion    uint16
	DllVersion      uint16
	ByteOrder       uint16
	SectorShift     uint16
	MiniSectorShift uint16
	Reserved        uint16

	Reserved1        uint32
	Reserved2        uint32
	CsectFat         uint32
	SectDirStart     uint32
	Signature        uint32
	MiniSectorCutoff uint32
	SectMiniFatStart uint32
	CsectMiniFat     uint32
	SectDifStart     uint32
	CsectDif         uint32

	SectFat [109]uint32
}

type DirectoryHeader struct {
	AB          [32]uint16
	CB          uint16
	Mse         byte
	Flags       byte
	SidLeftSib  uint32
	SidRightSib uint32
	SidChild    uint32
	ClsId       [16]byte
	UserFlags   uint32
	CreateTime  uint64
	ModifyTime  uint64
	SectStart   uint32
	Size        uint32
	PropType    uint16
}

// Directory is one entry of the compound file directory. Path is the
// slash separated location of the entry below the root storage.
type Directory struct {
	Header DirectoryHeader
	Index  uint32
	Name   string
	Path   string
	Parent *Directory
}

func NewDirectory(data []byte, index uint32) (*Directory, error) {
	self := &Directory{Index: index}

	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &self.Header)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	name_len := int(self.Header.CB) / 2
	if name_len > len(self.Header.AB) {
		name_len = len(self.Header.AB)
	}

	self.Name = strings.TrimRight(
		string(utf16.Decode(self.Header.AB[:name_len])), "\x00")

	return self, nil
}

func (self *Directory) IsStream() bool {
	return self.Header.Mse == STGTY_STREAM
}

func (self *Directory) IsStorage() bool {
	return self.Header.Mse == STGTY_STORAGE
}

// OLEFile is an in memory reader for a compound file (MS-CFB).
type OLEFile struct {
	data           []byte
	ministream     []byte
	logger         logrus.FieldLogger
	Header         OLEHeader
	SectorSize     int
	MiniSectorSize int
	SectorCount    int
	FatSectors     []uint32
	Fat            []uint32
	MiniFat        []uint32
	Directory      []*Directory

	// Directory entries reachable from the root, in tree order.
	entries []*Directory
}

func (self *OLEFile) ReadSector(sector uint32) []byte {
	// The header occupies the whole first sector for v4 files.
	start := (int(sector) + 1) * self.SectorSize
	if self.SectorSize < OLE_HEADER_SIZE {
		start = OLE_HEADER_SIZE + self.SectorSize*int(sector)
	}

	if sector > MAXREGSECT || start >= len(self.data) || start < 0 {
		return nil
	}

	to_read := self.SectorSize
	if start+to_read > len(self.data) {
		to_read = len(self.data) - start
	}
	return self.data[start : start+to_read]
}

func (self *OLEFile) ReadMiniSector(sector uint32) []byte {
	start := self.MiniSectorSize * int(sector)
	if sector > MAXREGSECT || start >= len(self.ministream) || start < 0 {
		return nil
	}

	to_read := self.MiniSectorSize
	if start+to_read > len(self.ministream) {
		to_read = len(self.ministream) - start
	}

	return self.ministream[start : start+to_read]
}

func (self *OLEFile) ReadFat(sector uint32) uint32 {
	if int(sector) >= len(self.Fat) {
		return ENDOFCHAIN
	}
	return self.Fat[sector]
}

func (self *OLEFile) ReadMiniFat(sector uint32) uint32 {
	if int(sector) >= len(self.MiniFat) {
		return ENDOFCHAIN
	}
	return self.MiniFat[sector]
}

func (self *OLEFile) ReadChain(start uint32) []byte {
	return self._ReadChain(start, self.ReadSector, self.ReadFat)
}

func (self *OLEFile) ReadMiniChain(start uint32) []byte {
	return self._ReadChain(start, self.ReadMiniSector, self.ReadMiniFat)
}

func (self *OLEFile) _ReadChain(
	start uint32,
	ReadSector func(uint32) []byte,
	ReadFat func(sector uint32) uint32) []byte {
	check := make(map[uint32]bool)
	result := []byte{}

	for sector := start; sector <= MAXREGSECT; {
		data := ReadSector(sector)
		if data == nil {
			self.logger.Debugf("Sector %v of chain starting at %v is out of range",
				sector, start)
			return result
		}
		result = append(result, data...)
		check[sector] = true

		next := ReadFat(sector)
		if check[next] || len(check) > MAX_SECTORS {
			self.logger.Warnf("Infinite loop detected at %v to %v starting at %v",
				sector, next, start)
			return result
		}
		sector = next
	}
	return result
}

func (self *OLEFile) GetStream(index uint32) []byte {
	if int(index) >= len(self.Directory) {
		return nil
	}

	var data []byte

	d := self.Directory[index]
	if d.Header.Size < self.Header.MiniSectorCutoff &&
		d.Header.Mse != STGTY_ROOT {
		data = self.ReadMiniChain(d.Header.SectStart)
	} else {
		data = self.ReadChain(d.Header.SectStart)
	}

	return data[:uint32_min(d.Header.Size, uint32(len(data)))]
}

// FindEntry looks up an entry by its slash separated path. Names are
// compared case-insensitively as in MS-CFB.
func (self *OLEFile) FindEntry(path string) *Directory {
	path = strings.Trim(path, "/")
	for _, d := range self.entries {
		if strings.EqualFold(d.Path, path) {
			return d
		}
	}

	return nil
}

// Exists returns true when path names a stream.
func (self *OLEFile) Exists(path string) bool {
	d := self.FindEntry(path)
	return d != nil && d.IsStream()
}

func (self *OLEFile) OpenStream(path string) ([]byte, error) {
	d := self.FindEntry(path)
	if d == nil || !d.IsStream() {
		return nil, errors.Errorf("Stream not found: %v", path)
	}

	return self.GetStream(d.Index), nil
}

// ListStorages returns all storages below the root in tree order.
func (self *OLEFile) ListStorages() []*Directory {
	result := []*Directory{}
	for _, d := range self.entries {
		if d.IsStorage() {
			result = append(result, d)
		}
	}
	return result
}

func (self *OLEFile) ListStreams() []*Directory {
	result := []*Directory{}
	for _, d := range self.entries {
		if d.IsStream() {
			result = append(result, d)
		}
	}
	return result
}

// buildTree walks the red-black sibling trees from the root entry and
// assigns each reachable entry its full path.
func (self *OLEFile) buildTree() {
	seen := make(map[uint32]bool)

	var walk_siblings func(index uint32, parent *Directory)
	var walk_children func(parent *Directory)

	walk_siblings = func(index uint32, parent *Directory) {
		if index == NOSTREAM || int(index) >= len(self.Directory) || seen[index] {
			return
		}
		seen[index] = true
		d := self.Directory[index]

		// In order traversal gives sorted names.
		walk_siblings(d.Header.SidLeftSib, parent)

		if d.Header.Mse != STGTY_EMPTY {
			d.Parent = parent
			d.Path = d.Name
			if parent != nil && parent.Path != "" {
				d.Path = parent.Path + "/" + d.Name
			}
			self.entries = append(self.entries, d)
			if d.IsStorage() {
				walk_children(d)
			}
		}

		walk_siblings(d.Header.SidRightSib, parent)
	}

	walk_children = func(parent *Directory) {
		walk_siblings(parent.Header.SidChild, parent)
	}

	root := self.Directory[0]
	seen[0] = true
	walk_children(root)
}

func NewOLEFile(data []byte, logger logrus.FieldLogger) (*OLEFile, error) {
	if len(data) < OLE_HEADER_SIZE ||
		string(data[:8]) != OLE_SIGNATURE {
		return nil, formatErrorf("OLEHeader", "Invalid signature")
	}

	self := OLEFile{data: data, logger: getLogger(logger)}
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &self.Header)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if self.Header.SectorShift > MAX_SECTOR_SHIFT {
		return nil, formatErrorf("OLEHeader",
			"Sector size too large: %v", self.Header.SectorShift)
	}

	self.SectorSize = 1 << self.Header.SectorShift
	if self.SectorSize < 128 {
		return nil, formatErrorf("OLEHeader",
			"Sector size too small: %v", self.SectorSize)
	}

	if self.Header.MiniSectorShift > self.Header.SectorShift {
		return nil, formatErrorf("OLEHeader",
			"Mini sector size too large: %v", self.Header.MiniSectorShift)
	}

	self.MiniSectorSize = 1 << self.Header.MiniSectorShift
	if (len(data)-OLE_HEADER_SIZE)%self.SectorSize != 0 {
		self.logger.Debugf("Last sector has invalid size")
	}

	self.SectorCount = (len(data) - OLE_HEADER_SIZE) / self.SectorSize
	for _, sect := range self.Header.SectFat {
		if sect <= MAXREGSECT {
			self.FatSectors = append(self.FatSectors, sect)
		}
	}

	// load any DIF sectors
	sector := self.Header.SectDifStart
	seen := make(map[uint32]bool)
	for sector <= MAXREGSECT {
		sector_data := self.ReadSector(sector)
		if len(sector_data) < self.SectorSize {
			self.logger.Warnf("DIF sector %v is truncated", sector)
			break
		}

		dif_values := make([]uint32, self.SectorSize/4)
		err := binary.Read(bytes.NewReader(sector_data), binary.LittleEndian, dif_values)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		// the last entry is actually a pointer to next DIF
		next := dif_values[len(dif_values)-1]
		for _, value := range dif_values[:len(dif_values)-1] {
			if value <= MAXREGSECT {
				self.FatSectors = append(self.FatSectors, value)
			}
		}

		seen[sector] = true
		if seen[next] || len(seen) > MAX_SECTORS {
			return nil, formatErrorf("DIF",
				"infinite loop detected at %v to %v", sector, next)
		}
		sector = next
	}

	// load the FAT
	for _, fat_sect := range self.FatSectors {
		sect_data := self.ReadSector(fat_sect)
		if len(sect_data) < self.SectorSize {
			self.logger.Warnf("FAT sector %v is truncated", fat_sect)
			continue
		}

		sect_longs := make([]uint32, self.SectorSize/4)
		err := binary.Read(bytes.NewReader(sect_data), binary.LittleEndian, sect_longs)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		self.Fat = append(self.Fat, sect_longs...)
	}

	// get the list of directory sectors
	dir_buffer := self.ReadChain(self.Header.SectDirStart)
	for directory_index := 0; (directory_index+1)*DIRECTORY_SIZE <= len(dir_buffer); directory_index += 1 {
		if directory_index > MAX_DIRECTORY_SIZE {
			return nil, formatErrorf("Directory", "Too many directory entries")
		}

		dir_obj, err := NewDirectory(
			dir_buffer[directory_index*DIRECTORY_SIZE:],
			uint32(directory_index))
		if err != nil {
			return nil, err
		}
		self.Directory = append(self.Directory, dir_obj)
	}

	if len(self.Directory) == 0 {
		return nil, formatErrorf("Directory", "Directory not found")
	}

	// load the ministream
	root_directory := self.Directory[0]
	if root_directory.Header.SectStart <= MAXREGSECT {
		self.ministream = self.ReadChain(root_directory.Header.SectStart)
		if len(self.ministream) < int(root_directory.Header.Size) {
			self.logger.Warnf(
				"Mini stream size %v is larger than actual stream length %v",
				root_directory.Header.Size, len(self.ministream))
		}

		self.ministream = self.ministream[:uint32_min(
			root_directory.Header.Size, uint32(len(self.ministream)))]

		// 2.3 The locations for MiniFat sectors are stored in a standard
		// chain in the Fat, with the beginning of the chain stored in the
		// header.
		minifat_data := self.ReadChain(self.Header.SectMiniFatStart)
		for i := 0; i+self.SectorSize <= len(minifat_data); i += self.SectorSize {
			chunk := make([]uint32, self.SectorSize/4)
			err := binary.Read(bytes.NewReader(minifat_data[i:i+self.SectorSize]),
				binary.LittleEndian, chunk)
			if err != nil {
				return nil, errors.WithStack(err)
			}

			self.MiniFat = append(self.MiniFat, chunk...)
		}
	}

	self.buildTree()

	return &self, nil
}
