package fs

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/falk/agbsave-go/pkg/agbsave"
	"github.com/falk/agbsave-go/pkg/zstd"
)

// Entry names inside a backup archive.
const (
	SaveEntry     = "save.sav"
	SidecarEntry  = SaveEntry + DefaultSidecarSuffix
	ManifestEntry = "manifest.yaml"
)

// Compression methods for backup archives.
const (
	MethodDeflate = "deflate"
	MethodZstd    = "zstd"
)

// Manifest describes the save held in a backup archive.
type Manifest struct {
	TitleID    string `yaml:"title_id"`
	SaveType   string `yaml:"save_type"`
	SaveSize   int    `yaml:"save_size"`
	Generation uint32 `yaml:"generation"`
	Slot       int    `yaml:"slot"`
	BLAKE3     string `yaml:"blake3"`
}

// Backup is a save read back from an archive.
type Backup struct {
	Manifest Manifest
	Data     []byte
	Snapshot *agbsave.RegisterSnapshot
}

// BackupWriter writes a single save into a ZIP archive.
type BackupWriter struct {
	zw     *zip.Writer
	method uint16
}

// NewBackupWriter starts an archive on w using method ("deflate" or
// "zstd") at the given level.
func NewBackupWriter(w io.Writer, method string, level int) (*BackupWriter, error) {
	zw := zip.NewWriter(w)
	bw := &BackupWriter{zw: zw}

	switch method {
	case MethodDeflate, "":
		bw.method = zip.Deflate
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, level)
		})
	case MethodZstd:
		bw.method = zstd.ZipMethod
		zw.RegisterCompressor(zstd.ZipMethod, zstd.ZipCompressor(level))
	default:
		return nil, fmt.Errorf("unknown archive method %q", method)
	}
	return bw, nil
}

// AddSave writes the flat save, its register snapshot and the manifest.
// The snapshot entry is written even when it is all zero; every slot
// stores one.
func (w *BackupWriter) AddSave(flat *agbsave.FlatSave) error {
	sum := blake3.Sum256(flat.Data)
	m := Manifest{
		SaveType: agbsave.SaveTypeOf(len(flat.Data)).String(),
		SaveSize: len(flat.Data),
		Slot:     flat.Slot,
		BLAKE3:   hex.EncodeToString(sum[:]),
	}
	if flat.Header != nil {
		m.TitleID = fmt.Sprintf("%016X", flat.Header.TitleID)
		m.Generation = flat.Header.Generation
	}

	if err := w.add(SaveEntry, flat.Data); err != nil {
		return err
	}
	if err := w.add(SidecarEntry, flat.Snapshot[:]); err != nil {
		return err
	}

	manifest, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	return w.add(ManifestEntry, manifest)
}

func (w *BackupWriter) add(name string, data []byte) error {
	f, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: w.method})
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Close writes the archive's central directory.
func (w *BackupWriter) Close() error {
	return w.zw.Close()
}

// WriteBackupFile creates path holding flat.
func WriteBackupFile(path string, flat *agbsave.FlatSave, method string, level int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w, err := NewBackupWriter(f, method, level)
	if err != nil {
		f.Close()
		return err
	}
	if err := w.AddSave(flat); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadBackup parses an archive written by BackupWriter and checks the
// save against its manifest.
func ReadBackup(r io.ReaderAt, size int64) (*Backup, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zstd.ZipMethod, zstd.ZipDecompressor())

	entries := make(map[string][]byte)
	for _, f := range zr.File {
		switch f.Name {
		case SaveEntry, SidecarEntry, ManifestEntry:
		default:
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		entries[f.Name] = data
	}

	rawManifest, ok := entries[ManifestEntry]
	if !ok {
		return nil, fmt.Errorf("backup has no %s", ManifestEntry)
	}
	data, ok := entries[SaveEntry]
	if !ok {
		return nil, fmt.Errorf("backup has no %s", SaveEntry)
	}

	b := &Backup{Data: data}
	if err := yaml.Unmarshal(rawManifest, &b.Manifest); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestEntry, err)
	}
	if len(data) != b.Manifest.SaveSize {
		return nil, fmt.Errorf("save is %d bytes, manifest says %d", len(data), b.Manifest.SaveSize)
	}
	want, err := hex.DecodeString(b.Manifest.BLAKE3)
	if err != nil {
		return nil, fmt.Errorf("manifest digest: %w", err)
	}
	sum := blake3.Sum256(data)
	if !bytes.Equal(sum[:], want) {
		return nil, fmt.Errorf("save digest mismatch: got %x, manifest says %x", sum, want)
	}

	if raw, ok := entries[SidecarEntry]; ok {
		var snap agbsave.RegisterSnapshot
		if len(raw) != len(snap) {
			return nil, fmt.Errorf("%s: expected %d bytes, got %d", SidecarEntry, len(snap), len(raw))
		}
		copy(snap[:], raw)
		b.Snapshot = &snap
	}
	return b, nil
}

// ReadBackupFile opens and parses the archive at path.
func ReadBackupFile(path string) (*Backup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ReadBackup(f, info.Size())
}
