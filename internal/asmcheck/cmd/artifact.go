package cmd

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"debug/elf"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"asmcheck/internal/disasm"
	"asmcheck/internal/elfx"
)

// openArtifact returns the artifact bytes and a func releasing them. Plain
// ELF files are mapped read-only; anything else is read and unpacked.
func openArtifact(path string, logger *log.Logger) ([]byte, func(), error) {
	if isELF(path) {
		im, err := elfx.Open(path)
		if err == nil {
			logger.Debug("Mapped artifact", "file", path, "size", len(im.All))
			return im.All, func() { im.Close() }, nil
		}
		logger.Debug("Mapping failed, reading instead", "file", path, "error", err)
	}
	data, err := readArtifact(path, logger)
	if err != nil {
		return nil, nil, err
	}
	return data, func() {}, nil
}

func isELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return bytes.Equal(magic[:], []byte(elf.ELFMAG))
}

// readArtifact loads a compiled artifact, unpacking gzip files and the
// first entry of zip archives.
func readArtifact(path string, logger *log.Logger) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read artifact")
	}
	return detectAndDecompress(data, path, logger)
}

// detectAndDecompress checks if the data is compressed and decompresses it
func detectAndDecompress(data []byte, filename string, logger *log.Logger) ([]byte, error) {
	if len(data) < 2 {
		return data, nil
	}

	// gzip magic 0x1f 0x8b
	if data[0] == 0x1f && data[1] == 0x8b {
		logger.Debug("Detected gzip compression", "file", filename)
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "gzip reader creation failed")
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, errors.Wrap(err, "gzip decompression failed")
		}
		logger.Debug("Gzip decompression successful", "file", filename,
			"original_size", len(data), "decompressed_size", len(decompressed))
		return decompressed, nil
	}

	// zip local file header "PK\x03\x04"
	if len(data) >= 4 && data[0] == 0x50 && data[1] == 0x4b && data[2] == 0x03 && data[3] == 0x04 {
		logger.Debug("Detected ZIP archive", "file", filename)
		reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, errors.Wrap(err, "zip reader creation failed")
		}
		if len(reader.File) == 0 {
			return nil, errors.New("zip archive is empty")
		}

		file := reader.File[0]
		rc, err := file.Open()
		if err != nil {
			return nil, errors.Wrap(err, "failed to open file in zip")
		}
		defer rc.Close()

		decompressed, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read file from zip")
		}
		logger.Debug("ZIP decompression successful", "file", filename,
			"archive_file", file.Name,
			"original_size", len(data), "decompressed_size", len(decompressed))
		return decompressed, nil
	}

	return data, nil
}

// disassemblerFor picks the assembly reader for .s files and the AArch64
// decoder for everything else.
func disassemblerFor(path string) disasm.Disassembler {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".s", ".asm":
		return disasm.Assembly{Source: path}
	}
	return disasm.ARM64{Source: path}
}

// loadListing reads the artifact named by the first argument and returns its
// disassembly listing.
func loadListing(s *session, path string) (string, error) {
	data, release, err := openArtifact(path, s.logger.Logger)
	if err != nil {
		return "", err
	}
	defer release()
	listing, err := disassemblerFor(path).Disassemble(data)
	if err != nil {
		return "", errors.Wrapf(err, "disassemble %s", path)
	}
	return listing, nil
}

func withSession(run func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return run(cmd, s, args)
	}
}
