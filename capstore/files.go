package capstore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/capnation/atomicfile"
)

// ensureFile creates path (and its directory) if it doesn't exist
func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ioError("mkdir", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return ioError("create", path, err)
	}
	if err = f.Close(); err != nil {
		return ioError("close", path, err)
	}
	return nil
}

// appendLine writes "\n" + line at the end of the file
// the leading newline means we never have to check if the file
// ends with a newline, at the cost of a possible blank first line
func appendLine(path string, line string, sync bool) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return ioError("open", path, err)
	}
	_, err = f.WriteString("\n" + line)
	if err == nil && sync {
		err = f.Sync()
	}
	if err != nil {
		f.Close()
		return ioError("append", path, err)
	}
	if err = f.Close(); err != nil {
		return ioError("close", path, err)
	}
	return nil
}

// writeFileAtomically replaces content of path so that readers see
// either old or new content
func writeFileAtomically(path string, data []byte) error {
	if err := atomicfile.WriteFile(path, data); err != nil {
		return ioError("write", path, err)
	}
	return nil
}

// forEachLine calls fn for every non-blank line of the file.
// lineNo is 1-based and counts blank lines too.
// A missing file is treated as empty.
func forEachLine(path string, fn func(lineNo int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ioError("open", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// lines in brand index grow with number of caps
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return ioError("read", path, err)
	}
	return nil
}
