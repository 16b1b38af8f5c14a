package iox

import (
	"io"
	"os"
)

// WriteStreamToFile copies src into a new file, and returns the number of bytes written.
// A partially written file is removed.
func WriteStreamToFile(dstFilename string, src io.Reader) (int64, error) {
	dstFile, err := os.Create(dstFilename)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dstFile, src)
	if err == nil {
		err = dstFile.Close()
	} else {
		dstFile.Close()
	}
	if err != nil {
		os.Remove(dstFilename)
		return 0, err
	}
	return n, nil
}

// CopyFile copies the file src to dst, and returns the size of the file
func CopyFile(dst, src string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return WriteStreamToFile(dst, in)
}
