package helper

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/whitekid/goxp/log"
)

// ReadFile read data from file or stdin
func ReadFile(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}

	log.Debugf("read file %s", name)
	return os.ReadFile(name)
}

func MustReadFile(name string) []byte {
	data, err := ReadFile(name)
	if err != nil {
		panic(err)
	}

	return data
}

// WriteFile write data to file or stdout
func WriteFile(name string, data []byte, perm os.FileMode) error {
	if name == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}

	return os.WriteFile(name, data, perm)
}

// WriteFileAtomic write data to temporary file in the same directory and rename it to name.
// Readers see either the old or the new content, never a partial one.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return errors.Wrap(err, "fail to write file")
	}
	tmpName := f.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "fail to write file")
	}

	if err = f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "fail to write file")
	}

	if err = f.Close(); err != nil {
		return errors.Wrap(err, "fail to write file")
	}

	if err = os.Chmod(tmpName, perm); err != nil {
		return errors.Wrap(err, "fail to write file")
	}

	if err = os.Rename(tmpName, name); err != nil {
		return errors.Wrap(err, "fail to write file")
	}

	return nil
}

// FileExists returns true if name exists and is a regular file
func FileExists(name string) bool {
	st, err := os.Stat(name)
	return err == nil && st.Mode().IsRegular()
}
