package repo

import (
	"os"

	"github.com/figtool/fig/pkg/object"
)

func modeFromFileInfo(info os.FileInfo) string {
	if info.Mode()&0o111 != 0 {
		return object.ModeExecutable
	}
	return object.ModeFile
}

func normalizeFileMode(mode string) string {
	if mode == object.ModeExecutable {
		return object.ModeExecutable
	}
	return object.ModeFile
}

func filePermFromMode(mode string) os.FileMode {
	if normalizeFileMode(mode) == object.ModeExecutable {
		return 0o755
	}
	return 0o644
}
