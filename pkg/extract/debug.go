package extract

import (
	"os"
	"path/filepath"
)

// Intermediate products are written only when savePath names an existing
// directory. Images need the opencv build; text is always written.

func maybeSaveImage(img Mat, savePath, filename string) {
	if savePath == "" {
		return
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return
	}
	imWriteMat(filepath.Join(savePath, filename), img)
}

func maybeSaveText(savePath, filename, text string) {
	if savePath == "" {
		return
	}
	if _, err := os.Stat(savePath); os.IsNotExist(err) {
		return
	}
	_ = os.WriteFile(filepath.Join(savePath, filename), []byte(text), 0o644)
}
