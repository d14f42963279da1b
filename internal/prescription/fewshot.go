package prescription

import (
	"fmt"
	"path/filepath"
)

// Reference images, relative to the few-shot directory.
var (
	handwrittenExamples = []string{
		filepath.Join("manuscritas", "manuscrita01.jpg"),
		filepath.Join("manuscritas", "manuscrita02.jpg"),
	}
	typedExamples = []string{
		filepath.Join("digitadas", "digitada01.jpg"),
		filepath.Join("digitadas", "digitada02.png"),
	}
)

// FewShotSet holds the reference images shown to the classifier: two
// handwritten and two typed prescriptions.
type FewShotSet struct {
	Handwritten []Image
	Typed       []Image
}

// LoadFewShot reads the four reference images from dir. Every image must be
// present and non-empty.
func LoadFewShot(dir string) (*FewShotSet, error) {
	handwritten, err := loadExamples(dir, handwrittenExamples)
	if err != nil {
		return nil, err
	}
	typed, err := loadExamples(dir, typedExamples)
	if err != nil {
		return nil, err
	}
	return &FewShotSet{Handwritten: handwritten, Typed: typed}, nil
}

func loadExamples(dir string, names []string) ([]Image, error) {
	images := make([]Image, 0, len(names))
	for _, name := range names {
		img, err := LoadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("few-shot example: %w", err)
		}
		if img.Empty() {
			return nil, fmt.Errorf("few-shot example %s is empty", name)
		}
		images = append(images, img)
	}
	return images, nil
}
