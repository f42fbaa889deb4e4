// Package builder собирает заказ на печать по шагам и оформляет его.
package builder

import (
	"fmt"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mmeshcher/printpoints/internal/errs"
	"github.com/mmeshcher/printpoints/internal/model"
	"github.com/mmeshcher/printpoints/internal/pricing"
)

// Step описывает шаг оформления заказа.
type Step int

const (
	// StepFiles — выбор файлов заказа.
	StepFiles Step = iota
	// StepLocation — выбор точки печати.
	StepLocation
	// StepSpecification — формат, качество и число копий.
	StepSpecification
	// StepConfirmation — проверка итоговой стоимости перед оформлением.
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepFiles:
		return "files"
	case StepLocation:
		return "location"
	case StepSpecification:
		return "specification"
	case StepConfirmation:
		return "confirmation"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// MaxFileSize ограничивает размер одного файла заказа.
const MaxFileSize = 50 << 20

var allowedTypes = []string{"application/pdf", "image/jpeg", "image/png"}

// File описывает файл, добавленный в черновик заказа.
type File struct {
	Name        string
	Content     []byte
	ContentType string
	Extension   string
}

// Draft хранит черновик заказа, заполняемый клиентом по шагам.
type Draft struct {
	step     Step
	files    []File
	location *model.Location
	spec     model.PrintSpecification
	notes    string
}

// NewDraft создаёт пустой черновик на шаге выбора файлов.
func NewDraft() *Draft {
	return &Draft{spec: model.PrintSpecification{Quality: model.QualityStandard, Copies: 1}}
}

// Step возвращает текущий шаг.
func (d *Draft) Step() Step { return d.step }

// Files возвращает добавленные файлы.
func (d *Draft) Files() []File { return d.files }

// Location возвращает выбранную точку или nil.
func (d *Draft) Location() *model.Location { return d.location }

// Specification возвращает параметры печати.
func (d *Draft) Specification() model.PrintSpecification { return d.spec }

// Notes возвращает комментарий к заказу.
func (d *Draft) Notes() string { return d.notes }

// AddFile добавляет файл; допускаются PDF, JPEG и PNG.
func (d *Draft) AddFile(name string, content []byte) error {
	if name == "" {
		return errs.Validation("files", "file name is required")
	}
	if len(content) == 0 {
		return errs.Validation("files", fmt.Sprintf("%s is empty", name))
	}
	if len(content) > MaxFileSize {
		return errs.Validation("files", fmt.Sprintf("%s exceeds %d MB", name, MaxFileSize>>20))
	}
	mt := mimetype.Detect(content)
	if !mimetype.EqualsAny(mt.String(), allowedTypes...) {
		return errs.Validation("files", fmt.Sprintf("%s: unsupported type %s", name, mt.String()))
	}
	d.files = append(d.files, File{
		Name:        name,
		Content:     content,
		ContentType: mt.String(),
		Extension:   mt.Extension(),
	})
	return nil
}

// RemoveFile удаляет файл по индексу.
func (d *Draft) RemoveFile(i int) error {
	if i < 0 || i >= len(d.files) {
		return errs.Validation("files", fmt.Sprintf("no file at index %d", i))
	}
	d.files = append(d.files[:i], d.files[i+1:]...)
	return nil
}

// SelectLocation выбирает точку печати. Неактивная точка не принимается.
func (d *Draft) SelectLocation(loc *model.Location) error {
	if loc == nil {
		return errs.Validation("location", "required")
	}
	if loc.Status != model.LocationActive {
		return errs.Validation("location", "location is not active")
	}
	d.location = loc
	return nil
}

// SetSpecification задаёт формат, качество и число копий.
func (d *Draft) SetSpecification(size model.SizeID, quality model.Quality, copies int) error {
	spec, err := model.NewSpecification(size, quality, copies)
	if err != nil {
		return errs.Validation("specification", err.Error())
	}
	d.spec = spec
	return nil
}

// SetNotes задаёт комментарий к заказу.
func (d *Draft) SetNotes(text string) error {
	if utf8.RuneCountInString(text) > model.MaxNotesLength {
		return errs.Validation("notes", fmt.Sprintf("max %d characters", model.MaxNotesLength))
	}
	d.notes = text
	return nil
}

// Next проверяет текущий шаг и переходит к следующему.
func (d *Draft) Next() error {
	if d.step == StepConfirmation {
		return errs.Validation("step", "already at confirmation")
	}
	if err := d.checkStep(d.step); err != nil {
		return err
	}
	d.step++
	return nil
}

// Back возвращается на предыдущий шаг без проверок.
func (d *Draft) Back() {
	if d.step > StepFiles {
		d.step--
	}
}

// Quote рассчитывает стоимость по текущему состоянию черновика.
func (d *Draft) Quote(table model.PriceTable) pricing.Quote {
	return pricing.Calculate(d.spec, len(d.files), d.location, table)
}

// Validate проверяет черновик целиком перед оформлением.
func (d *Draft) Validate() error {
	for s := StepFiles; s < StepConfirmation; s++ {
		if err := d.checkStep(s); err != nil {
			return err
		}
	}
	return d.SetNotes(d.notes)
}

func (d *Draft) checkStep(s Step) error {
	switch s {
	case StepFiles:
		if len(d.files) == 0 {
			return errs.Validation("files", "at least one file is required")
		}
	case StepLocation:
		if d.location == nil {
			return errs.Validation("location", "required")
		}
		if d.location.Status != model.LocationActive {
			return errs.Validation("location", "location is not active")
		}
	case StepSpecification:
		if d.spec.Size == "" {
			return errs.Validation("size", "required")
		}
		if d.spec.Copies < 1 || d.spec.Copies > model.MaxCopies {
			return errs.Validation("copies", fmt.Sprintf("must be between 1 and %d", model.MaxCopies))
		}
		if d.location == nil {
			return errs.Validation("location", "required")
		}
		return Compatible(d.spec, d.location)
	}
	return nil
}

// Compatible проверяет, может ли точка напечатать заказ с такими параметрами.
func Compatible(spec model.PrintSpecification, loc *model.Location) error {
	if spec.Size.IsPhoto() {
		if !loc.HasFotoya {
			return errs.Validation("size", "location does not print photos")
		}
		return nil
	}
	a3 := spec.Size.Class() == model.SizeClassA3
	if spec.Color {
		if !loc.HasColorPrinting {
			return errs.Validation("quality", "location does not print in color")
		}
		if a3 && loc.MaxColorSize != model.SizeClassA3 {
			return errs.Validation("size", "location prints color up to A4")
		}
		return nil
	}
	if a3 && loc.MaxBWSize != model.SizeClassA3 {
		return errs.Validation("size", "location prints up to A4")
	}
	return nil
}
