package model

import "fmt"

// SizeID идентифицирует формат бумаги или фотографии.
type SizeID string

const (
	SizeA4     SizeID = "a4"
	SizeA3     SizeID = "a3"
	SizeCarta  SizeID = "carta"
	SizeOficio SizeID = "oficio"

	SizePhoto10x15 SizeID = "10x15"
	SizePhoto13x18 SizeID = "13x18"
	SizePhoto15x20 SizeID = "15x20"
	SizePhoto20x30 SizeID = "20x30"
)

// SizeClass описывает максимальный класс формата, поддерживаемый точкой.
type SizeClass string

const (
	SizeClassA4 SizeClass = "A4"
	SizeClassA3 SizeClass = "A3"
)

// Valid сообщает, является ли класс формата известным.
func (c SizeClass) Valid() bool {
	return c == SizeClassA4 || c == SizeClassA3
}

type sizeInfo struct {
	photo bool
	class SizeClass
}

var sizes = map[SizeID]sizeInfo{
	SizeA4:         {class: SizeClassA4},
	SizeA3:         {class: SizeClassA3},
	SizeCarta:      {class: SizeClassA4},
	SizeOficio:     {class: SizeClassA4},
	SizePhoto10x15: {photo: true},
	SizePhoto13x18: {photo: true},
	SizePhoto15x20: {photo: true},
	SizePhoto20x30: {photo: true},
}

// Known сообщает, есть ли формат в каталоге.
func (s SizeID) Known() bool {
	_, ok := sizes[s]
	return ok
}

// IsPhoto сообщает, является ли формат фотоформатом.
func (s SizeID) IsPhoto() bool {
	return sizes[s].photo
}

// Class возвращает класс документа; для фотоформатов пустой.
func (s SizeID) Class() SizeClass {
	return sizes[s].class
}

// Quality описывает качество печати документа.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityPremium  Quality = "premium"
	QualityColor    Quality = "color"
)

// Valid сообщает, является ли качество известным.
func (q Quality) Valid() bool {
	switch q {
	case QualityStandard, QualityPremium, QualityColor:
		return true
	}
	return false
}

// MaxCopies ограничивает число копий одного заказа.
const MaxCopies = 999

// PrintSpecification описывает параметры печати заказа.
type PrintSpecification struct {
	Size    SizeID  `json:"size"`
	Quality Quality `json:"quality"`
	Copies  int     `json:"copies"`
	Color   bool    `json:"color"`
}

// NewSpecification собирает спецификацию печати, вычисляя признак цветности.
// Для фотоформатов качество приводится к standard, а печать всегда цветная.
func NewSpecification(size SizeID, quality Quality, copies int) (PrintSpecification, error) {
	if !size.Known() {
		return PrintSpecification{}, fmt.Errorf("unknown size %q", size)
	}
	if size.IsPhoto() {
		quality = QualityStandard
	}
	if quality == "" {
		quality = QualityStandard
	}
	if !quality.Valid() {
		return PrintSpecification{}, fmt.Errorf("unknown quality %q", quality)
	}
	if copies < 1 || copies > MaxCopies {
		return PrintSpecification{}, fmt.Errorf("copies must be between 1 and %d", MaxCopies)
	}
	return PrintSpecification{
		Size:    size,
		Quality: quality,
		Copies:  copies,
		Color:   size.IsPhoto() || quality == QualityColor,
	}, nil
}
