package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxCategoryNameLength = 48

var ErrCategoryNameEmpty = errors.New("category name cannot be empty")
var ErrCategoryNameTooLong = fmt.Errorf("category name exceeds %d characters", MaxCategoryNameLength)

// Category groups sounds in the library. Color is a display hint for
// front-ends ("#ff8800"); the engine never interprets it.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrCategoryNameEmpty
	} else if utf8.RuneCountInString(c.Name) > MaxCategoryNameLength {
		return ErrCategoryNameTooLong
	}

	return nil
}
