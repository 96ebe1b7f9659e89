package logging

import (
	"io"
	"log"
	"os"
)

const prefix = "pingpro "

func New() *log.Logger {
	return NewWriter(os.Stdout)
}

// NewWriter logs to w with the same prefix and flags as New.
func NewWriter(w io.Writer) *log.Logger {
	return log.New(w, prefix, log.LstdFlags|log.LUTC)
}
