package service

import (
	"errors"
	"fmt"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
	"github.com/whitechapel007/chat-app-pern/internal/store"
	"github.com/whitechapel007/chat-app-pern/internal/validation"
)

var validateStruct = validation.Struct

// notFound переводит store.ErrNotFound в apperr.NotFound, остальное оборачивает.
func notFound(err error, op, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}
