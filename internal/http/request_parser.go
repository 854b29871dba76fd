// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and sanitizing request bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

var ErrEmptyBody = errors.New("request body is empty")

type (
	tokenRequest struct {
		Token string `json:"token"`
	}
	modeRequest struct {
		Mode string `json:"mode"`
	}
	currencyRequest struct {
		Currency string `json:"currency"`
	}
	incomesRequest struct {
		Incomes string `json:"incomes"`
	}
	addRowRequest struct {
		CategoryID string `json:"categoryId"`
	}
	editRequest struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	dateRequest struct {
		Raw string `json:"raw"`
	}
)

// decodeJSON reads a single JSON object from the body into dst. Unknown
// fields and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("decode request: %w", err)
	}
	if dec.More() {
		return errors.New("decode request: unexpected data after object")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for bodies that may be omitted.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, ErrEmptyBody) {
		return err
	}
	return nil
}

// sanitizeInput removes control characters other than tab and newlines.
// Whitespace is kept: values arrive keystroke by keystroke.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
