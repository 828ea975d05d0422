/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"io"
	"strings"
)

// Room codes avoid I, O, 0 and 1. The alphabet has 32 symbols, so a single
// random byte modulo 32 is an unbiased draw.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// generateRoomCode draws codeLength symbols from src, falling back to
// crypto/rand when src is nil. Uniqueness is not checked here.
func generateRoomCode(src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}

	buf := make([]byte, codeLength)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", err
	}

	out := make([]byte, codeLength)
	for i := range out {
		out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}

	return string(out), nil
}

func normalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validRoomCode(code string) bool {
	if len(code) != codeLength {
		return false
	}

	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return false
		}
	}

	return true
}
