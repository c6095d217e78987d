// Package totp verifica códigos TOTP (RFC 6238, HMAC-SHA1, 6 dígitos, 30s).
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"strings"
	"time"
)

const period = 30

// DecodeSecret decodifica un secreto base32 (con o sin padding, case-insensitive).
func DecodeSecret(b32 string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(b32))
	s = strings.TrimRight(s, "=")
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
}

// Verify valida code en una ventana de +/- windowSteps periodos.
// Devuelve el contador que matcheó para que el caller pueda evitar replay.
func Verify(secret []byte, code string, t time.Time, windowSteps int) (ok bool, counter int64) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return false, 0
	}
	now := t.Unix() / period
	for c := now - int64(windowSteps); c <= now+int64(windowSteps); c++ {
		if hmac.Equal([]byte(Code(secret, c)), []byte(code)) {
			return true, c
		}
	}
	return false, 0
}

// Code calcula HOTP(K, C) de 6 dígitos.
func Code(secret []byte, counter int64) string {
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}
	m := hmac.New(sha1.New, secret)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	off := int(sum[len(sum)-1] & 0x0f)
	bin := (int(sum[off])&0x7f)<<24 | int(sum[off+1])<<16 | int(sum[off+2])<<8 | int(sum[off+3])
	return fmt.Sprintf("%06d", bin%1000000)
}

// CounterAt devuelve el contador TOTP para t.
func CounterAt(t time.Time) int64 { return t.Unix() / period }
