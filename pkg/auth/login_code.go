package auth

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const LoginCodeLength = 8

// без 0/O и 1/I
const loginCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var ErrLoginCodeMismatch = errors.New("login code mismatch")

// NewLoginCode возвращает код для пользователя и его bcrypt-хеш для хранения
func NewLoginCode() (code, hash string, err error) {
	buf := make([]byte, LoginCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	for i, b := range buf {
		buf[i] = loginCodeAlphabet[int(b)%len(loginCodeAlphabet)]
	}

	hashed, err := bcrypt.GenerateFromPassword(buf, bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return string(buf), string(hashed), nil
}

func CheckLoginCode(hash, code string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		return ErrLoginCodeMismatch
	}
	return nil
}
