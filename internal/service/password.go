package service

import (
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 3

// passwordCost: стоимость bcrypt; тесты понижают её до bcrypt.MinCost.
var passwordCost = bcrypt.DefaultCost

// HashPassword возвращает bcrypt-хеш пароля.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), passwordCost)
}

func verifyPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
